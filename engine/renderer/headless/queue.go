package headless

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/ringrender/engine/core"
	"github.com/spaghettifunk/ringrender/engine/renderer/gpu"
)

type opKind int

const (
	opExecute opKind = iota
	opSignal
)

// op snapshots everything the worker needs at submit time; a list may be
// reset onto another allocator before the op retires.
type op struct {
	kind   opKind
	names  []string
	cmds   [][]Command
	allocs []*CommandAllocator
	fence  *Fence
	value  uint64
}

var errQueueShutdown = errors.New("queue is shut down")

// ExecutedDraw is what the simulated device observed for one draw: the
// constant-buffer bytes it read at each bound root address at execution time.
type ExecutedDraw struct {
	IndexCount uint32
	Constants  map[uint32][]byte
}

type ExecutedList struct {
	Name  string
	Draws []ExecutedDraw
}

// Queue is the simulated direct queue. In automatic mode a single worker
// goroutine retires operations in submission order. In manual mode nothing
// retires until Retire or RetireAll is called.
type Queue struct {
	dev      *Device
	manual   bool
	latency  time.Duration
	mu       sync.Mutex
	pending  []op
	inflight atomic.Int64
	jobs     chan op
	// sendMu orders sends on jobs against shutdown closing it.
	sendMu   sync.RWMutex
	closed   bool
	wg       sync.WaitGroup
	executed []ExecutedList
	maxKeep  int
}

func newQueue(dev *Device, opts Options) *Queue {
	q := &Queue{
		dev:     dev,
		manual:  opts.Manual,
		latency: opts.Latency,
		maxKeep: 64,
	}
	if !q.manual {
		q.jobs = make(chan op, 256)
		q.start()
	}
	return q
}

func (q *Queue) start() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for o := range q.jobs {
			// a waiter released by a signal must already see the work retired
			if o.kind == opSignal {
				q.inflight.Add(-1)
				q.run(o)
				continue
			}
			q.run(o)
			q.inflight.Add(-1)
		}
	}()
}

func (q *Queue) shutdown() {
	q.sendMu.Lock()
	if q.closed {
		q.sendMu.Unlock()
		return
	}
	q.closed = true
	if q.jobs != nil {
		close(q.jobs)
	}
	q.sendMu.Unlock()
	q.wg.Wait()
}

func (q *Queue) ExecuteCommandLists(lists ...gpu.CommandList) error {
	if err := q.dev.lost(); err != nil {
		return core.NewDeviceError("execute command lists", err)
	}
	batch := make([]*CommandList, 0, len(lists))
	for _, l := range lists {
		cl, ok := l.(*CommandList)
		if !ok {
			return core.Violation("foreign command list %T", l)
		}
		if cl.open {
			return core.Violation("command list %q executed while open", cl.name)
		}
		if cl.err != nil {
			return cl.err
		}
		batch = append(batch, cl)
	}
	o := op{
		kind:   opExecute,
		names:  make([]string, len(batch)),
		cmds:   make([][]Command, len(batch)),
		allocs: make([]*CommandAllocator, len(batch)),
	}
	for i, cl := range batch {
		o.names[i] = cl.name
		o.cmds[i] = cl.commands
		o.allocs[i] = cl.alloc
		cl.alloc.outstanding.Add(1)
	}
	if err := q.enqueue(o); err != nil {
		for _, a := range o.allocs {
			a.outstanding.Add(-1)
		}
		return core.NewDeviceError("execute command lists", err)
	}
	return nil
}

func (q *Queue) Signal(fence gpu.Fence, value uint64) error {
	if err := q.dev.lost(); err != nil {
		return core.NewDeviceError("signal", err)
	}
	f, ok := fence.(*Fence)
	if !ok {
		return core.Violation("foreign fence %T", fence)
	}
	if err := q.enqueue(op{kind: opSignal, fence: f, value: value}); err != nil {
		return core.NewDeviceError("signal", err)
	}
	return nil
}

func (q *Queue) enqueue(o op) error {
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if q.closed {
		return errQueueShutdown
	}
	if q.manual {
		q.mu.Lock()
		q.pending = append(q.pending, o)
		q.mu.Unlock()
		return nil
	}
	q.inflight.Add(1)
	q.jobs <- o
	return nil
}

func (q *Queue) run(o op) {
	switch o.kind {
	case opExecute:
		if q.latency > 0 {
			time.Sleep(q.latency)
		}
		for i, name := range o.names {
			q.record(name, o.cmds[i])
			o.allocs[i].outstanding.Add(-1)
		}
	case opSignal:
		o.fence.Set(o.value)
	}
}

func (q *Queue) record(name string, cmds []Command) {
	ex := ExecutedList{Name: name}
	bound := map[uint32]gpu.GPUAddress{}
	for _, c := range cmds {
		switch c.Op {
		case OpSetRootCBV:
			bound[c.Slot] = c.Address
		case OpDraw:
			d := ExecutedDraw{IndexCount: c.Draw.IndexCount, Constants: map[uint32][]byte{}}
			for slot, addr := range bound {
				if b, err := q.dev.read(addr, 256); err == nil {
					d.Constants[slot] = b
				}
			}
			ex.Draws = append(ex.Draws, d)
		}
	}
	q.mu.Lock()
	q.executed = append(q.executed, ex)
	if len(q.executed) > q.maxKeep {
		q.executed = q.executed[len(q.executed)-q.maxKeep:]
	}
	q.mu.Unlock()
}

// Retire runs up to n pending operations on the calling goroutine and
// returns how many ran. Only meaningful in manual mode.
func (q *Queue) Retire(n int) int {
	ran := 0
	for ran < n {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.mu.Unlock()
			break
		}
		o := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.run(o)
		ran++
	}
	return ran
}

func (q *Queue) RetireAll() int {
	return q.Retire(int(^uint(0) >> 1))
}

// Pending is the number of operations the device has not retired yet.
func (q *Queue) Pending() int {
	if q.manual {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.pending)
	}
	return int(q.inflight.Load())
}

// Executed returns the most recently retired command lists, oldest first.
func (q *Queue) Executed() []ExecutedList {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ExecutedList, len(q.executed))
	copy(out, q.executed)
	return out
}

func (q *Queue) String() string {
	mode := "auto"
	if q.manual {
		mode = "manual"
	}
	return fmt.Sprintf("headless queue (%s, %d pending)", mode, q.Pending())
}
