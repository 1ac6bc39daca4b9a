package containers

import (
	"errors"
	"fmt"
)

var ErrStaleHandle = errors.New("stale or invalid handle")

// Handle addresses an element of an Arena. The zero Handle is never valid.
type Handle struct {
	index      uint32
	generation uint32
}

func (h Handle) IsValid() bool {
	return h.generation != 0
}

func (h Handle) Index() int {
	return int(h.index)
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.generation)
}

type arenaSlot[T any] struct {
	value      T
	generation uint32
	alive      bool
}

// Arena owns a set of values addressed by generational handles. Elements
// live until Clear, so indices can double as constant-buffer element indices.
type Arena[T any] struct {
	slots []arenaSlot[T]
	free  []uint32
	// names only guards against registering the same name twice
	names map[string]Handle
}

func NewArena[T any]() *Arena[T] {
	return &Arena[T]{names: map[string]Handle{}}
}

// Insert stores v under name and returns its handle.
func (a *Arena[T]) Insert(name string, v T) (Handle, error) {
	if name != "" {
		if _, ok := a.names[name]; ok {
			return Handle{}, fmt.Errorf("arena: %q already registered", name)
		}
	}
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot[T]{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.generation++
	s.value = v
	s.alive = true
	h := Handle{index: idx, generation: s.generation}
	if name != "" {
		a.names[name] = h
	}
	return h, nil
}

// Get resolves h.
func (a *Arena[T]) Get(h Handle) (T, error) {
	var zero T
	if !a.live(h) {
		return zero, ErrStaleHandle
	}
	return a.slots[h.index].value, nil
}

// Len is the number of live elements.
func (a *Arena[T]) Len() int {
	return len(a.slots) - len(a.free)
}

// Each visits live elements in index order.
func (a *Arena[T]) Each(fn func(h Handle, v T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.alive {
			fn(Handle{index: uint32(i), generation: s.generation}, s.value)
		}
	}
}

// Clear drops every element. Outstanding handles become stale.
func (a *Arena[T]) Clear() {
	var zero T
	a.free = a.free[:0]
	for i := range a.slots {
		a.slots[i].value = zero
		a.slots[i].alive = false
		a.free = append(a.free, uint32(len(a.slots)-1-i))
	}
	a.names = map[string]Handle{}
}

func (a *Arena[T]) live(h Handle) bool {
	if !h.IsValid() || int(h.index) >= len(a.slots) {
		return false
	}
	s := a.slots[h.index]
	return s.alive && s.generation == h.generation
}
