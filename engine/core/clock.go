package core

import "time"

// Clock is the frame timer. Elapsed time excludes stretches spent stopped.
type Clock struct {
	now       func() time.Time
	baseTime  time.Time
	prevTime  time.Time
	stopTime  time.Time
	paused    time.Duration
	delta     float64
	stopped   bool
	isStarted bool
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Start resets the clock and begins counting.
func (c *Clock) Start() {
	t := c.now()
	c.baseTime = t
	c.prevTime = t
	c.paused = 0
	c.delta = 0
	c.stopped = false
	c.isStarted = true
}

// Stop freezes the clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	if c.stopped || !c.isStarted {
		return
	}
	c.stopTime = c.now()
	c.stopped = true
}

// Resume continues counting after Stop.
func (c *Clock) Resume() {
	if !c.stopped {
		return
	}
	t := c.now()
	c.paused += t.Sub(c.stopTime)
	c.prevTime = t
	c.stopped = false
}

// Update advances the clock. Should be called once per frame before reading
// Delta. Has no effect on stopped clocks.
func (c *Clock) Update() {
	if c.stopped || !c.isStarted {
		c.delta = 0
		return
	}
	t := c.now()
	c.delta = t.Sub(c.prevTime).Seconds()
	c.prevTime = t
	if c.delta < 0 {
		c.delta = 0
	}
}

// Delta is the time in seconds between the last two updates.
func (c *Clock) Delta() float64 {
	return c.delta
}

// Elapsed is the running time in seconds, excluding stopped time.
func (c *Clock) Elapsed() float64 {
	if !c.isStarted {
		return 0
	}
	end := c.prevTime
	if c.stopped {
		end = c.stopTime
	}
	return (end.Sub(c.baseTime) - c.paused).Seconds()
}

func (c *Clock) Stopped() bool {
	return c.stopped
}
