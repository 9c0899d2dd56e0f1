// Package tooltip keeps the hover state of map markers: a tooltip appears
// once the pointer has settled on a target and goes away after a short grace
// period once it leaves.
package tooltip

import (
	"sync"
	"time"
)

// Timer is the handle of a scheduled callback.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d, as time.AfterFunc does.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type settings struct {
	afterFunc AfterFunc
}

type Option func(*settings)

// WithAfterFunc replaces the timer source, tests use it to drive time by hand.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *settings) { s.afterFunc = f }
}

// Controller owns at most one pending timer at any moment. Every event
// stops the previous timer before scheduling a new one, and a timer that
// fires after it was replaced is ignored.
// Callbacks run on the timer goroutine, outside the state lock but one at
// a time. They may call Hover and Leave, not Close or Teardown.
type Controller[T comparable] struct {
	ShowDelay time.Duration
	HideGrace time.Duration

	onShow    func(T)
	onHide    func(T)
	afterFunc AfterFunc

	// held while a callback is delivered, taken before mu
	deliver sync.Mutex
	mu      sync.Mutex
	timer   Timer
	seq     uint64
	target  T
	visible bool
	closed  bool
}

// New creates a controller. onShow and onHide may be nil.
func New[T comparable](showDelay, hideGrace time.Duration, onShow, onHide func(T), opts ...Option) *Controller[T] {
	s := settings{afterFunc: realAfterFunc}
	for _, o := range opts {
		o(&s)
	}
	if onShow == nil {
		onShow = func(T) {}
	}
	if onHide == nil {
		onHide = func(T) {}
	}
	return &Controller[T]{
		ShowDelay: showDelay,
		HideGrace: hideGrace,
		onShow:    onShow,
		onHide:    onHide,
		afterFunc: s.afterFunc,
	}
}

// Hover reports the pointer over target. The tooltip shows after ShowDelay
// unless another event comes first. Hovering the target already shown only
// cancels a pending hide. A visible tooltip for another target is moved
// to the new one when the delay elapses.
func (c *Controller[T]) Hover(target T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopLocked()
	if c.visible && c.target == target {
		return
	}
	c.scheduleLocked(c.ShowDelay, func() (func(T), T) {
		c.visible = true
		c.target = target
		return c.onShow, target
	})
}

// Leave reports the pointer left the current target. A pending show is
// cancelled, a visible tooltip hides after HideGrace.
func (c *Controller[T]) Leave() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stopLocked()
	if !c.visible {
		return
	}
	c.scheduleLocked(c.HideGrace, func() (func(T), T) {
		c.visible = false
		return c.onHide, c.target
	})
}

// Close hides the tooltip at once and cancels any pending timer.
func (c *Controller[T]) Close() {
	c.deliver.Lock()
	defer c.deliver.Unlock()
	c.mu.Lock()
	c.stopLocked()
	if c.closed || !c.visible {
		c.mu.Unlock()
		return
	}
	c.visible = false
	target := c.target
	c.mu.Unlock()
	c.onHide(target)
}

// Teardown cancels the pending timer. It waits for a callback being
// delivered; no callback runs after it returns and further events are
// ignored.
func (c *Controller[T]) Teardown() {
	c.deliver.Lock()
	defer c.deliver.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.closed = true
	c.visible = false
}

// Visible returns the target currently shown.
func (c *Controller[T]) Visible() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.visible {
		var zero T
		return zero, false
	}
	return c.target, true
}

// Pending reports whether a timer is scheduled.
func (c *Controller[T]) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *Controller[T]) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
}

// scheduleLocked arms the single timer. apply runs under the lock when the
// timer fires and returns the callback to invoke after unlocking.
func (c *Controller[T]) scheduleLocked(d time.Duration, apply func() (func(T), T)) {
	seq := c.seq
	c.timer = c.afterFunc(d, func() {
		c.deliver.Lock()
		defer c.deliver.Unlock()
		c.mu.Lock()
		if c.closed || c.seq != seq {
			//replaced while waiting for the lock
			c.mu.Unlock()
			return
		}
		c.timer = nil
		cb, target := apply()
		c.mu.Unlock()
		cb(target)
	})
}
