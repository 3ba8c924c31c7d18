// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package reactor runs timers and cross-goroutine callbacks on a single
// dispatch goroutine. The elevator's control tick is a reactor timer, and
// commands from other goroutines are handed to it as async callbacks so
// the controller only ever has one writer.
package reactor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const (
	NOW   = 0.0
	NEVER = 9999999999999999.0
)

var (
	ErrReactorClosed = errors.New("reactor: reactor closed")
	ErrTimeout       = errors.New("reactor: operation timed out")
	ErrQueueFull     = errors.New("reactor: async queue full")
)

// TimerCallback is called when a timer fires with the event time and
// returns the next wake time. Return NEVER to park the timer.
type TimerCallback func(eventtime float64) float64

// Timer is a registered timer.
type Timer struct {
	callback TimerCallback
	waketime float64
	mu       sync.Mutex
}

// Completion carries the result of a callback.
type Completion struct {
	reactor *Reactor
	result  interface{}
	done    chan struct{}
	once    sync.Once
}

// Test reports whether the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the result; later calls are ignored.
func (c *Completion) Complete(result interface{}) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Wait blocks until the completion is done or the timeout expires, and
// returns timeoutResult in the latter case or when the reactor ends.
func (c *Completion) Wait(timeout time.Duration, timeoutResult interface{}) interface{} {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return c.result
	case <-timer.C:
		return timeoutResult
	case <-c.reactor.ctx.Done():
		select {
		case <-c.done:
			return c.result
		default:
			return timeoutResult
		}
	}
}

// Reactor manages timers and callback dispatch.
type Reactor struct {
	mu       sync.Mutex
	timers   []*Timer
	nextWake float64

	asyncQueue chan func()
	wake       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	running atomic.Bool
	wg      sync.WaitGroup

	startTime time.Time
}

// New creates a reactor whose async queue holds up to queueSize pending
// callbacks.
func New(queueSize int) *Reactor {
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		nextWake:   NEVER,
		asyncQueue: make(chan func(), queueSize),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		cancel:     cancel,
		startTime:  time.Now(),
	}
}

// monotonic returns seconds since the reactor was created. Timer wake
// times are on this clock.
func (r *Reactor) monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

func (r *Reactor) kick() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// RegisterTimer registers callback to first fire at waketime.
func (r *Reactor) RegisterTimer(callback TimerCallback, waketime float64) *Timer {
	timer := &Timer{callback: callback, waketime: waketime}
	r.addTimer(timer)
	return timer
}

func (r *Reactor) addTimer(timer *Timer) {
	r.mu.Lock()
	r.timers = append(r.timers, timer)
	if timer.waketime < r.nextWake {
		r.nextWake = timer.waketime
	}
	r.mu.Unlock()
	r.kick()
}

func (r *Reactor) newCompletion() *Completion {
	return &Completion{reactor: r, done: make(chan struct{})}
}

// RegisterAsyncCallback queues callback from any goroutine to run on the
// dispatch goroutine as soon as possible. When the queue is full or the
// reactor has ended, the completion holds ErrQueueFull or
// ErrReactorClosed.
func (r *Reactor) RegisterAsyncCallback(callback func(eventtime float64) interface{}) *Completion {
	completion := r.newCompletion()
	if r.ctx.Err() != nil {
		completion.Complete(ErrReactorClosed)
		return completion
	}
	select {
	case r.asyncQueue <- func() {
		completion.Complete(callback(r.monotonic()))
	}:
		r.kick()
	default:
		completion.Complete(ErrQueueFull)
	}
	return completion
}

// Do runs fn on the dispatch goroutine and waits up to timeout for it.
// When Do returns an error other than fn's own, fn has not run and never
// will: a callback still queued at the timeout is abandoned.
func (r *Reactor) Do(timeout time.Duration, fn func(eventtime float64) error) error {
	var state atomic.Int32 // doPending, doStarted or doAbandoned
	c := r.RegisterAsyncCallback(func(eventtime float64) interface{} {
		if !state.CompareAndSwap(doPending, doStarted) {
			return ErrTimeout
		}
		return fn(eventtime)
	})
	res := c.Wait(timeout, ErrTimeout)
	if res == ErrTimeout && !c.Test() {
		if state.CompareAndSwap(doPending, doAbandoned) {
			if r.ctx.Err() != nil {
				return ErrReactorClosed
			}
			return ErrTimeout
		}
		// fn is already running; its result is the answer.
		<-c.done
		res = c.result
	}
	if res == nil {
		return nil
	}
	if err, ok := res.(error); ok {
		return err
	}
	return nil
}

const (
	doPending int32 = iota
	doStarted
	doAbandoned
)

// Run starts the dispatch goroutine.
func (r *Reactor) Run() {
	if r.running.Swap(true) {
		return
	}
	r.wg.Add(1)
	go r.dispatchLoop()
}

// End stops the dispatch goroutine. Pending async callbacks are dropped.
func (r *Reactor) End() {
	r.running.Store(false)
	r.cancel()
}

// Wait waits for the dispatch goroutine to exit.
func (r *Reactor) Wait() {
	r.wg.Wait()
}

// Done is closed when the reactor ends.
func (r *Reactor) Done() <-chan struct{} {
	return r.ctx.Done()
}

func (r *Reactor) dispatchLoop() {
	defer r.wg.Done()

	for r.running.Load() {
		r.processAsyncCallbacks()
		timeout := r.checkTimers(r.monotonic())
		if timeout <= 0 {
			continue
		}
		delay := time.Duration(timeout * float64(time.Second))
		if delay > time.Second {
			delay = time.Second
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-r.wake:
		case <-r.ctx.Done():
			t.Stop()
			return
		}
		t.Stop()
	}
}

func (r *Reactor) processAsyncCallbacks() {
	for {
		select {
		case fn := <-r.asyncQueue:
			fn()
		default:
			return
		}
	}
}

// checkTimers fires due timers and returns the seconds until the next.
func (r *Reactor) checkTimers(eventtime float64) float64 {
	r.mu.Lock()
	if eventtime < r.nextWake {
		delay := r.nextWake - eventtime
		r.mu.Unlock()
		return delay
	}
	timers := make([]*Timer, len(r.timers))
	copy(timers, r.timers)
	r.nextWake = NEVER
	r.mu.Unlock()

	next := NEVER
	for _, timer := range timers {
		timer.mu.Lock()
		if eventtime >= timer.waketime {
			timer.waketime = NEVER
			timer.mu.Unlock()

			newWaketime := timer.callback(eventtime)

			timer.mu.Lock()
			if newWaketime < timer.waketime {
				timer.waketime = newWaketime
			}
		}
		if timer.waketime < next {
			next = timer.waketime
		}
		timer.mu.Unlock()
	}

	r.mu.Lock()
	if next < r.nextWake {
		r.nextWake = next
	}
	delay := r.nextWake - eventtime
	r.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	return delay
}
