// Cooperative async substrate
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package async

// PollState reports whether a Future produced its output (Ready) or needs a
// future wakeup before it can make progress (Pending).
type PollState int

const (
	Pending PollState = iota
	Ready
)

// Context is passed to every Poll call, carrying the Waker a Future should
// clone and store if it returns Pending.
type Context struct {
	waker Waker
}

// Waker returns the waker bound to this context.
func (cx *Context) Waker() Waker {
	return cx.waker
}

// Future is the minimal poll-based task abstraction: Poll is invoked
// repeatedly by an executor (or by a composite Future) until it returns
// Ready. A Future that returns Pending must have arranged, before
// returning, for cx.Waker() (or a clone of it) to be woken when it can
// next make progress.
type Future interface {
	Poll(cx *Context) PollState
}

// FutureFunc adapts a plain poll function to the Future interface.
type FutureFunc func(cx *Context) PollState

func (f FutureFunc) Poll(cx *Context) PollState { return f(cx) }

// Run drives poll forever: each iteration invokes poll(cx), then blocks in
// EventChannel.Sleep until woken. poll is expected to internally fan out to
// many sub-tasks (e.g. the host's root-event task plus all device workers);
// it is the entire schedulable unit of work for this executor.
//
// There is no failure mode and no cancellation: Run never returns. Dropping
// the goroutine running Run is the only way to stop it. Suspension points
// are only at the Sleep call between polls — poll itself must not block.
func Run(poll func(cx *Context)) {
	ec := NewEventChannel()
	waker := NewSimpleWaker(ec)
	cx := &Context{waker: waker}

	for {
		poll(cx)
		ec.Sleep()
	}
}
