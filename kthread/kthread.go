// Thread subsystem contract
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package kthread declares the narrow surface this module expects from the
// preemptive thread scheduler: spawning a worker thread to run a host's
// executor loop to completion, cooperative yield points, and the
// interrupts-disabled scoped hold used while taking a per-TD waker lock
// (§4.11) or the IRQ per-slot try-lock (§4.3). The scheduler itself — run
// queues, preemption, priorities — is out of scope and owned elsewhere in
// the kernel; this package only pins down the contract the USB host core
// relies on, with a goroutine-backed implementation suitable for host-side
// testing and for platforms without a distinct kernel thread abstraction.
package kthread

// Spawner starts a named worker thread running fn to completion. The real
// kernel scheduler implements this over its own thread objects; Goroutines
// below is a trivial stand-in.
type Spawner interface {
	Spawn(name string, fn func())
}

// Goroutines is a Spawner backed directly by the Go runtime's scheduler.
// It is not a preemptive kernel scheduler substitute — it exists so the USB
// host core can be built and tested without one.
type Goroutines struct{}

// Spawn runs fn in a new goroutine.
func (Goroutines) Spawn(name string, fn func()) {
	go fn()
}

// YieldTime gives up the remainder of the current thread's time slice,
// expected to be called while polling or when the scheduler has nothing
// else runnable.
var YieldTime = func() {}

// Reschedule picks a new thread to run, as the scheduler sees fit.
var Reschedule = func() {}

// Idle parks the calling CPU until the next interrupt.
var Idle = func() {}

// HoldInterrupts disables interrupt delivery on the current CPU and
// returns a function that restores the prior state. Callers must invoke
// the returned function exactly once, typically via defer, mirroring
// arch::sync::hold_interrupts() in the original kernel.
var HoldInterrupts = func() func() {
	return func() {}
}
