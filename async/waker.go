// Cooperative async substrate
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package async

import "sync/atomic"

// Waker is a reference-counted handle a Future stores so an external event
// (typically an interrupt completion) can schedule it for re-polling. The
// referent (the EventChannel behind a SimpleWaker) must outlive every live
// clone of the waker.
type Waker interface {
	// Clone returns a new handle to the same referent, incrementing its
	// reference count.
	Clone() Waker

	// WakeByRef schedules the referent for re-polling without consuming
	// this handle.
	WakeByRef()

	// Wake is equivalent to WakeByRef followed by Drop.
	Wake()

	// Drop releases this handle. The last Drop must leave the referent's
	// reference count at zero.
	Drop()
}

// nullWaker is a statically constructed Waker whose Wake, WakeByRef and Drop
// are no-ops and whose Clone returns itself. It is used as a placeholder
// when a field needs a Waker but no wakeup is ever desired.
type nullWaker struct{}

func (nullWaker) Clone() Waker { return nullWaker{} }
func (nullWaker) WakeByRef()   {}
func (nullWaker) Wake()        {}
func (nullWaker) Drop()        {}

var nullWakerInstance = nullWaker{}

// NullWaker returns the shared null waker instance.
func NullWaker() Waker {
	return nullWakerInstance
}

// SimpleWaker is a Waker backed by an EventChannel: WakeByRef posts to the
// channel, waking the executor thread blocked in EventChannel.Sleep.
type SimpleWaker struct {
	refs *int32
	ec   *EventChannel
}

// NewSimpleWaker constructs a SimpleWaker bound to ec with an initial
// reference count of one.
func NewSimpleWaker(ec *EventChannel) *SimpleWaker {
	refs := int32(1)
	return &SimpleWaker{refs: &refs, ec: ec}
}

// Clone increments the reference count and returns a new handle to the same
// underlying waker.
func (w *SimpleWaker) Clone() Waker {
	atomic.AddInt32(w.refs, 1)
	return &SimpleWaker{refs: w.refs, ec: w.ec}
}

// WakeByRef posts a wakeup on the bound event channel without consuming
// this handle.
func (w *SimpleWaker) WakeByRef() {
	w.ec.Post()
}

// Wake posts a wakeup and then drops this handle.
func (w *SimpleWaker) Wake() {
	w.WakeByRef()
	w.Drop()
}

// Drop decrements the reference count. RefCount reports the count after the
// last Drop, for tests asserting it reaches zero.
func (w *SimpleWaker) Drop() {
	atomic.AddInt32(w.refs, -1)
}

// RefCount returns the current reference count. Intended for tests; a
// SimpleWaker whose last clone has been dropped must report zero.
func (w *SimpleWaker) RefCount() int32 {
	return atomic.LoadInt32(w.refs)
}
