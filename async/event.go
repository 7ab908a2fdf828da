// Cooperative async substrate
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package async implements the minimal cooperative execution substrate used
// by in-kernel drivers that cannot rely on a preemptive scheduler: an
// edge-triggered event channel, a reference-counted waker, and a single-task
// executor that polls a closure between sleeps.
//
// This package is only meant to be used with `GOOS=tamago` as supported by
// the TamaGo framework for bare metal Go on ARM/RISC-V/AMD64 SoCs, see
// https://github.com/usbarmory/tamago-usbhost.
package async

import "sync/atomic"

// EventChannel is a one-shot edge-triggered wait primitive a thread blocks
// on. A Post issued after the last Sleep began unblocks exactly one sleeper;
// a Post before any sleeper is remembered (multiple posts before a sleep
// coalesce into one pending wakeup). Post is safe to call from interrupt
// context.
type EventChannel struct {
	pending uint32
	wake    chan struct{}
}

// NewEventChannel allocates a ready-to-use EventChannel.
func NewEventChannel() *EventChannel {
	return &EventChannel{
		wake: make(chan struct{}, 1),
	}
}

// Post records a wakeup, unblocking a sleeper if one is waiting, otherwise
// remembering the event for the next Sleep call.
func (ec *EventChannel) Post() {
	atomic.StoreUint32(&ec.pending, 1)

	select {
	case ec.wake <- struct{}{}:
	default:
	}
}

// Sleep blocks until at least one Post has been observed since the last
// return from Sleep, then consumes the pending event(s).
func (ec *EventChannel) Sleep() {
	<-ec.wake
	atomic.StoreUint32(&ec.pending, 0)
}
