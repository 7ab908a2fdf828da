// Root-event task
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import (
	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

// PortState is a thin reference to one root port; today its only behavior
// is reacting to a fresh connection by asking the host to allocate an
// address and spawn a device worker. A future hub device driver would
// give PortState real behavior (it is deliberately not a dead end).
type PortState struct {
	host  *Host
	index int
}

// SignalConnected notifies the host that this port reports a connected
// device; the port is enabled later, by the device worker.
func (p *PortState) SignalConnected() {
	p.host.signalConnected(p.index)
}

// rootEventTask is the perpetual loop awaiting root hub change events and
// dispatching port-connect handling (§4.7): it never completes, so its
// Poll handles every event that is ready and returns Pending once a fresh
// root wait has been polled and is itself pending.
type rootEventTask struct {
	host    *Host
	pending hostctrl.RootWait
}

func (t *rootEventTask) Poll(cx *async.Context) async.PollState {
	for {
		if t.pending == nil {
			t.pending = t.host.Controller.AsyncWaitRoot()
		}

		if t.pending.Poll(cx) == async.Pending {
			return async.Pending
		}

		port := t.pending.Port()
		t.pending = nil

		t.host.handleRootEvent(port)
	}
}

// handleRootEvent implements §4.7: acknowledge CConnection, then react to
// the current Connection state. Other change bits (CReset, CEnable) are
// acknowledged elsewhere (by the port worker, which owns the reset/enable
// sequence) and are not handled here.
func (h *Host) handleRootEvent(port int) {
	if h.Controller.GetPortFeature(port, hostctrl.FeatureCConnection) {
		h.Controller.ClearPortFeature(port, hostctrl.FeatureCConnection)
	}

	if h.Controller.GetPortFeature(port, hostctrl.FeatureConnection) {
		h.ports[port].SignalConnected()
		return
	}

	// Disconnect: §9 marks teardown of the downstream device as an open
	// question left unimplemented upstream. This rewrite's policy is to
	// log and leave the worker slot (if any) running to completion on its
	// own — a disconnected device's transfers will simply start failing
	// with ErrTransferFailed and its worker goroutine will exit via the
	// ordinary error path in runPortWorker, releasing its address. There
	// is deliberately no forced cancellation, since this substrate has
	// none (§5).
	h.logger.Printf("port %d: disconnected", port)
}

