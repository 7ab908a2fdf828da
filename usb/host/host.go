// USB host object
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package host implements the USB host-side stack: root hub event
// handling, device address allocation, per-device enumeration, and class
// driver binding, all built against the usb/hostctrl.Controller capability
// interface so it runs unchanged over any concrete host-controller driver
// (usb/ohci today).
package host

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/kthread"
	"github.com/usbarmory/tamago-usbhost/usb/descriptor"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

// maxAddress bounds the device worker arena; address 0 (slot 0) is never
// occupied, only addresses 1..=127 are ever allocated by AddressPool.
const maxAddress = 128

// deviceWorkerSlot records the outcome of one device's enumeration, kept
// around for inspection (and, eventually, teardown) while its address
// remains allocated.
type deviceWorkerSlot struct {
	addr       uint8
	device     descriptor.Device
	interfaces []Interface
	err        error

	// done is closed once runPortWorker has finished populating the
	// fields above (whether it succeeded or bailed out with err set),
	// letting tests (and, eventually, management code) wait for
	// enumeration to settle without polling.
	done chan struct{}
}

// Host owns a single host-controller driver, its address pool, the
// endpoint-zero handle used during enumeration, and one worker slot per
// possible device address. A Host is created once per bus and is never
// freed; it must not be moved or copied after NewHost returns, since the
// root-event task and every device worker goroutine close over its
// address.
type Host struct {
	Controller hostctrl.Controller
	Addresses  *AddressPool

	spawner kthread.Spawner
	logger  *log.Logger

	ep0Locked atomic.Bool
	ep0       *ControlEndpoint

	portsMu sync.Mutex
	ports   []*PortState

	workersMu sync.Mutex
	workers   [maxAddress]*deviceWorkerSlot
}

// NewHost brings up the host-side stack over ctrl, which must expose
// nports root ports. spawner provides the worker-thread primitive each
// connected device's enumeration runs on; kthread.Goroutines is the
// host-testable default.
func NewHost(ctrl hostctrl.Controller, nports int, spawner kthread.Spawner) *Host {
	h := &Host{
		Controller: ctrl,
		Addresses:  NewAddressPool(),
		spawner:    spawner,
		logger:     log.New(log.Writer(), "usb/host: ", log.LstdFlags),
		ports:      make([]*PortState, nports),
	}

	h.ep0 = NewControlEndpoint(ctrl.InitControl(hostctrl.EndpointAddr{Device: 0, Endpoint: 0}, 8))

	for i := range h.ports {
		h.ports[i] = &PortState{host: h, index: i}
	}

	return h
}

// Run drives the host's root-event task forever, on the calling
// goroutine. It never returns; callers typically invoke it via
// kthread.Spawner.Spawn on its own worker thread.
func (h *Host) Run() {
	task := &rootEventTask{host: h}

	async.Run(func(cx *async.Context) {
		task.Poll(cx)
	})
}

// addressZeroFuture resolves once it has exclusively claimed EP0, the
// single control endpoint at address 0 every port enumeration must
// serialize through to issue SET_ADDRESS.
type addressZeroFuture struct {
	host *Host
}

func (f *addressZeroFuture) Poll(cx *async.Context) async.PollState {
	if f.host.ep0Locked.CompareAndSwap(false, true) {
		return async.Ready
	}
	return async.Pending
}

// acquireAddressZero blocks the calling goroutine until EP0 is free, then
// returns a release function the caller must invoke exactly once.
func (h *Host) acquireAddressZero() (release func()) {
	async.Await(&addressZeroFuture{host: h})
	return func() { h.ep0Locked.Store(false) }
}

// signalConnected is invoked by the root-event task when a port reports a
// fresh connection: it allocates an address, records a worker slot, and
// hands enumeration off to its own goroutine so the root-event task stays
// unblocked for the next port change.
func (h *Host) signalConnected(port int) {
	addr, ok := h.Addresses.Allocate()
	if !ok {
		h.logger.Printf("port %d: %v", port, ErrAddressExhausted)
		return
	}

	h.workersMu.Lock()
	if h.workers[addr] != nil {
		h.workersMu.Unlock()
		panic("host: device worker slot already occupied")
	}
	slot := &deviceWorkerSlot{addr: addr, done: make(chan struct{})}
	h.workers[addr] = slot
	h.workersMu.Unlock()

	h.spawner.Spawn("usb-device-worker", func() {
		h.runPortWorker(port, addr, slot)
	})
}

// releaseDevice frees addr's worker slot and returns the address to the
// pool, called once a device worker has nothing further to do (today:
// immediately after enumeration, since interface driver tasks run as
// their own independently spawned goroutines — see Capabilities).
func (h *Host) releaseDevice(addr uint8) {
	h.workersMu.Lock()
	h.workers[addr] = nil
	h.workersMu.Unlock()

	h.Addresses.Release(addr)
}
