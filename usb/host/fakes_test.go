// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import (
	"sync"

	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

// fakeTransfer is an already-resolved hostctrl.Transfer, used by every fake
// endpoint below since none of these tests exercise real suspension.
type fakeTransfer struct {
	n   int
	err error
}

func (t *fakeTransfer) Poll(cx *async.Context) async.PollState { return async.Ready }
func (t *fakeTransfer) Result() (int, error)                   { return t.n, t.err }

// fakeControlHC is a hostctrl.ControlEndpoint stand-in that records the last
// SETUP header it was asked to send and, if set, copies canned data back
// into the caller's buffer on InOnly.
type fakeControlHC struct {
	mu sync.Mutex

	lastHeader []byte
	lastData   []byte

	reply []byte
	err   error

	// respond, when set, replaces the static reply/err pair above and
	// shapes a response from the request header itself — used by the
	// enumeration test, which must answer differently depending on which
	// descriptor was requested.
	respond func(header []byte, buf []byte) (int, error)
}

func (c *fakeControlHC) InOnly(header []byte, buf []byte) hostctrl.Transfer {
	c.mu.Lock()
	c.lastHeader = append([]byte(nil), header...)
	respond := c.respond
	reply, err := c.reply, c.err
	c.mu.Unlock()

	if respond != nil {
		n, err := respond(header, buf)
		return &fakeTransfer{n: n, err: err}
	}

	if err != nil {
		return &fakeTransfer{err: err}
	}

	n := copy(buf, reply)
	return &fakeTransfer{n: n}
}

func (c *fakeControlHC) OutOnly(header []byte, data []byte) hostctrl.Transfer {
	c.mu.Lock()
	c.lastHeader = append([]byte(nil), header...)
	c.lastData = append([]byte(nil), data...)
	err := c.err
	c.mu.Unlock()

	if err != nil {
		return &fakeTransfer{err: err}
	}

	return &fakeTransfer{n: len(data)}
}

// fakePeriodicHC is a hostctrl.InterruptEndpoint / hostctrl.BulkEndpoint
// stand-in that always reports the full buffer transferred.
type fakePeriodicHC struct{}

func (p *fakePeriodicHC) Submit(buf []byte) hostctrl.Transfer {
	return &fakeTransfer{n: len(buf)}
}

// fakeRootWait is a one-shot hostctrl.RootWait: it resolves to port on the
// first Poll and is never reused.
type fakeRootWait struct {
	port int
	done bool
}

func (w *fakeRootWait) Poll(cx *async.Context) async.PollState {
	if w.done {
		return async.Pending
	}
	w.done = true
	return async.Ready
}

func (w *fakeRootWait) Port() int { return w.port }

// fakeController is a minimal hostctrl.Controller backing an in-process
// enumeration test: it hands out fakeControlHC/fakePeriodicHC handles and
// tracks root port feature bits in memory, with no real hardware or timing
// involved.
type fakeController struct {
	mu sync.Mutex

	ep0    *fakeControlHC
	device *fakeControlHC

	ports []uint32 // one bitmask of PortFeature bits per port

	rootWaits []hostctrl.RootWait
	rootIndex int
}

func newFakeController(nports int) *fakeController {
	return &fakeController{
		ep0:    &fakeControlHC{},
		device: &fakeControlHC{},
		ports:  make([]uint32, nports),
	}
}

func (c *fakeController) InitControl(addr hostctrl.EndpointAddr, maxPacketSize int) hostctrl.ControlEndpoint {
	if addr.Device == 0 {
		return c.ep0
	}
	return c.device
}

func (c *fakeController) InitInterrupt(addr hostctrl.EndpointAddr, maxPacketSize int, pollingInterval int) hostctrl.InterruptEndpoint {
	return &fakePeriodicHC{}
}

func (c *fakeController) InitBulk(addr hostctrl.EndpointAddr, maxPacketSize int) hostctrl.BulkEndpoint {
	return &fakePeriodicHC{}
}

func (c *fakeController) SetPortFeature(port int, feat hostctrl.PortFeature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports[port] |= 1 << uint(feat)
}

func (c *fakeController) ClearPortFeature(port int, feat hostctrl.PortFeature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ports[port] &^= 1 << uint(feat)
}

func (c *fakeController) GetPortFeature(port int, feat hostctrl.PortFeature) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports[port]&(1<<uint(feat)) != 0
}

func (c *fakeController) AsyncWaitRoot() hostctrl.RootWait {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rootIndex >= len(c.rootWaits) {
		return &fakeRootWait{done: true}
	}

	w := c.rootWaits[c.rootIndex]
	c.rootIndex++
	return w
}

// signalConnect arranges for port to report Connection|CConnection on the
// next AsyncWaitRoot resolution.
func (c *fakeController) signalConnect(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ports[port] |= 1<<uint(hostctrl.FeatureConnection) | 1<<uint(hostctrl.FeatureCConnection)
	c.rootWaits = append(c.rootWaits, &fakeRootWait{port: port})
}
