// OHCI host-controller driver
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ohci

import (
	"sync/atomic"
	"unsafe"

	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/dma"
	"github.com/usbarmory/tamago-usbhost/kthread"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

// wakerSlot is the same CAS-guarded waker handoff GeneralTD uses for its
// completion protocol, factored out for the root hub's change-event
// waiter which has no hardware word of its own to piggyback the lock bit
// on.
type wakerSlot struct {
	locked atomic.Uint32
	w      async.Waker
}

func (s *wakerSlot) update(w async.Waker) {
	restore := kthread.HoldInterrupts()
	for !s.locked.CompareAndSwap(0, 1) {
	}

	old := s.w
	s.w = w.Clone()

	s.locked.Store(0)
	restore()

	if old != nil {
		old.Drop()
	}
}

func (s *wakerSlot) takeAndWake() {
	restore := kthread.HoldInterrupts()
	for !s.locked.CompareAndSwap(0, 1) {
	}

	w := s.w
	s.w = nil

	s.locked.Store(0)
	restore()

	if w != nil {
		w.Wake()
	}
}

// Driver implements hostctrl.Controller against a single OHCI register
// bank, serving as both the reference Controller this module's usb/host
// package is developed and tested against, and a usable driver on real
// tamago boards once paired with a platform's MMIO-mapped Registers and a
// DMA region carved out for this controller's exclusive use.
//
// Discovering the controller on its bus and mapping its register window
// (PCI enumeration, MMIO/BAR setup) is the caller's responsibility; Driver
// is handed a ready Registers and dma.Region.
type Driver struct {
	regs   Registers
	region *dma.Region

	hcca     *HCCA
	hccaAddr uint32

	controlHead     *ED
	controlHeadAddr uint32
	bulkHead        *ED
	bulkHeadAddr    uint32

	numPorts int

	root      chan int
	rootWaker wakerSlot
}

// NewDriver brings up an OHCI controller: resets it, installs the HCCA,
// and switches it to the USB Operational state. numPorts must match
// HcRhDescriptorA's NDP field (callers typically read it once after reset
// and pass it back in).
func NewDriver(regs Registers, region *dma.Region, numPorts int) *Driver {
	d := &Driver{
		regs:     regs,
		region:   region,
		numPorts: numPorts,
		root:     make(chan int, 1),
	}

	regs.Write(HcCommandStatus, HCCmdStatusHCR)

	hccaAddr, hccaBuf := region.Reserve(HCCASize, 256)
	d.hcca = (*HCCA)(unsafe.Pointer(&hccaBuf[0]))
	d.hccaAddr = hccaAddr

	d.controlHeadAddr, d.controlHead = AllocED(region)
	d.bulkHeadAddr, d.bulkHead = AllocED(region)

	regs.Write(HcHCCA, hccaAddr)
	regs.Write(HcControlHeadED, d.controlHeadAddr)
	regs.Write(HcBulkHeadED, d.bulkHeadAddr)

	// HostControllerFunctionalState = USBOperational (bits 6:7 = 2),
	// control and bulk list enables (bits 4:5).
	regs.Write(HcControl, 0x3<<4|0x2<<6)

	return d
}

func edFromAddr(addr uint32) *ED {
	return (*ED)(unsafe.Pointer(uintptr(addr)))
}

func tdFromAddr(addr uint32) *GeneralTD {
	hw := (*generalTD)(unsafe.Pointer(uintptr(addr)))
	return &GeneralTD{addr: addr, hw: hw}
}

func (d *Driver) linkChain(ed *ED, chain []*GeneralTD) {
	for i := 0; i < len(chain)-1; i++ {
		chain[i].hw.NextTD.Store(chain[i+1].Addr())
	}
	chain[len(chain)-1].hw.NextTD.Store(0)

	ed.ClearHalt(chain[0].Addr())
	ed.TailP.Store(0)
}

func (d *Driver) kickControl() {
	d.regs.Write(HcCommandStatus, d.regs.Read(HcCommandStatus)|HCCmdStatusCLF)
}

func (d *Driver) kickBulk() {
	d.regs.Write(HcCommandStatus, d.regs.Read(HcCommandStatus)|HCCmdStatusBLF)
}

func (d *Driver) InitControl(addr hostctrl.EndpointAddr, maxPacketSize int) hostctrl.ControlEndpoint {
	edAddr, ed := AllocED(d.region)
	ed.Configure(addr.Device, addr.Endpoint, DirectionFromTD, false, maxPacketSize)
	appendED(d.controlHead, edAddr, ed)

	return &controlEndpoint{driver: d, ed: ed}
}

// InitInterrupt queues the endpoint onto the control list rather than a
// dedicated periodic/interrupt-table list keyed by pollingInterval: this
// driver targets the enumeration-time interrupt endpoints USB host stacks
// poll at modest rates (HID, hub status), not isochronous-grade periodic
// scheduling, which is an explicit non-goal.
func (d *Driver) InitInterrupt(addr hostctrl.EndpointAddr, maxPacketSize int, pollingInterval int) hostctrl.InterruptEndpoint {
	edAddr, ed := AllocED(d.region)
	ed.Configure(addr.Device, addr.Endpoint, DirectionIn, false, maxPacketSize)
	appendED(d.controlHead, edAddr, ed)

	return &periodicEndpoint{driver: d, ed: ed, bulk: false}
}

func (d *Driver) InitBulk(addr hostctrl.EndpointAddr, maxPacketSize int) hostctrl.BulkEndpoint {
	edAddr, ed := AllocED(d.region)
	ed.Configure(addr.Device, addr.Endpoint, DirectionIn, false, maxPacketSize)
	appendED(d.bulkHead, edAddr, ed)

	return &periodicEndpoint{driver: d, ed: ed, bulk: true}
}

// appendED walks from head to the end of its NextED chain and links ed on,
// a minimal driver's endpoint count is small enough that the linear walk
// cost is negligible next to a USB transfer's own latency.
func appendED(head *ED, edAddr uint32, ed *ED) {
	cur := head
	for {
		next := cur.NextED.Load()
		if next == 0 {
			cur.NextED.Store(edAddr)
			return
		}
		cur = edFromAddr(next)
	}
}

func featureBit(feat hostctrl.PortFeature) int {
	switch feat {
	case hostctrl.FeatureConnection:
		return PortCurrentConnectStatus
	case hostctrl.FeatureEnable:
		return PortEnableStatus
	case hostctrl.FeatureSuspend:
		return PortSuspendStatus
	case hostctrl.FeatureOverCurrent:
		return PortOverCurrentIndicator
	case hostctrl.FeatureReset:
		return PortResetStatus
	case hostctrl.FeaturePower:
		return PortPowerStatus
	case hostctrl.FeatureLowSpeed:
		return PortLowSpeedDeviceAttached
	case hostctrl.FeatureCConnection:
		return PortConnectStatusChange
	case hostctrl.FeatureCEnable:
		return PortEnableStatusChange
	case hostctrl.FeatureCSuspend:
		return PortSuspendStatusChange
	case hostctrl.FeatureCOverCurrent:
		return PortOverCurrentIndicatorChange
	case hostctrl.FeatureCReset:
		return PortResetStatusChange
	}

	return -1
}

func (d *Driver) SetPortFeature(port int, feat hostctrl.PortFeature) {
	if bit := featureBit(feat); bit >= 0 {
		d.regs.Write(portReg(port), 1<<bit)
	}
}

// ClearPortFeature clears feat on port. Per OHCI §7.4.4, writing a 1 to a
// root hub port status register bit either clears a change (C*) bit or
// requests the corresponding status transition (e.g. writing the Enable
// bit position clears port enable); hostctrl.PortFeature only ever names
// the bits this driver is asked to clear, so a single write-1 path covers
// both cases.
func (d *Driver) ClearPortFeature(port int, feat hostctrl.PortFeature) {
	if bit := featureBit(feat); bit >= 0 {
		d.regs.Write(portReg(port), 1<<bit)
	}
}

func (d *Driver) GetPortFeature(port int, feat hostctrl.PortFeature) bool {
	bit := featureBit(feat)
	if bit < 0 {
		return false
	}
	return d.regs.Read(portReg(port))&(1<<bit) != 0
}

// rootWait is the hostctrl.RootWait future returned by AsyncWaitRoot.
type rootWait struct {
	driver *Driver
	port   int
}

func (w *rootWait) Poll(cx *async.Context) async.PollState {
	select {
	case p := <-w.driver.root:
		w.port = p
		return async.Ready
	default:
	}

	w.driver.rootWaker.update(cx.Waker())

	select {
	case p := <-w.driver.root:
		w.port = p
		return async.Ready
	default:
	}

	return async.Pending
}

func (w *rootWait) Port() int {
	return w.port
}

func (d *Driver) AsyncWaitRoot() hostctrl.RootWait {
	return &rootWait{driver: d}
}

// ProcessInterrupt is the controller's interrupt handler body: it walks
// the HCCA done queue retiring TDs, and scans root hub ports for any
// newly asserted change bit, waking any AsyncWaitRoot caller. It is
// intended to be bound via irq.Table.BindGSI by the platform glue that
// owns the architecture interrupt binding for this controller's GSI.
func (d *Driver) ProcessInterrupt() {
	head := atomic.LoadUint32(&d.hcca.DoneHead) &^ 0x1
	atomic.StoreUint32(&d.hcca.DoneHead, 0)

	for addr := head; addr != 0; {
		td := tdFromAddr(addr)
		next := td.hw.NextTD.Load()
		td.Complete()
		if td.autoFree() {
			td.Free(d.region)
		}
		addr = next
	}

	signaled := false

	for port := 0; port < d.numPorts; port++ {
		status := d.regs.Read(portReg(port))
		if status&(1<<PortConnectStatusChange) != 0 {
			select {
			case d.root <- port:
				signaled = true
			default:
			}
		}
	}

	if signaled {
		d.rootWaker.takeAndWake()
	}
}
