// OHCI General Transfer Descriptor
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
)

// TDSize is the fixed hardware size in bytes of a General Transfer
// Descriptor (OHCI Specification §4.3.1).
const TDSize = 16

// GeneralTD control word hardware bit positions. Bits 0:17 are reserved by
// the hardware format and are repurposed below as the software completion
// protocol.
const (
	tdRoundingBit  = 1 << 18
	tdDirectionPIDShift = 19 // bits 19:20
	tdDelayIntShift     = 21 // bits 21:23
	tdToggleShift       = 24 // bits 24:25 (data toggle, when tdToggleFromTD set)
	tdToggleFromTD      = 1 << 25
	tdErrorCountShift   = 26 // bits 26:27, hardware-maintained
	tdConditionCodeShift = 28 // bits 28:31, hardware-maintained
)

// Software completion-protocol bits, packed into the TD control word's
// reserved low 18 bits. The same word the host controller is free to leave
// untouched (it only ever writes EC/CC on completion) doubles as a
// lock-free handoff between the poller that owns the TD and the interrupt
// path that retires it off the HCCA done queue.
const (
	tdAllocated uint32 = 1 << 0
	tdInit      uint32 = 1 << 1
	tdAutoFree  uint32 = 1 << 2
	tdComplete  uint32 = 1 << 3
	tdLocked    uint32 = 1 << 4
)

// pageSize is the OHCI buffer page granularity: a TD's data buffer may
// span at most two 4KiB pages (CBP's page and BE's page).
const pageSize = 0x1000

// generalTD is the 16-byte hardware-visible TD layout.
type generalTD struct {
	Control atomic.Uint32
	CBP     atomic.Uint32 // current buffer pointer, 0 once fully consumed
	NextTD  atomic.Uint32
	BE      atomic.Uint32 // buffer end (address of the last byte)
}

func tdAt(buf []byte) *generalTD {
	return (*generalTD)(unsafe.Pointer(&buf[0]))
}

// GeneralTD is a General Transfer Descriptor together with the software
// state (waker, DMA address) that rides alongside but outside the 16-byte
// hardware structure.
type GeneralTD struct {
	addr uint32
	hw   *generalTD

	// waker is only ever read or written while tdLocked is held.
	waker async.Waker
}

// Direction values for Init (OHCI §4.3.1, DP field).
const (
	DirectionFromTD = 0
	DirectionOut    = 1
	DirectionIn     = 2
)

// AllocGeneralTD reserves a fresh TD from the DMA region.
func AllocGeneralTD(region *dma.Region) *GeneralTD {
	addr, buf := region.Reserve(TDSize, 16)
	hw := tdAt(buf)

	if !hw.Control.CompareAndSwap(0, tdAllocated) {
		panic("ohci: freshly reserved TD is not zeroed")
	}

	return &GeneralTD{addr: addr, hw: hw}
}

// Free releases the TD back to its DMA region. Panics if the TD is locked
// (an interrupt handler may be retiring it) or already free.
func (td *GeneralTD) Free(region *dma.Region) {
	for {
		c := td.hw.Control.Load()

		if c&tdLocked != 0 {
			panic("ohci: free of locked TD")
		}
		if c&tdAllocated == 0 {
			panic("ohci: double free of TD")
		}
		if td.hw.Control.CompareAndSwap(c, 0) {
			break
		}
	}

	td.hw.CBP.Store(0)
	td.hw.NextTD.Store(0)
	td.hw.BE.Store(0)
	td.waker = nil

	region.Release(td.addr)
}

// Addr returns the TD's DMA address, suitable for linking into an ED's
// TailP/HeadP or another TD's NextTD.
func (td *GeneralTD) Addr() uint32 {
	return td.addr
}

// Init programs the TD's hardware fields for a transfer of buf (already
// DMA-addressable at bufAddr), and marks the TD initialized. autoFree
// requests that the completion path (Driver.ProcessInterrupt) free the TD
// itself once retired, rather than leave it for the caller to recycle
// explicitly.
func (td *GeneralTD) Init(bufAddr uint32, length int, direction int, delayInterrupt int, toggle *bool, autoFree bool) {
	v := uint32(direction&0x3)<<tdDirectionPIDShift | tdRoundingBit

	v |= uint32(delayInterrupt&0x7) << tdDelayIntShift

	if toggle != nil {
		v |= tdToggleFromTD
		if *toggle {
			v |= 1 << tdToggleShift
		}
	}

	v |= tdInit
	if autoFree {
		v |= tdAutoFree
	}

	for {
		c := td.hw.Control.Load()
		if c&tdAllocated == 0 {
			panic("ohci: Init of unallocated TD")
		}
		next := v | (c & (tdAllocated | tdLocked))
		if td.hw.Control.CompareAndSwap(c, next) {
			break
		}
	}

	td.hw.CBP.Store(bufAddr)
	td.hw.NextTD.Store(0)

	if length > 0 {
		td.hw.BE.Store(bufAddr + uint32(length) - 1)
	} else {
		td.hw.CBP.Store(0)
		td.hw.BE.Store(0)
	}
}

// autoFree reports whether the completion path should free this TD itself.
func (td *GeneralTD) autoFree() bool {
	return td.hw.Control.Load()&tdAutoFree != 0
}

// ConditionCode returns the hardware completion code (OHCI §4.3.1, CC
// field; 0 = NoError), only meaningful once IsComplete returns true.
func (td *GeneralTD) ConditionCode() uint8 {
	return uint8(td.hw.Control.Load() >> tdConditionCodeShift & 0xf)
}

// IsComplete reports whether the host controller has retired this TD.
func (td *GeneralTD) IsComplete() bool {
	return td.hw.Control.Load()&tdComplete != 0
}

// BytesRemaining computes how many bytes of the original buffer were never
// consumed by the controller, derived from CBP/BE exactly as OHCI defines
// it (§4.3.1): CBP of zero means the whole buffer was consumed; otherwise
// the buffer may straddle a single page boundary, since OHCI permits CBP
// and BE to differ only within one page's worth of address space.
func (td *GeneralTD) BytesRemaining() int {
	cbp := td.hw.CBP.Load()
	be := td.hw.BE.Load()

	if cbp == 0 {
		return 0
	}

	if cbp&^uint32(pageSize-1) == be&^uint32(pageSize-1) {
		return int(be-cbp) + 1
	}

	// CBP and BE fall in adjacent pages: what's left on CBP's page, plus
	// however far into BE's page the buffer end reaches.
	firstPageRemaining := pageSize - int(cbp&(pageSize-1))
	secondPageConsumed := int(be&(pageSize-1)) + 1

	return firstPageRemaining + secondPageConsumed
}

// lockWaker acquires the software lock bit with interrupts held off on
// this CPU, mirroring the waker-lock protocol: a TD's waker is only ever
// touched with this bit held, so an IRQ retiring the TD concurrently with
// a poller installing a new waker can never observe a half-written Waker
// value.
func (td *GeneralTD) lockWaker() (release func()) {
	restore := kthread.HoldInterrupts()

	for {
		c := td.hw.Control.Load()
		if c&tdLocked == 0 && td.hw.Control.CompareAndSwap(c, c|tdLocked) {
			break
		}
	}

	return func() {
		for {
			c := td.hw.Control.Load()
			if td.hw.Control.CompareAndSwap(c, c&^tdLocked) {
				break
			}
		}
		restore()
	}
}

// UpdateWaker installs w as the TD's waker, dropping whatever waker was
// previously installed (if any). Called by the poller each time Poll is
// invoked with a Context whose Waker may have changed since the last poll.
func (td *GeneralTD) UpdateWaker(w async.Waker) {
	release := td.lockWaker()
	defer release()

	old := td.waker
	td.waker = w.Clone()

	if old != nil {
		old.Drop()
	}
}

// Complete marks the TD retired by the host controller and wakes whatever
// waker is currently installed, exactly once. It is called from the
// interrupt path walking the HCCA done queue (§4.11) and is safe to call
// concurrently with UpdateWaker.
func (td *GeneralTD) Complete() {
	for {
		c := td.hw.Control.Load()
		if c&tdComplete != 0 {
			return
		}
		if td.hw.Control.CompareAndSwap(c, c|tdComplete) {
			break
		}
	}

	release := td.lockWaker()
	w := td.waker
	td.waker = nil
	release()

	if w != nil {
		w.Wake()
	}
}
