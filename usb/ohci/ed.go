// OHCI Endpoint Descriptor
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

	"github.com/usbarmory/tamago-usbhost/dma"
)

// EDSize is the fixed hardware size in bytes of an Endpoint Descriptor
// (OHCI Specification §4.2).
const EDSize = 16

// Endpoint Descriptor control word hardware bit positions (OHCI §4.2.1).
const (
	edFunctionAddrShift = 0  // bits 0:6
	edEndpointShift     = 7  // bits 7:10
	edDirectionShift    = 11 // bits 11:12
	edSpeedBit          = 1 << 13
	edSkipBit           = 1 << 14
	edFormatBit         = 1 << 15
	edMaxPacketShift    = 16 // bits 16:26
)

// ED control-word bits 27:31 are reserved by the OHCI hardware format and
// are repurposed here as a software allocation/lock protocol, so that the
// same word an interrupt handler may be inspecting for hardware status can
// also be claimed and released with a single CAS rather than a separate
// mutex over the same cache line.
const (
	edFlagAlloc  uint32 = 1 << 30
	edFlagLocked uint32 = 1 << 31
)

// ED is the 16-byte, hardware-visible Endpoint Descriptor. Its four words
// are accessed with atomic loads/stores/CAS throughout, since the OHCI
// itself concurrently reads HeadP/TailP to walk the transfer it owns while
// software may be linking/unlinking the ED from an endpoint list.
type ED struct {
	Control atomic.Uint32
	TailP   atomic.Uint32
	HeadP   atomic.Uint32 // bit0 Halt, bit1 toggleCarry, bits4:31 address
	NextED  atomic.Uint32
}

// edAt overlays an ED onto DMA-resident memory. size(ED) is 16 bytes with
// no implicit padding (four naturally-aligned atomic.Uint32 words), so the
// cast faithfully mirrors the hardware layout.
func edAt(buf []byte) *ED {
	return (*ED)(unsafe.Pointer(&buf[0]))
}

// AllocED reserves a fresh ED from the DMA region and marks it allocated.
// It panics if the freshly reserved memory is non-zero, which would
// indicate a DMA region bug rather than a recoverable condition.
func AllocED(region *dma.Region) (addr uint32, ed *ED) {
	addr, buf := region.Reserve(EDSize, 16)
	ed = edAt(buf)

	if !ed.Control.CompareAndSwap(0, edFlagAlloc) {
		panic("ohci: freshly reserved ED is not zeroed")
	}

	return addr, ed
}

// FreeED releases an ED back to the DMA region. It panics if the ED is
// still locked (an interrupt handler might be mid-dispatch against it) or
// was already freed, mirroring the double-free invariant panics elsewhere
// in this module.
func FreeED(region *dma.Region, addr uint32, ed *ED) {
	for {
		c := ed.Control.Load()

		if c&edFlagLocked != 0 {
			panic("ohci: free of locked ED")
		}
		if c&edFlagAlloc == 0 {
			panic("ohci: double free of ED")
		}
		if ed.Control.CompareAndSwap(c, 0) {
			break
		}
	}

	ed.TailP.Store(0)
	ed.HeadP.Store(0)
	ed.NextED.Store(0)

	region.Release(addr)
}

// Configure sets the hardware-visible endpoint identity fields of the ED:
// function (device) address, endpoint number, direction (0 = from TD, 1 =
// OUT, 2 = IN), low-speed flag and max packet size. Skip and the TD queue
// pointers are left untouched.
func (ed *ED) Configure(function, endpoint uint8, direction int, lowSpeed bool, maxPacketSize int) {
	v := uint32(function&0x7f)<<edFunctionAddrShift |
		uint32(endpoint&0x0f)<<edEndpointShift |
		uint32(direction&0x3)<<edDirectionShift |
		uint32(maxPacketSize&0x7ff)<<edMaxPacketShift

	if lowSpeed {
		v |= edSpeedBit
	}

	for {
		c := ed.Control.Load()
		next := v | (c & (edFlagAlloc | edFlagLocked | edSkipBit))
		if ed.Control.CompareAndSwap(c, next) {
			return
		}
	}
}

// SetSkip sets or clears the Skip bit, causing the HC to bypass this ED
// without processing its TD queue.
func (ed *ED) SetSkip(skip bool) {
	for {
		c := ed.Control.Load()
		var next uint32
		if skip {
			next = c | edSkipBit
		} else {
			next = c &^ edSkipBit
		}
		if ed.Control.CompareAndSwap(c, next) {
			return
		}
	}
}

// Halted reports whether the HC has halted this ED's queue after a TD
// completed with an error (HeadP bit 0).
func (ed *ED) Halted() bool {
	return ed.HeadP.Load()&1 != 0
}

// ClearHalt clears the Halt bit, resuming queue processing, and resets the
// head pointer to headTD.
func (ed *ED) ClearHalt(headTD uint32) {
	for {
		c := ed.HeadP.Load()
		next := (headTD &^ 0x3) | (c & 0x2)
		if ed.HeadP.CompareAndSwap(c, next) {
			return
		}
	}
}
