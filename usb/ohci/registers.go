// OHCI register bank
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package ohci implements the Open Host Controller Interface descriptor
// rings (ED/TD), the Host Controller Communication Area, and the register
// bank layout (OHCI Specification for USB, Release 1.0a), along with the
// atomic flags-as-lock completion protocol used to hand transfer
// descriptors between software and hardware without a separate mutex over
// the same cache line. Driver ties this layout to the usb/hostctrl
// capability contract; discovering and mapping the controller's MMIO
// registers on a particular bus (PCI, platform) is the caller's job — this
// package is handed a register base address and a backing dma.Region.
package ohci

// Reg indexes the 32-bit OHCI operational and root hub register bank,
// one register per 4-byte slot starting at the controller's register base.
type Reg int

const (
	HcRevision Reg = iota
	HcControl
	HcCommandStatus
	HcInterruptStatus
	HcInterruptEnable
	HcInterruptDisable

	HcHCCA
	HcPeriodCurrentED
	HcControlHeadED
	HcControlCurrentED
	HcBulkHeadED
	HcBulkCurrentED
	HcDoneHead

	HcFmInterval
	HcFmRemaining
	HcFmNumber
	HcPeriodicStart
	HcLSThreshold

	// bits 0:7 = NDP (Number of Downstream Ports, max 15)
	HcRhDescriptorA
	HcRhDescriptorB
	HcRhStatus
	HcRhPortStatus0
	HcRhPortStatus1
	HcRhPortStatus2
	HcRhPortStatus3
	HcRhPortStatus4
	HcRhPortStatus5
	HcRhPortStatus6
	HcRhPortStatus7
	HcRhPortStatus8
	HcRhPortStatus9
	HcRhPortStatus10
	HcRhPortStatus11
	HcRhPortStatus12
	HcRhPortStatus13
	HcRhPortStatus14
	HcRhPortStatus15
)

// HcCommandStatus bits.
const (
	HCCmdStatusHCR uint32 = 1 << 0 // HostControllerReset
	HCCmdStatusCLF uint32 = 1 << 1 // ControlListFilled
	HCCmdStatusBLF uint32 = 1 << 2 // BulkListFilled
	HCCmdStatusOCR uint32 = 1 << 3 // OwnershipChangeRequest
)

// Root hub port status bits (HcRhPortStatus*), USB 2.0 chapter 11 /
// OHCI Specification §7.4.4.
const (
	PortCurrentConnectStatus = 0
	PortEnableStatus         = 1
	PortSuspendStatus        = 2
	PortOverCurrentIndicator = 3
	PortResetStatus          = 4
	PortPowerStatus          = 8
	PortLowSpeedDeviceAttached = 9
	PortConnectStatusChange  = 16
	PortEnableStatusChange   = 17
	PortSuspendStatusChange  = 18
	PortOverCurrentIndicatorChange = 19
	PortResetStatusChange    = 20
)

// HCCA is the Host Controller Communication Area: a 256-byte DMA block the
// OHCI writes status into (OHCI Specification §4.4). Laid out bit-exact:
// a 32-entry interrupt table, a 16-bit frame number, padding, the done-head
// pointer, and reserved bytes filling out the block to 256 bytes.
type HCCA struct {
	InterruptTable [32]uint32 // offset 0,   128 bytes
	FrameNumber    uint16     // offset 128
	pad            uint16     // offset 130
	DoneHead       uint32     // offset 132
	Reserved       [116]byte  // offset 136, pads to 256
}

// HCCASize is the fixed size in bytes of the HCCA block.
const HCCASize = 256

// Registers abstracts the 32-bit operational/root-hub register bank so
// that Driver can be exercised on the host: production code reads this
// from a real MMIO window (see NewMMIORegisters, tamago builds only),
// while tests supply an in-memory fake.
type Registers interface {
	Read(r Reg) uint32
	Write(r Reg, val uint32)
}

// portReg returns the root hub port status register for port (0-indexed).
func portReg(port int) Reg {
	return HcRhPortStatus0 + Reg(port)
}
