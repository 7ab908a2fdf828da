// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build tamago

package ohci

import "github.com/usbarmory/tamago-usbhost/internal/reg"

// MMIORegisters is the production Registers implementation, reading and
// writing the controller's register bank directly through its MMIO
// window. base is the physical address of HcRevision, as supplied by the
// platform's PCI/MMIO discovery glue (out of scope for this package).
type MMIORegisters struct {
	base uint32
}

// NewMMIORegisters returns a Registers backed by the MMIO window starting
// at base.
func NewMMIORegisters(base uint32) *MMIORegisters {
	return &MMIORegisters{base: base}
}

func (m *MMIORegisters) addr(r Reg) uint32 {
	return m.base + uint32(r)*4
}

func (m *MMIORegisters) Read(r Reg) uint32 {
	return reg.Read(m.addr(r))
}

func (m *MMIORegisters) Write(r Reg, val uint32) {
	reg.Write(m.addr(r), val)
}
