// IRQ binding table
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package irq implements a global IRQ binding table: a fixed-length ordered
// sequence of optional (handler, context) bindings indexed by Global System
// Interrupt number. Binding is exclusive per slot and handler invocation is
// serialized per slot — a re-entrant fire is dropped rather than blocking.
// The try-lock is one flag per slot shared by all CPUs, so a fire of the
// same GSI on any CPU while its handler runs is dropped, not only one on
// the same CPU.
//
// Discovering the active GSI is left to the architecture code that calls
// Dispatch, and acknowledging it at the interrupt controller to the
// handler; the Controller contract below only enables a GSI. This package
// owns the slot table and the re-entrancy guard.
package irq

import (
	"errors"
	"sync/atomic"
)

var (
	// ErrOutOfRange is returned by BindGSI when gsi is not a valid index
	// into the table.
	ErrOutOfRange = errors.New("irq: gsi out of range")

	// ErrAlreadyBound is returned by BindGSI when the slot already holds
	// a binding; rebinding requires an explicit Unbind first.
	ErrAlreadyBound = errors.New("irq: gsi already bound")
)

// Controller is the narrow architecture interrupt-binding contract this
// package consumes: enabling delivery of a GSI. Acknowledging the
// controller once a handler runs is
// the handler's own responsibility (it must not block and must acknowledge
// the controller, per the binding contract).
type Controller interface {
	// Enable unmasks delivery of gsi at the controller.
	Enable(gsi int) error
}

// Handler is invoked with the opaque context pointer supplied at bind time.
// It must not block.
type Handler func(info any)

type binding struct {
	handler Handler
	info    any
}

// Handle identifies a successful binding, as returned from BindGSI; it is
// what Unbind takes to clear the slot again.
type Handle struct {
	gsi int
}

// Table is a fixed-length IRQ binding table. The zero value is not usable;
// construct with NewTable.
type Table struct {
	ctrl     Controller
	slots    []atomic.Pointer[binding]
	cpuLocks []atomic.Uint32
}

// NewTable allocates a table covering GSIs [0, size) and bound to ctrl for
// enabling interrupts at bind time.
func NewTable(size int, ctrl Controller) *Table {
	return &Table{
		ctrl:     ctrl,
		slots:    make([]atomic.Pointer[binding], size),
		cpuLocks: make([]atomic.Uint32, size),
	}
}

// BindGSI registers handler for gsi, enabling it at the controller on
// success. It fails if gsi is out of range or the slot is already bound.
func (t *Table) BindGSI(gsi int, handler Handler, info any) (*Handle, error) {
	if gsi < 0 || gsi >= len(t.slots) {
		return nil, ErrOutOfRange
	}

	b := &binding{handler: handler, info: info}

	if !t.slots[gsi].CompareAndSwap(nil, b) {
		return nil, ErrAlreadyBound
	}

	if t.ctrl != nil {
		if err := t.ctrl.Enable(gsi); err != nil {
			t.slots[gsi].Store(nil)
			return nil, err
		}
	}

	return &Handle{gsi: gsi}, nil
}

// Unbind clears a previously bound slot, allowing a future BindGSI to
// succeed on it.
func (t *Table) Unbind(h *Handle) {
	t.slots[h.gsi].Store(nil)
}

// Dispatch is the single entry point the architecture's interrupt vector
// calls (conventionally from a C-ABI `interrupt_handler` trampoline) once it
// has queried the active GSI from the interrupt controller. An unknown GSI
// number is silently dropped. Re-entrancy on the same CPU — the controller
// re-asserting the same GSI before the first invocation returned — is also
// dropped via the per-slot try-lock below.
func (t *Table) Dispatch(gsi int) {
	if gsi < 0 || gsi >= len(t.slots) {
		return
	}

	lock := &t.cpuLocks[gsi]

	if !lock.CompareAndSwap(0, 1) {
		// Same slot re-entered before the prior invocation finished on
		// this CPU; drop it.
		return
	}
	defer lock.Store(0)

	b := t.slots[gsi].Load()
	if b == nil {
		return
	}

	b.handler(b.info)
}
