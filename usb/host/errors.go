// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import "errors"

// ErrAddressExhausted is returned by Host when the address pool has no
// free addresses left to hand to a newly connected device.
var ErrAddressExhausted = errors.New("host: address pool exhausted")

// ErrDriverNotFound is a non-fatal outcome of interface binding: no
// registered Driver claims the interface's (class, subclass, protocol)
// triple, so the interface is retained as Unknown rather than bound.
var ErrDriverNotFound = errors.New("host: no driver for interface")

// Transfer failures (ohci.ErrTransferFailed) and descriptor parse/string
// errors (descriptor.ErrShort, descriptor.ErrStringDecode) are surfaced
// directly from the packages that detect them rather than re-wrapped
// here, so callers can compare against a single canonical sentinel
// regardless of which host-controller driver or descriptor routine
// produced it.
