// USB endpoint wrappers
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import (
	"encoding/binary"

	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/usb/descriptor"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

// Standard USB requests used during enumeration (USB Specification
// Revision 2.0, Table 9-4).
const (
	requestGetDescriptor = 6
	requestSetAddress    = 5
	requestSetConfig     = 9
)

// encodeSetup builds the 8-byte SETUP packet every USB control transfer
// begins with (p248, Table 9-2, USB Specification Revision 2.0).
func encodeSetup(bmRequestType, bRequest byte, wValue, wIndex, wLength uint16) []byte {
	buf := make([]byte, 8)
	buf[0] = bmRequestType
	buf[1] = bRequest
	binary.LittleEndian.PutUint16(buf[2:4], wValue)
	binary.LittleEndian.PutUint16(buf[4:6], wIndex)
	binary.LittleEndian.PutUint16(buf[6:8], wLength)
	return buf
}

// decodeSetup is the inverse of encodeSetup, used by tests to assert the
// round-trip law and by any future device-mode gateway that needs to
// inspect a SETUP packet already on the wire.
func decodeSetup(buf []byte) (bmRequestType, bRequest byte, wValue, wIndex, wLength uint16) {
	return buf[0], buf[1],
		binary.LittleEndian.Uint16(buf[2:4]),
		binary.LittleEndian.Uint16(buf[4:6]),
		binary.LittleEndian.Uint16(buf[6:8])
}

// ControlEndpoint is the enumeration-time wrapper over a
// hostctrl.ControlEndpoint handle: it knows how to shape SETUP packets for
// the standard requests a device worker issues.
type ControlEndpoint struct {
	hc hostctrl.ControlEndpoint
}

// NewControlEndpoint wraps hc.
func NewControlEndpoint(hc hostctrl.ControlEndpoint) *ControlEndpoint {
	return &ControlEndpoint{hc: hc}
}

// ReadDescriptorRaw issues GET_DESCRIPTOR(descType, index) and reads up to
// len(buf) bytes into it, returning the number of bytes actually
// transferred. descType packs the same bitfields USB allows for
// class/vendor descriptor requests, not just the standard type byte: the
// request's bmRequestType is derived from its upper bits exactly as the
// device-side of this stack already does for non-standard descriptors.
func (c *ControlEndpoint) ReadDescriptorRaw(descType uint16, index uint8, buf []byte) (int, error) {
	bmRequestType := byte(0x80) | byte((descType>>8)&3)<<5 | byte((descType>>12)&3)
	header := encodeSetup(bmRequestType, requestGetDescriptor, descType<<8|uint16(index), 0, uint16(len(buf)))

	t := c.hc.InOnly(header, buf)
	async.Await(t)

	return t.Result()
}

// ReadDescriptor reads exactly the fixed-size standard descriptor typ into
// a buffer of the given size and parses its first record.
func (c *ControlEndpoint) ReadDescriptor(typ int, index uint8, size int) (descriptor.Record, error) {
	buf := make([]byte, size)

	n, err := c.ReadDescriptorRaw(uint16(typ), index, buf)
	if err != nil {
		return nil, err
	}

	it := descriptor.NewIterator(buf[:n])
	rec := it.Next()
	if rec == nil {
		return nil, it.Err()
	}

	return rec, nil
}

// ReadString reads and decodes string descriptor index.
func (c *ControlEndpoint) ReadString(index uint8) (string, error) {
	if index == 0 {
		return "", nil
	}

	buf := make([]byte, 255)

	n, err := c.ReadDescriptorRaw(uint16(descriptor.TypeString), index, buf)
	if err != nil {
		return "", err
	}

	it := descriptor.NewIterator(buf[:n])
	rec := it.Next()
	if rec == nil {
		return "", it.Err()
	}

	s, ok := rec.(descriptor.String)
	if !ok {
		return "", descriptor.ErrStringDecode
	}

	return s.Value, nil
}

// SetAddress issues SET_ADDRESS(addr) on this (necessarily address-0)
// endpoint.
func (c *ControlEndpoint) SetAddress(addr uint8) error {
	header := encodeSetup(0x00, requestSetAddress, uint16(addr), 0, 0)

	t := c.hc.OutOnly(header, nil)
	async.Await(t)

	_, err := t.Result()
	return err
}

// SetConfiguration issues SET_CONFIGURATION(value).
func (c *ControlEndpoint) SetConfiguration(value uint8) error {
	header := encodeSetup(0x00, requestSetConfig, uint16(value), 0, 0)

	t := c.hc.OutOnly(header, nil)
	async.Await(t)

	_, err := t.Result()
	return err
}

// InterruptEndpoint wraps a hostctrl.InterruptEndpoint handle.
type InterruptEndpoint struct {
	hc hostctrl.InterruptEndpoint
}

// Submit blocks until buf has been transferred, returning the byte count.
func (e *InterruptEndpoint) Submit(buf []byte) (int, error) {
	t := e.hc.Submit(buf)
	async.Await(t)
	return t.Result()
}

// BulkEndpoint wraps a hostctrl.BulkEndpoint handle.
type BulkEndpoint struct {
	hc hostctrl.BulkEndpoint
}

// Submit blocks until buf has been transferred, returning the byte count.
func (e *BulkEndpoint) Submit(buf []byte) (int, error) {
	t := e.hc.Submit(buf)
	async.Await(t)
	return t.Result()
}
