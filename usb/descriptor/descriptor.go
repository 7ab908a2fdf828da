// USB descriptor parsing
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package descriptor parses concatenated USB descriptor bytes, as returned
// by a GET_DESCRIPTOR(Configuration) request, into typed variants. Records
// are TLV-like: the first byte is the record length, the second its type
// (p293-298, USB Specification Revision 2.0).
package descriptor

import (
	"encoding/binary"
	"errors"
	"unicode/utf16"
)

// Descriptor types (p279, Table 9-5, USB Specification Revision 2.0).
const (
	TypeDevice        = 0x01
	TypeConfiguration = 0x02
	TypeString        = 0x03
	TypeInterface     = 0x04
	TypeEndpoint      = 0x05
)

// Endpoint transfer types (p297, Table 9-13, USB Specification Revision 2.0).
const (
	EndpointControl = iota
	EndpointIsochronous
	EndpointBulk
	EndpointInterrupt
)

// ErrShort is returned when a record's declared length runs past the end of
// the buffer being parsed.
var ErrShort = errors.New("descriptor: short record")

// ErrStringDecode is returned when a String descriptor's UTF-16LE payload
// has an odd number of bytes. Unpaired surrogates are not rejected; they
// decode to U+FFFD.
var ErrStringDecode = errors.New("descriptor: invalid utf-16 string")

// Device is the standard device descriptor
// (p290, Table 9-8, USB Specification Revision 2.0).
type Device struct {
	USBVersion        uint16
	DeviceClass       uint8
	DeviceSubClass    uint8
	DeviceProtocol    uint8
	MaxPacketSize0    uint8
	VendorID          uint16
	ProductID         uint16
	DeviceVersion     uint16
	Manufacturer      uint8
	Product           uint8
	SerialNumber      uint8
	NumConfigurations uint8
}

// Configuration is the standard configuration descriptor header
// (p293, Table 9-10, USB Specification Revision 2.0). The interfaces and
// endpoints that follow it in the wire format are parsed separately via
// Iterate over the remainder of the GET_DESCRIPTOR(Configuration, full
// length) response.
type Configuration struct {
	TotalLength        uint16
	NumInterfaces      uint8
	ConfigurationValue uint8
	ConfigurationStr   uint8
	Attributes         uint8
	MaxPower           uint8
}

// Interface is the standard interface descriptor
// (p296, Table 9-12, USB Specification Revision 2.0).
type Interface struct {
	InterfaceNumber   uint8
	AlternateSetting  uint8
	NumEndpoints      uint8
	InterfaceClass    uint8
	InterfaceSubClass uint8
	InterfaceProtocol uint8
	InterfaceStr      uint8
}

// Endpoint is the standard endpoint descriptor
// (p297, Table 9-13, USB Specification Revision 2.0).
type Endpoint struct {
	Address          uint8
	Attributes       uint8
	MaxPacketSizeRaw uint16
	PollingInterval  uint8
}

// Number returns the endpoint number (the low 4 bits of Address).
func (e Endpoint) Number() uint8 {
	return e.Address & 0x0f
}

// In reports whether the endpoint is IN (bit 7 of Address).
func (e Endpoint) In() bool {
	return e.Address&0x80 != 0
}

// Type returns one of EndpointControl/Isochronous/Bulk/Interrupt, decoded
// from the low 2 bits of Attributes.
func (e Endpoint) Type() int {
	return int(e.Attributes & 0x03)
}

// MaxPacketSize returns the low 11 bits of the two-byte max packet size
// field.
func (e Endpoint) MaxPacketSize() uint16 {
	return e.MaxPacketSizeRaw & 0x07ff
}

// String is a decoded String descriptor; Value is empty when the payload
// is. The index 0 descriptor (the language ID list) is not told apart from
// other strings: its payload is decoded as text like any other.
type String struct {
	Value string
}

// Unknown carries a record of a type this package does not otherwise
// parse, along with its raw bytes (including the length/type header).
type Unknown struct {
	Type int
	Raw  []byte
}

// Record is the result of a single step of Iterator.Next: one of Device,
// Configuration, Interface, Endpoint, String or Unknown, selected by
// matching on its concrete type, e.g.:
//
//	switch v := rec.(type) {
//	case descriptor.Device: ...
//	case descriptor.Configuration: ...
//	}
type Record any

// Iterator walks a concatenated sequence of descriptor records, stopping at
// the end of the buffer or on a short/malformed record.
type Iterator struct {
	buf []byte
	err error
}

// NewIterator returns an Iterator over buf. Iteration never reads past
// len(buf) regardless of what any individual descriptor's internal length
// fields might claim beyond that.
func NewIterator(buf []byte) *Iterator {
	return &Iterator{buf: buf}
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Remaining returns the bytes not yet consumed.
func (it *Iterator) Remaining() []byte {
	return it.buf
}

// Next returns the next record, or nil at the end of the buffer or after an
// error (see Err).
func (it *Iterator) Next() Record {
	if it.err != nil || len(it.buf) == 0 {
		return nil
	}

	if len(it.buf) < 2 {
		it.err = ErrShort
		return nil
	}

	length := int(it.buf[0])
	typ := int(it.buf[1])

	if length < 2 || length > len(it.buf) {
		it.err = ErrShort
		return nil
	}

	raw := it.buf[:length]
	it.buf = it.buf[length:]

	switch typ {
	case TypeDevice:
		return parseDevice(raw, it)
	case TypeConfiguration:
		return parseConfiguration(raw, it)
	case TypeInterface:
		return parseInterface(raw, it)
	case TypeEndpoint:
		return parseEndpoint(raw, it)
	case TypeString:
		return parseString(raw, it)
	default:
		return Unknown{Type: typ, Raw: raw}
	}
}

func parseDevice(raw []byte, it *Iterator) Record {
	if len(raw) < 18 {
		it.err = ErrShort
		return nil
	}

	return Device{
		USBVersion:        binary.LittleEndian.Uint16(raw[2:4]),
		DeviceClass:       raw[4],
		DeviceSubClass:    raw[5],
		DeviceProtocol:    raw[6],
		MaxPacketSize0:    raw[7],
		VendorID:          binary.LittleEndian.Uint16(raw[8:10]),
		ProductID:         binary.LittleEndian.Uint16(raw[10:12]),
		DeviceVersion:     binary.LittleEndian.Uint16(raw[12:14]),
		Manufacturer:      raw[14],
		Product:           raw[15],
		SerialNumber:      raw[16],
		NumConfigurations: raw[17],
	}
}

func parseConfiguration(raw []byte, it *Iterator) Record {
	if len(raw) < 9 {
		it.err = ErrShort
		return nil
	}

	return Configuration{
		TotalLength:        binary.LittleEndian.Uint16(raw[2:4]),
		NumInterfaces:      raw[4],
		ConfigurationValue: raw[5],
		ConfigurationStr:   raw[6],
		Attributes:         raw[7],
		MaxPower:           raw[8],
	}
}

func parseInterface(raw []byte, it *Iterator) Record {
	if len(raw) < 9 {
		it.err = ErrShort
		return nil
	}

	return Interface{
		InterfaceNumber:   raw[2],
		AlternateSetting:  raw[3],
		NumEndpoints:      raw[4],
		InterfaceClass:    raw[5],
		InterfaceSubClass: raw[6],
		InterfaceProtocol: raw[7],
		InterfaceStr:      raw[8],
	}
}

func parseEndpoint(raw []byte, it *Iterator) Record {
	if len(raw) < 7 {
		it.err = ErrShort
		return nil
	}

	return Endpoint{
		Address:          raw[2],
		Attributes:       raw[3],
		MaxPacketSizeRaw: binary.LittleEndian.Uint16(raw[4:6]),
		PollingInterval:  raw[6],
	}
}

func parseString(raw []byte, it *Iterator) Record {
	payload := raw[2:]

	if len(payload)%2 != 0 {
		it.err = ErrStringDecode
		return nil
	}

	if len(payload) == 0 {
		return String{}
	}

	units := make([]uint16, len(payload)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(payload[i*2:])
	}

	return String{Value: string(utf16.Decode(units))}
}
