// USB host-controller capability
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package hostctrl defines the abstract contract every USB host-controller
// driver (OHCI, EHCI, xHCI, ...) implements: endpoint initialization, root
// port feature get/set/clear, and an async wait for root hub change events.
// The USB host stack in package usb/host is written entirely against this
// interface; usb/ohci is one concrete implementation of it.
package hostctrl

import "github.com/usbarmory/tamago-usbhost/async"

// PortFeature enumerates the per-port control/status bits defined by USB
// 2.0 chapter 11.
type PortFeature int

const (
	FeatureConnection PortFeature = iota
	FeatureEnable
	FeatureSuspend
	FeatureOverCurrent
	FeatureReset
	FeaturePower
	FeatureLowSpeed
	FeatureCConnection
	FeatureCEnable
	FeatureCSuspend
	FeatureCOverCurrent
	FeatureCReset
)

// EndpointAddr identifies an endpoint by device address and endpoint
// number.
type EndpointAddr struct {
	Device   uint8
	Endpoint uint8
}

// ControlEndpoint is the capability exposed by a host-controller driver for
// a control endpoint: SETUP-header-prefixed IN and OUT transfers.
type ControlEndpoint interface {
	// InOnly issues header followed by an IN data stage into buf,
	// resolving to the number of bytes actually received.
	InOnly(header []byte, buf []byte) Transfer

	// OutOnly issues header followed by an OUT data stage from data,
	// resolving to the number of bytes actually sent.
	OutOnly(header []byte, data []byte) Transfer
}

// InterruptEndpoint is the capability for a periodic interrupt endpoint.
type InterruptEndpoint interface {
	// Submit queues buf for transfer, resolving to the number of bytes
	// transferred.
	Submit(buf []byte) Transfer
}

// BulkEndpoint is the capability for a bulk endpoint.
type BulkEndpoint interface {
	// Submit queues buf for transfer, resolving to the number of bytes
	// transferred.
	Submit(buf []byte) Transfer
}

// Transfer is a Future resolving to the number of bytes moved, or an error
// if the controller reported a transfer failure (e.g. a non-zero OHCI
// Condition Code).
type Transfer interface {
	async.Future
	// Result is only meaningful once Poll has returned async.Ready.
	Result() (n int, err error)
}

// RootWait is a Future resolving to the index of a root port that asserted
// a change bit.
type RootWait interface {
	async.Future
	// Port is only meaningful once Poll has returned async.Ready.
	Port() int
}

// Controller is the abstract contract every host-controller driver
// implements.
type Controller interface {
	// InitControl returns a handle for the control endpoint at addr,
	// with the given max packet size.
	InitControl(addr EndpointAddr, maxPacketSize int) ControlEndpoint

	// InitInterrupt returns a handle for the interrupt endpoint at addr,
	// polled every pollingInterval (frames).
	InitInterrupt(addr EndpointAddr, maxPacketSize int, pollingInterval int) InterruptEndpoint

	// InitBulk returns a handle for the bulk endpoint at addr.
	InitBulk(addr EndpointAddr, maxPacketSize int) BulkEndpoint

	// SetPortFeature sets feat on root port.
	SetPortFeature(port int, feat PortFeature)

	// ClearPortFeature clears feat on root port.
	ClearPortFeature(port int, feat PortFeature)

	// GetPortFeature reads feat on root port.
	GetPortFeature(port int, feat PortFeature) bool

	// AsyncWaitRoot returns a Future completing when any root port
	// change bit is asserted.
	AsyncWaitRoot() RootWait
}
