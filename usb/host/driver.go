// Class driver binding
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import (
	"sync"

	"github.com/usbarmory/tamago-usbhost/usb/descriptor"
)

// Capabilities is what a bound class driver receives to do its own I/O:
// the endpoint handles the device worker already initialized for this
// interface, keyed by endpoint number. No back-pointer to Host is handed
// out, following this module's preference for a capability object over an
// upward pointer into the host.
type Capabilities struct {
	Device     uint8
	Interface  descriptor.Interface
	Control    *ControlEndpoint
	Interrupts map[uint8]*InterruptEndpoint
	Bulk       map[uint8]*BulkEndpoint
}

// Driver is a registered class driver. Start is called once, immediately
// after binding, on a goroutine of its own spawned by the device worker
// through the host's kthread.Spawner.
type Driver interface {
	Start(caps Capabilities)
}

// driverKey packs (class, subclass, protocol) into a single lookup key,
// matching (class<<16)|(subclass<<8)|protocol.
func driverKey(class, subclass, protocol uint8) uint32 {
	return uint32(class)<<16 | uint32(subclass)<<8 | uint32(protocol)
}

var (
	registryMu sync.Mutex
	registry   = map[uint32]Driver{}
)

// RegisterDriver binds d to the given (class, subclass, protocol) triple.
// Intended to be called from a driver package's init(), mirroring the
// module-registration convention used elsewhere in this tree.
func RegisterDriver(class, subclass, protocol uint8, d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[driverKey(class, subclass, protocol)] = d
}

// FindDriver looks up a registered driver for (class, subclass, protocol).
func FindDriver(class, subclass, protocol uint8) (Driver, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()

	d, ok := registry[driverKey(class, subclass, protocol)]
	return d, ok
}

// Interface is the outcome of binding a single interface found while
// walking a device's configuration descriptor: either a registered class
// driver claimed it (Bound), or it didn't and the raw descriptor data is
// retained for inspection (Unknown).
type Interface struct {
	Descriptor descriptor.Interface
	Endpoints  []descriptor.Endpoint
	Raw        []byte
	Bound      bool
}
