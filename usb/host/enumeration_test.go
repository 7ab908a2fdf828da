// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/usbarmory/tamago-usbhost/kthread"
	"github.com/usbarmory/tamago-usbhost/usb/descriptor"
)

// buildDeviceDescriptor returns a canned 18-byte standard device descriptor
// for a device with a single configuration and no string descriptors.
func buildDeviceDescriptor() []byte {
	b := make([]byte, 18)
	b[0] = 18
	b[1] = descriptor.TypeDevice
	binary.LittleEndian.PutUint16(b[2:4], 0x0200)
	b[4], b[5], b[6] = 0, 0, 0
	b[7] = 64
	binary.LittleEndian.PutUint16(b[8:10], 0x1d6b)
	binary.LittleEndian.PutUint16(b[10:12], 0x0002)
	binary.LittleEndian.PutUint16(b[12:14], 0x0100)
	b[14], b[15], b[16] = 0, 0, 0 // no manufacturer/product/serial strings
	b[17] = 1
	return b
}

// buildConfigBlob returns a configuration descriptor followed by a single
// interface descriptor (class/subclass/protocol with no registered driver)
// and one bulk IN endpoint descriptor, matching the layout a real
// GET_DESCRIPTOR(Configuration, full length) response has.
func buildConfigBlob() []byte {
	const (
		cfgLen = 9
		ifLen  = 9
		epLen  = 7
	)
	total := cfgLen + ifLen + epLen

	b := make([]byte, total)

	// Configuration header.
	b[0] = cfgLen
	b[1] = descriptor.TypeConfiguration
	binary.LittleEndian.PutUint16(b[2:4], uint16(total))
	b[4] = 1    // NumInterfaces
	b[5] = 1    // ConfigurationValue
	b[6] = 0    // ConfigurationStr
	b[7] = 0x80 // Attributes (bus powered)
	b[8] = 50   // MaxPower

	// Interface descriptor: vendor-specific class, no registered driver.
	off := cfgLen
	b[off+0] = ifLen
	b[off+1] = descriptor.TypeInterface
	b[off+2] = 0 // InterfaceNumber
	b[off+3] = 0 // AlternateSetting
	b[off+4] = 1 // NumEndpoints
	b[off+5] = 0xff
	b[off+6] = 0x00
	b[off+7] = 0x00
	b[off+8] = 0 // InterfaceStr

	// Endpoint descriptor: bulk IN, endpoint 1, 512-byte max packet.
	off += ifLen
	b[off+0] = epLen
	b[off+1] = descriptor.TypeEndpoint
	b[off+2] = 0x81 // Address: IN, endpoint 1
	b[off+3] = 0x02 // Attributes: bulk
	binary.LittleEndian.PutUint16(b[off+4:off+6], 512)
	b[off+6] = 0 // PollingInterval

	return b
}

// TestEnumerationBindsUnknownInterface drives the full port-connect to
// enumeration sequence against a fake controller and asserts the result is
// an unbound (no registered class driver) interface with its endpoint and
// raw descriptor bytes retained, matching the device-connect-enumerate
// scenario.
func TestEnumerationBindsUnknownInterface(t *testing.T) {
	fc := newFakeController(1)

	deviceDesc := buildDeviceDescriptor()
	configBlob := buildConfigBlob()

	// respond only needs to cover InOnly (GET_DESCRIPTOR); SET_ADDRESS and
	// SET_CONFIGURATION go through OutOnly, which fakeControlHC always
	// acknowledges.
	fc.device.respond = func(header []byte, buf []byte) (int, error) {
		_, bRequest, wValue, _, _ := decodeSetup(header)
		if bRequest != requestGetDescriptor {
			return 0, nil
		}

		switch byte(wValue >> 8) {
		case descriptor.TypeDevice:
			return copy(buf, deviceDesc), nil
		case descriptor.TypeConfiguration:
			return copy(buf, configBlob), nil
		}
		return 0, nil
	}

	h := NewHost(fc, 1, kthread.Goroutines{})

	fc.signalConnect(0)

	slot := h.enumerateForTest(t, fc)

	if slot.err != nil {
		t.Fatalf("enumeration failed: %v", slot.err)
	}
	if slot.device.VendorID != 0x1d6b {
		t.Fatalf("VendorID = %#x, want 0x1d6b", slot.device.VendorID)
	}
	if len(slot.interfaces) != 1 {
		t.Fatalf("got %d interfaces, want 1", len(slot.interfaces))
	}

	ifc := slot.interfaces[0]
	if ifc.Bound {
		t.Fatalf("interface unexpectedly bound to a driver")
	}
	if len(ifc.Endpoints) != 1 {
		t.Fatalf("got %d endpoints, want 1", len(ifc.Endpoints))
	}
	if ifc.Endpoints[0].Number() != 1 || !ifc.Endpoints[0].In() {
		t.Fatalf("unexpected endpoint: %+v", ifc.Endpoints[0])
	}
	if len(ifc.Raw) == 0 {
		t.Fatalf("raw descriptor bytes not retained")
	}
}

// enumerateForTest drives the root-event handling directly (bypassing the
// perpetual rootEventTask/async.Run loop, which this test has no need to
// spin up) and waits for the spawned device worker to signal completion.
func (h *Host) enumerateForTest(t *testing.T, fc *fakeController) *deviceWorkerSlot {
	t.Helper()

	// Handle the port 0 change that signalConnect set up, without
	// consuming the fake controller's queued RootWait.
	h.handleRootEvent(0)

	var slot *deviceWorkerSlot
	deadline := time.Now().Add(2 * time.Second)
	for slot == nil {
		h.workersMu.Lock()
		for a := 1; a < maxAddress; a++ {
			if h.workers[a] != nil {
				slot = h.workers[a]
				break
			}
		}
		h.workersMu.Unlock()
		if slot != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("device worker never started")
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-slot.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("device worker never completed enumeration")
	}

	return slot
}
