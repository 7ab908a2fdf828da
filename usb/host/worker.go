// Port/device worker
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import (
	"time"

	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/usb/descriptor"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

const (
	resetAssertDelay = 50 * time.Millisecond
	resetSettleDelay = 2 * time.Millisecond
)

// runPortWorker performs the full reset/address/enumerate sequence for a
// newly connected device at root port, then records the outcome in slot.
// It runs on its own goroutine (spawned by Host.signalConnected) and owns
// addr for its entire lifetime.
func (h *Host) runPortWorker(port int, addr uint8, slot *deviceWorkerSlot) {
	defer close(slot.done)
	defer h.releaseDevice(addr)

	release := h.acquireAddressZero()

	if !h.Controller.GetPortFeature(port, hostctrl.FeaturePower) {
		// Open question in the source (§9): policy on port power-off at
		// boot. This rewrite's choice: power the port on unconditionally
		// before continuing enumeration, since a powered-off port can
		// never complete reset.
		h.Controller.SetPortFeature(port, hostctrl.FeaturePower)
	}

	h.Controller.SetPortFeature(port, hostctrl.FeatureReset)
	async.Await(async.Msleep(resetAssertDelay))
	h.Controller.ClearPortFeature(port, hostctrl.FeatureReset)
	async.Await(async.Msleep(resetSettleDelay))
	h.Controller.ClearPortFeature(port, hostctrl.FeatureCReset)

	h.Controller.SetPortFeature(port, hostctrl.FeatureEnable)
	h.Controller.ClearPortFeature(port, hostctrl.FeatureCEnable)

	if err := h.ep0.SetAddress(addr); err != nil {
		release()
		slot.err = err
		h.logger.Printf("port %d addr %d: SET_ADDRESS: %v", port, addr, err)
		return
	}

	release()

	ctrl := NewControlEndpoint(h.Controller.InitControl(hostctrl.EndpointAddr{Device: addr, Endpoint: 0}, 64))

	devRec, err := ctrl.ReadDescriptor(descriptor.TypeDevice, 0, 18)
	if err != nil {
		slot.err = err
		h.logger.Printf("port %d addr %d: device descriptor: %v", port, addr, err)
		return
	}

	dev, ok := devRec.(descriptor.Device)
	if !ok {
		slot.err = ErrDriverNotFound // unreachable in practice; descriptor type mismatch
		return
	}
	slot.device = dev

	ctrl.ReadString(dev.Manufacturer)
	ctrl.ReadString(dev.Product)
	ctrl.ReadString(dev.SerialNumber)

	var chosen descriptor.Configuration

	for i := uint8(0); i < dev.NumConfigurations; i++ {
		cfgRec, err := ctrl.ReadDescriptor(descriptor.TypeConfiguration, i, 9)
		if err != nil {
			slot.err = err
			h.logger.Printf("port %d addr %d: config[%d] header: %v", port, addr, i, err)
			return
		}

		cfg, ok := cfgRec.(descriptor.Configuration)
		if !ok {
			continue
		}

		ctrl.ReadString(cfg.ConfigurationStr)

		if i == 0 {
			chosen = cfg
		}
	}

	blob := make([]byte, chosen.TotalLength)

	n, err := ctrl.ReadDescriptorRaw(uint16(descriptor.TypeConfiguration), 0, blob)
	if err != nil {
		slot.err = err
		h.logger.Printf("port %d addr %d: full config blob: %v", port, addr, err)
		return
	}

	if err := ctrl.SetConfiguration(chosen.ConfigurationValue); err != nil {
		slot.err = err
		h.logger.Printf("port %d addr %d: SET_CONFIGURATION: %v", port, addr, err)
		return
	}

	slot.interfaces = h.bindInterfaces(addr, ctrl, blob[:n])
}

// bindInterfaces walks the concatenated interface/endpoint records in blob
// (the full configuration descriptor; its leading Configuration record is
// skipped), grouping each Interface
// descriptor with the Endpoint descriptors that follow it until the next
// Interface record or the end of the blob (§4.8 step 11).
func (h *Host) bindInterfaces(addr uint8, ctrl *ControlEndpoint, blob []byte) []Interface {
	it := descriptor.NewIterator(blob)
	consumed := func() int { return len(blob) - len(it.Remaining()) }

	var out []Interface
	var current *Interface
	var currentRaw int

	flush := func() {
		if current != nil {
			current.Raw = blob[currentRaw:consumed()]
			out = append(out, *current)
		}
	}

	for {
		start := consumed()

		rec := it.Next()
		if rec == nil {
			break
		}

		switch v := rec.(type) {
		case descriptor.Interface:
			flush()
			current = &Interface{Descriptor: v}
			currentRaw = start
		case descriptor.Endpoint:
			if current != nil {
				current.Endpoints = append(current.Endpoints, v)
			}
		default:
			// Class-specific / unknown records between an Interface and
			// its Endpoints are retained as part of that interface's Raw
			// span but otherwise ignored.
		}
	}
	flush()

	for i := range out {
		ifc := &out[i]

		driver, found := FindDriver(ifc.Descriptor.InterfaceClass, ifc.Descriptor.InterfaceSubClass, ifc.Descriptor.InterfaceProtocol)
		if !found {
			continue
		}

		caps := h.buildCapabilities(addr, ctrl, ifc)

		ifc.Bound = true
		h.spawner.Spawn("usb-interface-driver", func() {
			driver.Start(caps)
		})
	}

	return out
}

func (h *Host) buildCapabilities(addr uint8, ctrl *ControlEndpoint, ifc *Interface) Capabilities {
	caps := Capabilities{
		Device:     addr,
		Interface:  ifc.Descriptor,
		Control:    ctrl,
		Interrupts: map[uint8]*InterruptEndpoint{},
		Bulk:       map[uint8]*BulkEndpoint{},
	}

	for _, ep := range ifc.Endpoints {
		epAddr := hostctrl.EndpointAddr{Device: addr, Endpoint: ep.Number()}

		switch ep.Type() {
		case descriptor.EndpointBulk:
			caps.Bulk[ep.Number()] = &BulkEndpoint{hc: h.Controller.InitBulk(epAddr, int(ep.MaxPacketSize()))}
		case descriptor.EndpointInterrupt:
			caps.Interrupts[ep.Number()] = &InterruptEndpoint{hc: h.Controller.InitInterrupt(epAddr, int(ep.MaxPacketSize()), 1)}
		}
	}

	return caps
}
