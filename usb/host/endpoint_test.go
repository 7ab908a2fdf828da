// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import "testing"

func TestSetupPacketRoundTrip(t *testing.T) {
	cases := []struct {
		bmRequestType, bRequest byte
		wValue, wIndex, wLength uint16
	}{
		{0x80, 6, 0x0100, 0x0000, 18},
		{0x00, 5, 5, 0, 0},
		{0x80, 6, 0x0302, 0x0409, 255},
	}

	for _, c := range cases {
		buf := encodeSetup(c.bmRequestType, c.bRequest, c.wValue, c.wIndex, c.wLength)
		if len(buf) != 8 {
			t.Fatalf("encodeSetup produced %d bytes, want 8", len(buf))
		}

		bmRequestType, bRequest, wValue, wIndex, wLength := decodeSetup(buf)
		if bmRequestType != c.bmRequestType || bRequest != c.bRequest ||
			wValue != c.wValue || wIndex != c.wIndex || wLength != c.wLength {
			t.Fatalf("round trip = %+v, want %+v",
				struct{ A, B byte; C, D, E uint16 }{bmRequestType, bRequest, wValue, wIndex, wLength},
				c)
		}
	}
}

func TestReadDescriptorRawRequestShape(t *testing.T) {
	// GET_DESCRIPTOR(Device) must produce the standard bmRequestType 0x80
	// (IN | standard | device) when the descriptor type's upper bits are
	// all zero, as they are for every standard descriptor type.
	c := &ControlEndpoint{hc: &fakeControlHC{}}

	buf := make([]byte, 18)
	c.ReadDescriptorRaw(0x01, 0, buf)

	h := c.hc.(*fakeControlHC).lastHeader
	bmRequestType, bRequest, wValue, wIndex, wLength := decodeSetup(h)

	if bmRequestType != 0x80 {
		t.Fatalf("bmRequestType = %#x, want 0x80", bmRequestType)
	}
	if bRequest != requestGetDescriptor {
		t.Fatalf("bRequest = %d, want %d", bRequest, requestGetDescriptor)
	}
	if wValue != 0x0100 {
		t.Fatalf("wValue = %#x, want 0x0100", wValue)
	}
	if wIndex != 0 || wLength != 18 {
		t.Fatalf("wIndex/wLength = %d/%d, want 0/18", wIndex, wLength)
	}
}
