// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import "testing"

// TestAddressPoolScenario exercises the exact sequence from this module's
// connect/enumeration specification: allocate, allocate, release the
// first, allocate again (expecting the cursor to have moved on rather
// than reusing the just-released address).
func TestAddressPoolScenario(t *testing.T) {
	p := NewAddressPool()

	a, ok := p.Allocate()
	if !ok || a != 1 {
		t.Fatalf("first Allocate() = (%d, %v), want (1, true)", a, ok)
	}

	b, ok := p.Allocate()
	if !ok || b != 2 {
		t.Fatalf("second Allocate() = (%d, %v), want (2, true)", b, ok)
	}

	p.Release(1)

	c, ok := p.Allocate()
	if !ok || c != 3 {
		t.Fatalf("third Allocate() = (%d, %v), want (3, true)", c, ok)
	}
}

func TestAddressPoolExhaustion(t *testing.T) {
	p := NewAddressPool()

	for i := 1; i <= 127; i++ {
		if a, ok := p.Allocate(); !ok || int(a) != i {
			t.Fatalf("Allocate() #%d = (%d, %v), want (%d, true)", i, a, ok, i)
		}
	}

	if a, ok := p.Allocate(); ok {
		t.Fatalf("Allocate() after exhaustion = (%d, true), want ok=false", a)
	}
}

func TestAddressPoolReuseAfterRelease(t *testing.T) {
	p := NewAddressPool()

	for i := 1; i <= 127; i++ {
		p.Allocate()
	}

	p.Release(64)

	if a, ok := p.Allocate(); !ok || a != 64 {
		t.Fatalf("Allocate() after release = (%d, %v), want (64, true)", a, ok)
	}
}

func TestAddressPoolNeverReturnsZero(t *testing.T) {
	p := NewAddressPool()

	for i := 0; i < 200; i++ {
		if a, ok := p.Allocate(); ok && a == 0 {
			t.Fatalf("Allocate() returned address 0")
		}
	}
}
