// USB device address pool
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package host

import "sync"

// AddressPool hands out USB device addresses in the range 1..=127 (address
// 0 is reserved for enumeration over EP0 and is never returned). It probes
// forward from a cursor and wraps around, so a freshly released address is
// not immediately reused while the cursor has room ahead of it.
type AddressPool struct {
	mu     sync.Mutex
	nextID uint8
	inUse  [2]uint64 // bit i holds whether address i is allocated, i in 1..127
}

// NewAddressPool returns a pool with no addresses allocated.
func NewAddressPool() *AddressPool {
	return &AddressPool{nextID: 1}
}

func (p *AddressPool) test(id uint8) bool {
	return p.inUse[id/64]&(1<<(id%64)) != 0
}

func (p *AddressPool) set(id uint8) {
	p.inUse[id/64] |= 1 << (id % 64)
}

func (p *AddressPool) clear(id uint8) {
	p.inUse[id/64] &^= 1 << (id % 64)
}

// Allocate returns the next free address and true, or (0, false) if all
// 127 addresses are in use.
func (p *AddressPool) Allocate() (uint8, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := p.nextID
	if start < 1 || start > 127 {
		start = 1
	}

	id := start
	for {
		if !p.test(id) {
			p.set(id)

			p.nextID = id + 1
			if p.nextID > 127 {
				p.nextID = 1
			}

			return id, true
		}

		id++
		if id > 127 {
			id = 1
		}
		if id == start {
			return 0, false
		}
	}
}

// Release returns id to the pool. Releasing an address that was not
// allocated is a no-op.
func (p *AddressPool) Release(id uint8) {
	if id < 1 || id > 127 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clear(id)
}
