// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ohci

import (
	"errors"

	"github.com/usbarmory/tamago-usbhost/async"
	"github.com/usbarmory/tamago-usbhost/usb/hostctrl"
)

// ErrTransferFailed is returned by Transfer.Result when the host
// controller retired a TD with a non-zero Condition Code.
var ErrTransferFailed = errors.New("ohci: transfer failed")

// transfer is the async.Future/hostctrl.Transfer implementation shared by
// every endpoint type: it waits on the TD that reports the transfer's
// outcome (the STATUS stage for control, the sole TD for bulk/interrupt).
type transfer struct {
	done *GeneralTD
	n    int // bytes known complete regardless of done's own count (e.g. control data stage)
}

func (t *transfer) Poll(cx *async.Context) async.PollState {
	if t.done.IsComplete() {
		return async.Ready
	}

	t.done.UpdateWaker(cx.Waker())
	// re-check: completion may have raced the waker install
	if t.done.IsComplete() {
		return async.Ready
	}

	return async.Pending
}

func (t *transfer) Result() (int, error) {
	if t.done.ConditionCode() != 0 {
		return t.n, ErrTransferFailed
	}

	return t.n, nil
}

// controlEndpoint drives a 2-3 stage control transfer (SETUP, optional
// DATA, STATUS) over one ED, following the fixed DATA0/DATA1/DATA1 toggle
// sequence USB chapter 9 mandates for control transfers.
type controlEndpoint struct {
	driver *Driver
	ed     *ED
}

func falseP() *bool { b := false; return &b }
func trueP() *bool  { b := true; return &b }

func (c *controlEndpoint) submit(header []byte, data []byte, dataIn bool, hasData bool) hostctrl.Transfer {
	setupAddr, setupBuf := c.driver.region.Reserve(len(header), 4)
	copy(setupBuf, header)

	setup := AllocGeneralTD(c.driver.region)
	setup.Init(setupAddr, len(header), DirectionOut, 7, falseP(), false)

	var dataTD *GeneralTD
	var dataAddr uint32
	var dataBuf []byte

	statusDir := DirectionIn
	if dataIn {
		statusDir = DirectionOut
	}

	chain := []*GeneralTD{setup}

	if hasData {
		dataAddr, dataBuf = c.driver.region.Reserve(len(data), 4)
		if !dataIn {
			copy(dataBuf, data)
		}

		dir := DirectionOut
		if dataIn {
			dir = DirectionIn
		}

		dataTD = AllocGeneralTD(c.driver.region)
		dataTD.Init(dataAddr, len(data), dir, 7, trueP(), false)
		chain = append(chain, dataTD)
	}

	status := AllocGeneralTD(c.driver.region)
	status.Init(0, 0, statusDir, 0, trueP(), false)
	chain = append(chain, status)

	c.driver.linkChain(c.ed, chain)
	c.driver.kickControl()

	t := &transfer{done: status}

	if hasData && dataIn {
		t.n = len(data) // actual count refined in Result via the data TD once complete
	}

	// Result() needs the data TD's byte accounting for IN transfers; wrap
	// the transfer in a controlTransfer rather than growing transfer's
	// fields for the rare control case.
	if hasData {
		return &controlTransfer{transfer: t, data: dataTD, dataBuf: dataBuf, dataIn: dataIn, copyInto: data}
	}

	return t
}

// controlTransfer augments transfer with the control data stage's actual
// byte count and, for IN transfers, copies the received bytes back into
// the caller's buffer (the DMA reservation used for the data stage is
// otherwise invisible to the caller).
type controlTransfer struct {
	*transfer
	data     *GeneralTD
	dataBuf  []byte
	dataIn   bool
	copyInto []byte
}

func (t *controlTransfer) Result() (int, error) {
	n, err := t.transfer.Result()
	if err != nil {
		return n, err
	}

	requested := len(t.dataBuf)
	n = requested - t.data.BytesRemaining()

	if t.dataIn {
		copy(t.copyInto, t.dataBuf[:n])
	}

	return n, nil
}

func (c *controlEndpoint) InOnly(header []byte, buf []byte) hostctrl.Transfer {
	return c.submit(header, buf, true, len(buf) > 0)
}

func (c *controlEndpoint) OutOnly(header []byte, data []byte) hostctrl.Transfer {
	return c.submit(header, data, false, len(data) > 0)
}

// periodicEndpoint backs both InterruptEndpoint and BulkEndpoint: a single
// TD per Submit, queued on a shared ED.
type periodicEndpoint struct {
	driver *Driver
	ed     *ED
	bulk   bool
	toggle bool
}

func (p *periodicEndpoint) Submit(buf []byte) hostctrl.Transfer {
	addr, dmaBuf := p.driver.region.Reserve(len(buf), 4)
	copy(dmaBuf, buf)

	toggle := p.toggle
	p.toggle = !p.toggle

	td := AllocGeneralTD(p.driver.region)
	td.Init(addr, len(buf), DirectionIn, 7, &toggle, false)

	p.driver.linkChain(p.ed, []*GeneralTD{td})

	if p.bulk {
		p.driver.kickBulk()
	}

	return &periodicTransfer{transfer: &transfer{done: td}, buf: dmaBuf, into: buf}
}

type periodicTransfer struct {
	*transfer
	buf  []byte
	into []byte
}

func (t *periodicTransfer) Result() (int, error) {
	n, err := t.transfer.Result()
	if err != nil {
		return n, err
	}

	n = len(t.buf) - t.done.BytesRemaining()
	copy(t.into, t.buf[:n])

	return n, nil
}
