// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package ohci

import (
	"sync"
	"testing"
	"time"

	"github.com/usbarmory/tamago-usbhost/async"
)

func newTestTD() *GeneralTD {
	td := &GeneralTD{hw: &generalTD{}}
	td.hw.Control.Store(tdAllocated | tdInit)
	return td
}

// TestTDCompleteWithAutoFreeWakesPoller exercises scenario 4: a TD marked
// autoFree is retired while a poller is parked waiting on it; Complete
// must flip the completion bit, wake the installed waker exactly once,
// and leave autoFree() observable so the interrupt path knows to recycle
// the TD itself.
func TestTDCompleteWithAutoFreeWakesPoller(t *testing.T) {
	td := newTestTD()
	td.hw.Control.Store(td.hw.Control.Load() | tdAutoFree)

	ec := async.NewEventChannel()
	waker := async.NewSimpleWaker(ec)

	td.UpdateWaker(waker)

	if td.IsComplete() {
		t.Fatalf("TD reports complete before Complete() was called")
	}

	woke := make(chan struct{})
	go func() {
		ec.Sleep()
		close(woke)
	}()

	// give the goroutine above a chance to reach Sleep before Complete
	// posts, otherwise the test would still pass (Post before Sleep is
	// remembered) but wouldn't exercise the interesting ordering.
	time.Sleep(5 * time.Millisecond)

	td.Complete()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatalf("waker was not woken within 1s of Complete()")
	}

	if !td.IsComplete() {
		t.Fatalf("IsComplete() = false after Complete()")
	}
	if !td.autoFree() {
		t.Fatalf("autoFree() = false, want true")
	}

	// Complete() must be idempotent: a second call (e.g. a duplicate walk
	// of the done queue) must not wake anything again or panic on a nil
	// waker.
	td.Complete()
}

// TestTDUpdateWakerSwapUnderConcurrentComplete exercises scenario 5: a
// poller repeatedly installs a fresh waker (as the executor's Context can
// hand out a new one across polls) concurrently with the interrupt path
// retiring the TD. The lock bit must serialize every access to the waker
// field; neither side should observe a torn waker or deadlock.
func TestTDUpdateWakerSwapUnderConcurrentComplete(t *testing.T) {
	td := newTestTD()

	var wg sync.WaitGroup
	wg.Add(2)

	stop := make(chan struct{})

	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			select {
			case <-stop:
				return
			default:
			}
			ec := async.NewEventChannel()
			td.UpdateWaker(async.NewSimpleWaker(ec))
		}
	}()

	go func() {
		defer wg.Done()
		time.Sleep(time.Millisecond)
		td.Complete()
		close(stop)
	}()

	wg.Wait()

	if !td.IsComplete() {
		t.Fatalf("IsComplete() = false after Complete()")
	}
}

func TestTDBytesRemainingSinglePage(t *testing.T) {
	td := newTestTD()
	td.hw.CBP.Store(0x1000)
	td.hw.BE.Store(0x103f) // 0x40 bytes total, none consumed

	if got := td.BytesRemaining(); got != 0x40 {
		t.Fatalf("BytesRemaining() = %#x, want 0x40", got)
	}
}

func TestTDBytesRemainingTwoPageSpan(t *testing.T) {
	td := newTestTD()
	// buffer starts 0x10 bytes before the end of its first page and ends
	// 0x20 bytes into the next page; nothing has been consumed yet.
	td.hw.CBP.Store(0x1ff0)
	td.hw.BE.Store(0x201f)

	want := (pageSize - 0xff0) + (0x20)
	if got := td.BytesRemaining(); got != want {
		t.Fatalf("BytesRemaining() = %#x, want %#x", got, want)
	}
}

func TestTDBytesRemainingFullyConsumed(t *testing.T) {
	td := newTestTD()
	td.hw.CBP.Store(0) // hardware zeroes CBP once the buffer is exhausted

	if got := td.BytesRemaining(); got != 0 {
		t.Fatalf("BytesRemaining() = %d, want 0", got)
	}
}

func TestTDDoubleFreePanics(t *testing.T) {
	td := newTestTD()
	td.hw.Control.Store(0) // simulate an already-freed TD

	defer func() {
		if recover() == nil {
			t.Fatalf("Free of an unallocated TD did not panic")
		}
	}()

	td.Free(nil)
}
