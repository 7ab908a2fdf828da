// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package async

import (
	"testing"
	"time"
)

func TestEventChannelPostBeforeSleep(t *testing.T) {
	ec := NewEventChannel()

	ec.Post()
	ec.Post()
	ec.Post()

	done := make(chan struct{})

	go func() {
		ec.Sleep()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not observe the pending post")
	}
}

func TestEventChannelPostAfterSleep(t *testing.T) {
	ec := NewEventChannel()
	done := make(chan struct{})

	go func() {
		ec.Sleep()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	ec.Post()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep did not unblock on Post")
	}
}

func TestEventChannelSingleSleeperUnblocked(t *testing.T) {
	ec := NewEventChannel()

	ec.Post()
	ec.Sleep()

	// A second Sleep must block until a new Post arrives.
	posted := make(chan struct{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		ec.Post()
		close(posted)
	}()

	before := time.Now()
	ec.Sleep()

	if time.Since(before) < 5*time.Millisecond {
		t.Fatal("Sleep returned before the second Post")
	}

	<-posted
}
