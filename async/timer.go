// Cooperative async substrate
// https://github.com/usbarmory/tamago-usbhost
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package async

import "time"

// sleep is a Future that becomes Ready once its deadline has passed. It
// never itself arranges a wakeup (there is no timer interrupt in this
// substrate); callers compose it with Run's poll loop, which re-polls on
// every executor iteration regardless of source, same as msleep in the
// original kernel this is modeled on.
type sleep struct {
	deadline time.Time
}

func (s *sleep) Poll(cx *Context) PollState {
	if time.Now().Before(s.deadline) {
		return Pending
	}
	return Ready
}

// Msleep returns a Future that resolves after d has elapsed.
func Msleep(d time.Duration) Future {
	return &sleep{deadline: time.Now().Add(d)}
}

// Await drives f to completion against a throwaway context, busy-polling
// it. It is used by leaf driver code that needs to block the calling
// goroutine on a Future outside of the main Run loop (e.g. a port worker
// waiting out a fixed reset delay where no external wakeup will ever
// arrive).
func Await(f Future) {
	cx := &Context{waker: NullWaker()}

	for f.Poll(cx) == Pending {
		time.Sleep(time.Microsecond)
	}
}
