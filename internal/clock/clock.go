/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock abstracts one-shot timers so crossfade scheduling can run
// against wall time in production and a manual clock in tests.
package clock

import "time"

// Timer is an armed one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock arms one-shot callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// Real arms timers on the runtime timer heap.
type Real struct{}

// AfterFunc implements Clock. Negative delays fire immediately.
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	if d < 0 {
		d = 0
	}
	return time.AfterFunc(d, f)
}
