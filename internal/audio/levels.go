/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import "math"

// Tap keeps the most recent mono output samples in a ring buffer.
type Tap struct {
	buf  []float64
	pos  int
	full bool
}

// NewTap creates a tap holding size samples.
func NewTap(size int) *Tap {
	if size <= 0 {
		size = 1
	}
	return &Tap{buf: make([]float64, size)}
}

// Write appends a stereo frame as its mono mix.
func (t *Tap) Write(left, right float64) {
	t.buf[t.pos] = (left + right) / 2
	t.pos++
	if t.pos == len(t.buf) {
		t.pos = 0
		t.full = true
	}
}

// Samples returns the buffered samples in chronological order.
func (t *Tap) Samples() []float64 {
	if !t.full {
		return append([]float64(nil), t.buf[:t.pos]...)
	}
	out := make([]float64, 0, len(t.buf))
	out = append(out, t.buf[t.pos:]...)
	return append(out, t.buf[:t.pos]...)
}

// Levels splits samples into bins and returns the RMS of each.
func Levels(samples []float64, bins int) []float64 {
	if bins <= 0 {
		return nil
	}
	out := make([]float64, bins)
	if len(samples) == 0 {
		return out
	}
	per := len(samples) / bins
	if per == 0 {
		per = 1
	}
	for b := 0; b < bins; b++ {
		start := b * per
		if start >= len(samples) {
			break
		}
		end := start + per
		if b == bins-1 || end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += s * s
		}
		out[b] = math.Sqrt(sum / float64(end-start))
	}
	return out
}
