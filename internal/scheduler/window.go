/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import "time"

// MinCrossfade is the shortest fade ever scheduled.
const MinCrossfade = 250 * time.Millisecond

// Window returns the fade length for a track of the given duration and how
// long after its start the next track must begin fading in. The fade is
// capped at half the track and floored at MinCrossfade. fireIn is never
// shorter than the fade, so a track always finishes fading in before the
// next transition starts.
func Window(duration, crossfade time.Duration) (fade, fireIn time.Duration) {
	fade = crossfade
	if half := duration / 2; fade > half {
		fade = half
	}
	if fade < MinCrossfade {
		fade = MinCrossfade
	}
	fireIn = duration - fade
	if fireIn < fade {
		fireIn = fade
	}
	return fade, fireIn
}
