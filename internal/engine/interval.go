package engine

import (
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
)

// nextSleep picks the inter-pass sleep: the short interval when any
// time-sensitive boundary (window target, race start, pending poll) is
// closer than the proximity threshold, the long one otherwise.
//
// Pure so cadence decisions are testable without running the loop.
func nextSleep(races []*calendar.Race, pollDue []time.Time, now time.Time, normal, fast, proximity time.Duration) time.Duration {
	min := time.Duration(-1)
	consider := func(d time.Duration) {
		if d < 0 {
			d = 0
		}
		if min < 0 || d < min {
			min = d
		}
	}

	for _, r := range races {
		for _, w := range StandardWindows {
			target := r.QualiClose.Add(-w.Before)
			// Skip windows whose tolerance has fully passed.
			if now.After(target.Add(w.Tolerance)) {
				continue
			}
			consider(target.Sub(now))
		}
		// Race start matters until the live window closes.
		if !now.After(r.Start.Add(raceLiveAfter)) {
			consider(r.Start.Sub(now))
		}
	}
	for _, due := range pollDue {
		consider(due.Sub(now))
	}

	if min >= 0 && min <= proximity {
		return fast
	}
	return normal
}
