package engine

import (
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
)

// Window is one fixed reminder offset before the qualification close.
type Window struct {
	Label     string
	Before    time.Duration
	Tolerance time.Duration
}

// StandardWindows are evaluated for every race and fanned out to all
// subscribed users. Tolerances absorb scheduler jitter: a pass that
// lands a few minutes off the exact target still counts.
var StandardWindows = []Window{
	{Label: userstore.Label48h, Before: 48 * time.Hour, Tolerance: 6 * time.Minute},
	{Label: userstore.Label24h, Before: 24 * time.Hour, Tolerance: 6 * time.Minute},
	{Label: userstore.Label2h, Before: 2 * time.Hour, Tolerance: 5 * time.Minute},
	{Label: userstore.Label10min, Before: 10 * time.Minute, Tolerance: 2 * time.Minute},
}

// CustomTolerance applies to user-defined reminder slots.
const CustomTolerance = 5 * time.Minute

// Race-live fires from 1 minute before to 5 minutes after the start:
// asymmetric, because missing "live" is worse than a late send.
const (
	raceLiveBefore = 1 * time.Minute
	raceLiveAfter  = 5 * time.Minute
)

// windowDue reports whether now lies within [target-tol, target+tol].
func windowDue(target, now time.Time, tol time.Duration) bool {
	d := now.Sub(target)
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// dueStandardWindows returns the standard windows currently due for a
// quali-close time. With sane cadence at most one window is due per
// pass, but the matcher does not rely on that.
func dueStandardWindows(qualiClose, now time.Time) []Window {
	var due []Window
	for _, w := range StandardWindows {
		if windowDue(qualiClose.Add(-w.Before), now, w.Tolerance) {
			due = append(due, w)
		}
	}
	return due
}

// customSlotDue reports whether a custom slot's target is due.
func customSlotDue(qualiClose time.Time, minutesBefore int, now time.Time) bool {
	target := qualiClose.Add(-time.Duration(minutesBefore) * time.Minute)
	return windowDue(target, now, CustomTolerance)
}

// raceLiveDue reports whether now is inside the race-live send window.
func raceLiveDue(start, now time.Time) bool {
	since := now.Sub(start)
	return since >= -raceLiveBefore && since <= raceLiveAfter
}
