package engine

import (
	"testing"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
)

var qualiClose = time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)

func TestDueStandardWindows(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want []string
	}{
		{"48h exact", qualiClose.Add(-48 * time.Hour), []string{userstore.Label48h}},
		{"48h minus 6min edge", qualiClose.Add(-48*time.Hour - 6*time.Minute), []string{userstore.Label48h}},
		{"48h minus 7min outside", qualiClose.Add(-48*time.Hour - 7*time.Minute), nil},
		{"48h plus 6min edge", qualiClose.Add(-48*time.Hour + 6*time.Minute), []string{userstore.Label48h}},
		{"48h plus 7min outside", qualiClose.Add(-48*time.Hour + 7*time.Minute), nil},
		{"24h plus 3min", qualiClose.Add(-24*time.Hour + 3*time.Minute), []string{userstore.Label24h}},
		{"24h plus 10min outside", qualiClose.Add(-24*time.Hour + 10*time.Minute), nil},
		{"2h exact", qualiClose.Add(-2 * time.Hour), []string{userstore.Label2h}},
		{"2h plus 5min edge", qualiClose.Add(-2*time.Hour + 5*time.Minute), []string{userstore.Label2h}},
		{"2h plus 6min outside", qualiClose.Add(-2*time.Hour + 6*time.Minute), nil},
		{"10min exact", qualiClose.Add(-10 * time.Minute), []string{userstore.Label10min}},
		{"10min plus 2min edge", qualiClose.Add(-8 * time.Minute), []string{userstore.Label10min}},
		{"10min plus 3min outside", qualiClose.Add(-7 * time.Minute), nil},
		{"between windows", qualiClose.Add(-12 * time.Hour), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := dueStandardWindows(qualiClose, tt.now)
			var labels []string
			for _, w := range got {
				labels = append(labels, w.Label)
			}
			if len(labels) != len(tt.want) {
				t.Fatalf("due = %v, want %v", labels, tt.want)
			}
			for i := range labels {
				if labels[i] != tt.want[i] {
					t.Fatalf("due = %v, want %v", labels, tt.want)
				}
			}
		})
	}
}

func TestCustomSlotDue(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		now     time.Time
		want    bool
	}{
		{"exact", 90, qualiClose.Add(-90 * time.Minute), true},
		{"plus 5min edge", 90, qualiClose.Add(-85 * time.Minute), true},
		{"plus 6min outside", 90, qualiClose.Add(-84 * time.Minute), false},
		{"minus 5min edge", 90, qualiClose.Add(-95 * time.Minute), true},
		{"minus 6min outside", 90, qualiClose.Add(-96 * time.Minute), false},
		{"max slot", 4200, qualiClose.Add(-4200 * time.Minute), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := customSlotDue(qualiClose, tt.minutes, tt.now); got != tt.want {
				t.Errorf("customSlotDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRaceLiveDue(t *testing.T) {
	start := time.Date(2024, 5, 10, 19, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"2min before", start.Add(-2 * time.Minute), false},
		{"1min before edge", start.Add(-time.Minute), true},
		{"at start", start, true},
		{"5min after edge", start.Add(5 * time.Minute), true},
		{"6min after outside", start.Add(6 * time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := raceLiveDue(start, tt.now); got != tt.want {
				t.Errorf("raceLiveDue = %v, want %v", got, tt.want)
			}
		})
	}
}
