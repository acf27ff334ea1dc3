package config

import (
	"testing"
	"time"
)

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{raw: "", want: 0},
		{raw: "  ", want: 0},
		{raw: "5m", want: 5 * time.Minute},
		{raw: "1h30m", want: 90 * time.Minute},
		{raw: "-1s", wantErr: true},
		{raw: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("test.field", tt.raw)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): expected error, got %v", tt.raw, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	def := 10 * time.Second
	if got, err := ParseDurationOrDefault("f", "", def); err != nil || got != def {
		t.Errorf("empty field = (%v, %v), want default %v", got, err, def)
	}
	if got, err := ParseDurationOrDefault("f", "3s", def); err != nil || got != 3*time.Second {
		t.Errorf("set field = (%v, %v), want 3s", got, err)
	}
	if _, err := ParseDurationOrDefault("f", "nope", def); err == nil {
		t.Error("bad duration should not fall back to the default")
	}
}
