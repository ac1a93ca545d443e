package display

import "testing"

func TestNamesMatch(t *testing.T) {
	tests := []struct {
		configured string
		actual     string
		want       bool
	}{
		{"DP-1", "DP-1", true},
		{"dp-1", "DP-1", true},
		{"DP-1", "DP-1-8", true},
		{"DP-1", "DP-2", false},
		{"HDMI-1", "HDMI-A-1", true},
		{"HDMI-A-1", "HDMI-A-2", false},
		{"DP-1-8", "DP-1", true},
		{"DP-1-8", "DP-1-9", false},
		{"eDP-1", "EDP-1", true},
	}
	for _, tt := range tests {
		if got := NamesMatch(tt.configured, tt.actual); got != tt.want {
			t.Fatalf("NamesMatch(%q, %q) = %v, want %v", tt.configured, tt.actual, got, tt.want)
		}
	}
}

func TestCanonicalName(t *testing.T) {
	if got := CanonicalName(" hdmi-a-1 "); got != "HDMI-1" {
		t.Fatalf("expected HDMI-1, got %q", got)
	}
	if got := CanonicalName("DP-1"); got != "DP-1" {
		t.Fatalf("expected DP-1 unchanged, got %q", got)
	}
	if got := CanonicalName("DP-AB-1"); got != "DP-AB-1" {
		t.Fatalf("expected multi-letter segment to be kept, got %q", got)
	}
}

func TestOutputName(t *testing.T) {
	if got := OutputName("HDMI-A", 2); got != "HDMI-A-2" {
		t.Fatalf("expected HDMI-A-2, got %q", got)
	}
}
