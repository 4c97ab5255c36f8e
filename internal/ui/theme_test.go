package ui

import (
	"strings"
	"testing"
)

func TestHeading(t *testing.T) {
	if got := Heading(" "+IconStar+" ", "Points"); !strings.Contains(got, IconStar+" Points") {
		t.Errorf("Heading = %q", got)
	}
	if got := Heading("", "Points"); !strings.Contains(got, "Points") || strings.HasPrefix(got, " ") {
		t.Errorf("Heading without icon = %q", got)
	}
}

func TestLabelValue(t *testing.T) {
	got := LabelValue("world", "home")
	if !strings.Contains(got, "world:") || !strings.HasSuffix(got, " home") {
		t.Errorf("LabelValue = %q", got)
	}
}

func TestDeltaAndBalance(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{Delta(15), "+15"},
		{Delta(-50), "-50"},
		{Delta(0), "0"},
		{Balance(45), "45 pts"},
		{Balance(-5), "-5 pts"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.got, tt.want) {
			t.Errorf("rendered %q, want it to contain %q", tt.got, tt.want)
		}
	}
}
