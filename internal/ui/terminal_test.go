package ui

import (
	"os"
	"testing"
)

var colorVars = []string{"NO_COLOR", "CLICOLOR", "CLICOLOR_FORCE"}

// clearColorEnv unsets the color variables for the test.
func clearColorEnv(t *testing.T) {
	t.Helper()
	for _, name := range colorVars {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestShouldUseColor(t *testing.T) {
	tty := IsTerminal()
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{"terminal decides by default", nil, tty},
		{"NO_COLOR disables", map[string]string{"NO_COLOR": "1"}, false},
		{"empty NO_COLOR still disables", map[string]string{"NO_COLOR": ""}, false},
		{"CLICOLOR=0 disables", map[string]string{"CLICOLOR": "0"}, false},
		{"CLICOLOR_FORCE enables off a terminal", map[string]string{"CLICOLOR_FORCE": "1"}, true},
		{"CLICOLOR_FORCE=0 is ignored", map[string]string{"CLICOLOR_FORCE": "0"}, tty},
		{"NO_COLOR beats CLICOLOR_FORCE", map[string]string{"NO_COLOR": "1", "CLICOLOR_FORCE": "1"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearColorEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if got := ShouldUseColor(); got != tt.want {
				t.Errorf("ShouldUseColor() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderHonorsNoColor(t *testing.T) {
	clearColorEnv(t)
	t.Setenv("NO_COLOR", "1")
	if got := RenderCategory("notes"); got != "NOTES" {
		t.Errorf("RenderCategory() = %q, want plain %q", got, "NOTES")
	}
	if got := RenderSeparator(); got != SeparatorLight {
		t.Errorf("RenderSeparator() = %q", got)
	}
}

func TestTerminalSizeFallback(t *testing.T) {
	if IsTerminal() {
		t.Skip("stdout is a terminal")
	}
	if got := Width(72); got != 72 {
		t.Errorf("Width(72) = %d, want fallback 72", got)
	}
	if got := Height(); got != 0 {
		t.Errorf("Height() = %d, want 0 off a terminal", got)
	}
}
