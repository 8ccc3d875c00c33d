package ui

import (
	"bytes"
	"reflect"
	"testing"
)

func TestPagerArgs(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want []string
	}{
		{"default", nil, []string{"less"}},
		{"PAGER", map[string]string{"PAGER": "more"}, []string{"more"}},
		{"own variable wins", map[string]string{"RMIMPORT_PAGER": "less -S", "PAGER": "more"}, []string{"less", "-S"}},
		{"blank own variable ignored", map[string]string{"RMIMPORT_PAGER": "  ", "PAGER": "most"}, []string{"most"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pagerArgs(func(k string) string { return tt.env[k] })
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("pagerArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReportLines(t *testing.T) {
	tests := map[string]int{
		"":             0,
		"Imported\n":   1,
		"a\nb":         2,
		"a\n\nb\n":     3,
		"a\nb\nc\nd\n": 4,
	}
	for in, want := range tests {
		if got := reportLines(in); got != want {
			t.Errorf("reportLines(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNeedsPager(t *testing.T) {
	tests := []struct {
		lines, height int
		want          bool
	}{
		{lines: 10, height: 0, want: true},
		{lines: 23, height: 24, want: false},
		{lines: 24, height: 24, want: true},
		{lines: 1, height: 2, want: false},
	}
	for _, tt := range tests {
		if got := needsPager(tt.lines, tt.height); got != tt.want {
			t.Errorf("needsPager(%d, %d) = %v, want %v", tt.lines, tt.height, got, tt.want)
		}
	}
}

func TestToPagerWritesDirectly(t *testing.T) {
	report := "⚠ Imported 2 issues\n" + SeparatorLight + "\n"

	var buf bytes.Buffer
	if err := ToPager(report, PagerOptions{Out: &buf}); err != nil {
		t.Fatalf("ToPager() error = %v", err)
	}
	if buf.String() != report {
		t.Errorf("ToPager() wrote %q, want %q", buf.String(), report)
	}

	buf.Reset()
	if err := ToPager(report, PagerOptions{NoPager: true, Out: &buf}); err != nil {
		t.Fatalf("ToPager() error = %v", err)
	}
	if buf.String() != report {
		t.Errorf("ToPager(--no-pager) wrote %q, want %q", buf.String(), report)
	}
}
