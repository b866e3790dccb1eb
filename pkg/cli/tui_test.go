package cli

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
)

func TestPanelRender(t *testing.T) {
	s := NewStyles(DefaultTheme)
	p := Panel{
		Styles: s,
		Title:  "Recognition",
		Status: "free_match",
		Sections: []Section{
			{Label: "Result", Lines: []string{"alice", strings.Repeat("x", 200)}},
		},
	}
	out := p.Render(40)
	lines := strings.Split(out, "\n")
	if len(lines) != 6 {
		t.Fatalf("got %d lines, want 6:\n%s", len(lines), out)
	}
	for i, line := range lines {
		if w := lipgloss.Width(line); w != 40 {
			t.Errorf("line %d width = %d, want 40: %q", i, w, line)
		}
	}
	if !strings.Contains(out, "…") {
		t.Error("long line should be truncated")
	}
}

func TestMatchTable(t *testing.T) {
	rows := MatchTable(NewStyles(DefaultTheme), []MatchLine{
		{Rank: 1, Name: "alice", Score: 0.91, Highlight: true},
		{Rank: 2, Name: "bo", Score: 0.42},
	})
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if !strings.Contains(rows[0], "91.0%") || !strings.Contains(rows[1], "2. bo    ") {
		t.Errorf("rows = %q", rows)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("héllo", 3); got != "hél" {
		t.Errorf("truncateString = %q", got)
	}
	if got := truncateString("abc", 0); got != "" {
		t.Errorf("truncateString(0) = %q", got)
	}
}
