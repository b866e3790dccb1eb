package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors used for terminal rendering.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Failure lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Success: lipgloss.Color("#3fb950"),
	Failure: lipgloss.Color("#f85149"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Border  lipgloss.Style
	Success lipgloss.Style
	Failure lipgloss.Style
	Help    lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:   lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border:  lipgloss.NewStyle().Foreground(t.Primary),
		Success: lipgloss.NewStyle().Bold(true).Foreground(t.Success),
		Failure: lipgloss.NewStyle().Bold(true).Foreground(t.Failure),
		Help:    lipgloss.NewStyle().Foreground(t.Dim),
	}
}

// Section is a labeled block of lines inside a Panel.
type Section struct {
	Label string
	Lines []string
}

// Panel renders a boxed result: a title line with a status tag followed by
// labeled sections.
type Panel struct {
	Styles   Styles
	Title    string
	Status   string
	Sections []Section
}

// Render renders the panel at the given width.
func (p Panel) Render(width int) string {
	if width < 10 {
		width = 10
	}
	bc := p.Styles.Border
	inner := width - 4

	var lines []string
	lines = append(lines, bc.Render("╭"+strings.Repeat("─", width-2)+"╮"))

	title := p.Styles.Title.Render(p.Title)
	status := ""
	if p.Status != "" {
		status = p.Styles.Help.Render("[" + p.Status + "]")
	}
	used := lipgloss.Width(title) + lipgloss.Width(status)
	if status != "" {
		used++
	}
	head := title
	if status != "" {
		head += " " + status
	}
	lines = append(lines, bc.Render("│")+" "+head+strings.Repeat(" ", max(0, inner-used))+" "+bc.Render("│"))

	for _, sec := range p.Sections {
		label := p.Styles.Label.Render(sec.Label)
		pad := max(0, width-3-lipgloss.Width(label))
		lines = append(lines, bc.Render("├─")+label+bc.Render(strings.Repeat("─", pad)+"┤"))
		for _, text := range sec.Lines {
			if lipgloss.Width(text) > inner {
				text = truncateString(text, inner-1) + "…"
			}
			lines = append(lines, bc.Render("│")+" "+text+
				strings.Repeat(" ", max(0, inner-lipgloss.Width(text)))+" "+bc.Render("│"))
		}
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", width-2)+"╯"))
	return strings.Join(lines, "\n")
}

// MatchLine is one row of a ranked-match table.
type MatchLine struct {
	Rank      int
	Name      string
	Score     float64
	Highlight bool
}

// MatchTable renders ranked matches as aligned lines with a score bar.
// Highlighted rows use the success style.
func MatchTable(s Styles, rows []MatchLine) []string {
	nameWidth := 0
	for _, r := range rows {
		nameWidth = max(nameWidth, lipgloss.Width(r.Name))
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		bar := strings.Repeat("█", int(clamp01(r.Score)*20+0.5))
		line := fmt.Sprintf("%d. %-*s %5.1f%% %s", r.Rank, nameWidth, r.Name, r.Score*100, bar)
		if r.Highlight {
			line = s.Success.Render(line)
		}
		out = append(out, line)
	}
	return out
}

// Banner renders a one-line verdict, green when ok and red otherwise.
func Banner(s Styles, ok bool, text string) string {
	if ok {
		return s.Success.Render("✓ " + text)
	}
	return s.Failure.Render("✗ " + text)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}

// truncateString truncates s to the given display width, keeping runes whole.
func truncateString(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	currentWidth := 0
	for i, r := range runes {
		w := lipgloss.Width(string(r))
		if currentWidth+w > width {
			return string(runes[:i])
		}
		currentWidth += w
	}
	return s
}
