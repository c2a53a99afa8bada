// Package display provides terminal formatting for Link-o-Saurus output.
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Styles
	Muted    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	Dim      = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3af"))
	Bold     = lipgloss.NewStyle().Bold(true)
	Success  = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	Warn     = lipgloss.NewStyle().Foreground(lipgloss.Color("#d97706"))
	ErrStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))

	BoardStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2563eb")).Bold(true)
	CategoryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7c3aed"))
	URLStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#0891b2"))
)

// SyncDot returns a colored dot for a sync state.
func SyncDot(enabled bool) string {
	if enabled {
		return Success.Render("●")
	}
	return Dim.Render("○")
}

// Board renders a board heading.
func Board(title string, categories, bookmarks int) string {
	counts := Muted.Render(fmt.Sprintf("(%d categories, %d bookmarks)", categories, bookmarks))
	return fmt.Sprintf("%s %s", BoardStyle.Render(title), counts)
}

// Category renders an indented category line.
func Category(title string, bookmarks int) string {
	return fmt.Sprintf("  %s %s", CategoryStyle.Render(title), Muted.Render(fmt.Sprintf("(%d)", bookmarks)))
}

// Bookmark renders an indented bookmark line, truncating long URLs.
func Bookmark(title, url string) string {
	const maxURL = 60
	if len(url) > maxURL {
		url = url[:maxURL-3] + "..."
	}
	if title == "" {
		title = Dim.Render("(untitled)")
	}
	return fmt.Sprintf("    %s  %s", title, URLStyle.Render(url))
}

// Count renders a labeled count for status output.
func Count(label string, n int) string {
	return fmt.Sprintf("%s %s", Bold.Render(fmt.Sprintf("%d", n)), Muted.Render(label))
}

// RelativeTime formats a timestamp as a short relative string.
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return Dim.Render("never")
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Rule renders a muted horizontal rule.
func Rule(width int) string {
	if width <= 0 {
		width = 40
	}
	return Muted.Render(strings.Repeat("─", width))
}
