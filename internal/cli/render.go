package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lvcoi/freeytzone/internal/app"
	"github.com/lvcoi/freeytzone/internal/resolver"
	"github.com/lvcoi/freeytzone/internal/video"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0B0B0B")).
			Background(lipgloss.Color("#7FDBFF")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A6ADC8")).
			Width(12)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8F8F2"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00F5D4")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7FDBFF")).
			Padding(0, 1)
)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

func renderMetadata(m video.Metadata) string {
	quality := m.MaxQuality
	if m.MaxFormat.Resolution != "" && m.MaxFormat.Resolution != "N/A" {
		quality += " (" + m.MaxFormat.Resolution + ")"
	}
	rows := []string{
		titleStyle.Render(m.Title),
		"",
		row("Video ID", m.VideoID),
		row("Uploader", m.Uploader),
		row("Duration", formatDuration(m.Duration)),
		row("Uploaded", formatDate(m.UploadDate)),
		row("Views", formatCount(m.ViewCount)),
		row("Quality", quality),
		row("Thumbnail", m.Thumbnail),
		row("Backend", m.Backend),
	}
	if m.IsShorts {
		rows = append(rows, row("Shorts", "yes"))
	}
	return boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...))
}

func renderFailure(res app.Result) string {
	return fmt.Sprintf("%s %s\n  %s", errorStyle.Render("✗"), res.URL, res.Error)
}

func renderStatus(status map[string]string) string {
	names := make([]string, 0, len(status))
	for name := range status {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		msg := status[name]
		mark := okStyle.Render("✓")
		if strings.HasPrefix(msg, resolver.StatusUnavailable) {
			mark = errorStyle.Render("✗")
			msg = strings.TrimPrefix(msg, resolver.StatusUnavailable)
		}
		lines = append(lines, fmt.Sprintf("%s %s %s", mark, labelStyle.Render(name), valueStyle.Render(msg)))
	}
	return strings.Join(lines, "\n")
}

// formatDuration renders seconds as m:ss or h:mm:ss.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "N/A"
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatDate turns YYYYMMDD into YYYY-MM-DD and leaves anything else alone.
func formatDate(value string) string {
	if len(value) != 8 {
		return value
	}
	if _, err := strconv.Atoi(value); err != nil {
		return value
	}
	return value[:4] + "-" + value[4:6] + "-" + value[6:]
}

// formatCount adds thousands separators.
func formatCount(n int64) string {
	digits := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
