package util

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// ProgressBar provides a simple terminal progress bar over a known number
// of work items.
type ProgressBar struct {
	mu       sync.Mutex
	total    int64
	current  int64
	start    time.Time
	prefix   string
	width    int
	writer   io.Writer
	lastDraw time.Time
}

// NewProgressBar creates a new progress bar
func NewProgressBar(total int64, prefix string, writer io.Writer) *ProgressBar {
	return &ProgressBar{
		total:  total,
		prefix: prefix,
		width:  40,
		writer: writer,
		start:  time.Now(),
	}
}

// Add increments the progress
func (p *ProgressBar) Add(n int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current += n
	if p.current > p.total {
		p.current = p.total
	}

	// Throttle updates to avoid excessive redraws
	if time.Since(p.lastDraw) < 100*time.Millisecond && p.current < p.total {
		return
	}

	p.draw()
	p.lastDraw = time.Now()
}

// Finish completes the progress bar
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.draw()
	fmt.Fprintln(p.writer)
}

// draw renders the progress bar
func (p *ProgressBar) draw() {
	if p.total <= 0 {
		return
	}

	percent := float64(p.current) / float64(p.total) * 100

	filled := int(float64(p.width) * float64(p.current) / float64(p.total))
	if filled > p.width {
		filled = p.width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)

	eta := ""
	elapsed := time.Since(p.start)
	if p.current > 0 && p.current < p.total {
		perItem := elapsed / time.Duration(p.current)
		eta = fmt.Sprintf(" ETA: %s", FormatDuration(perItem*time.Duration(p.total-p.current)))
	}

	fmt.Fprintf(p.writer, "\r%s [%s] %.1f%% %d/%d%s",
		p.prefix, bar, percent, p.current, p.total, eta)
}

// FormatBytes converts bytes to human-readable format
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatDuration formats a duration to a human-readable string
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}

	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
