package utils

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// FormatSize formats a byte count using 1024-based units
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

// FormatDuration formats d as 1h02m03s, dropping leading zero units
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// FormatCount formats n with thousands separators
func FormatCount[T ~int | ~int64](n T) string {
	return humanize.Comma(int64(n))
}

// FormatSince formats t relative to now ("3 minutes ago"), or "never"
func FormatSince(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
