package formats

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatDuration renders seconds as M:SS or H:MM:SS.
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 3600 {
		return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// FormatViews renders a view counter with thousands separators.
func FormatViews(views int64) string {
	if views <= 0 {
		return "Unknown"
	}
	return humanize.Comma(views)
}

// FormatFilesize renders a size using binary multiples, one decimal digit.
func FormatFilesize(size int64) string {
	if size <= 0 {
		return "Unknown"
	}

	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024.0 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024.0
	}
	return fmt.Sprintf("%.1f TB", value)
}
