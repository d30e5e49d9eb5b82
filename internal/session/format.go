package session

import (
	"fmt"
	"time"
)

// FormatClock renders a remaining duration as a countdown clock: MM:SS under
// an hour, H:MM:SS above. Negative durations render as 00:00.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())

	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
