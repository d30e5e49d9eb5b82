package session

import (
	"testing"
	"time"
)

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-5 * time.Second, "00:00"},
		{1 * time.Second, "00:01"},
		{59 * time.Second, "00:59"},
		{60 * time.Second, "01:00"},
		{30 * time.Minute, "30:00"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour, "1:00:00"},
		{2*time.Hour + 5*time.Minute + 9*time.Second, "2:05:09"},
	}

	for _, tc := range tests {
		if got := FormatClock(tc.in); got != tc.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
