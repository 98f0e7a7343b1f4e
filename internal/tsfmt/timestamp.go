// Package tsfmt formats and parses the HH:MM:SS.mmm timestamps used
// throughout persistent track documents.
package tsfmt

import (
	"fmt"
	"math"
)

// FromSeconds formats a float64 seconds value as HH:MM:SS.mmm, 24-hour.
func FromSeconds(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(math.Round(seconds * 1000))
	ms := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	ss := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	mm := totalMinutes % 60
	hh := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hh, mm, ss, ms)
}

// ToSeconds parses HH:MM:SS.mmm into seconds as a float64.
func ToSeconds(ts string) (float64, error) {
	var hh, mm, ss, ms int
	n, err := fmt.Sscanf(ts, "%d:%d:%d.%d", &hh, &mm, &ss, &ms)
	if err != nil || n != 4 {
		return 0, fmt.Errorf("tsfmt: malformed timestamp %q", ts)
	}
	return float64(hh)*3600 + float64(mm)*60 + float64(ss) + float64(ms)/1000, nil
}

// FromMillis formats a millisecond presentation timestamp, as produced by
// the Frame Source, into HH:MM:SS.mmm.
func FromMillis(ms int64) string {
	return FromSeconds(float64(ms) / 1000)
}
