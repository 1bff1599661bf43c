// Package display formats link data for human-facing output.
package display

import (
	"fmt"
	"strconv"
	"time"
)

const dateTimeLayout = "Jan 2, 2006, 03:04 PM"

// FormatNumber abbreviates large counts: 1500 becomes "1.5K", 2500000 becomes "2.5M".
func FormatNumber(n int64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(n, 10)
	}
}

// FormatAverage renders an average with one decimal place.
func FormatAverage(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64)
}

// Remaining is the time left until a link expires.
type Remaining struct {
	Days    int64 `json:"days"`
	Hours   int64 `json:"hours"`
	Minutes int64 `json:"minutes"`
	Seconds int64 `json:"seconds"`
	Expired bool  `json:"expired"`
}

// Countdown splits expiry-now into whole days, hours, minutes and seconds.
func Countdown(expiry, now time.Time) Remaining {
	d := expiry.Sub(now)
	if d <= 0 {
		return Remaining{Expired: true}
	}

	secs := int64(d / time.Second)
	return Remaining{
		Days:    secs / 86400,
		Hours:   secs % 86400 / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}

func (r Remaining) String() string {
	if r.Expired {
		return "Expired"
	}
	unit := "days"
	if r.Days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s %02d:%02d:%02d", r.Days, unit, r.Hours, r.Minutes, r.Seconds)
}

// TruncateURL shortens s to max runes followed by "...".
func TruncateURL(s string, max int) string {
	runes := []rune(s)
	if max < 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// FormatDateTime renders t for listings, or "N/A" when unset.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format(dateTimeLayout)
}

// RankBadge names the medal for the top three places.
func RankBadge(rank int) string {
	switch rank {
	case 1:
		return "gold"
	case 2:
		return "silver"
	case 3:
		return "bronze"
	}
	return ""
}
