package model

import "time"

// URLMapping is a stored short code together with its target and click statistics.
type URLMapping struct {
	ID          string    `json:"id"`
	OriginalURL string    `json:"originalUrl"`
	Algorithm   string    `json:"algorithm"`
	CreatedDate time.Time `json:"createdDate"`
	ExpiryDate  time.Time `json:"expiryDate,omitzero"`
	ClickCount  int64     `json:"clickCount"`
	OwnerID     string    `json:"-"`
}

// Expired reports whether the mapping is past its expiry date. A zero expiry never expires.
func (m URLMapping) Expired(now time.Time) bool {
	if m.ExpiryDate.IsZero() {
		return false
	}
	return !now.Before(m.ExpiryDate)
}

// Remaining returns the time left before expiry, or zero once expired.
func (m URLMapping) Remaining(now time.Time) time.Duration {
	if m.ExpiryDate.IsZero() || m.Expired(now) {
		return 0
	}
	return m.ExpiryDate.Sub(now)
}

// RankingStats aggregates click totals over all active mappings.
type RankingStats struct {
	TotalURLs     int     `json:"totalUrls"`
	TotalClicks   int64   `json:"totalClicks"`
	AverageClicks float64 `json:"averageClicks"`
	MaxClicks     int64   `json:"maxClicks"`
}
