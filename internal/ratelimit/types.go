// Package ratelimit implements the rate-limit tracker (C6): three parallel
// windows (5-hour sliding, daily calendar, weekly calendar) advanced by a
// single recordMessage() call, persisted periodically for restart survival.
package ratelimit

import "time"

// maxSlidingEvents bounds the 5-hour window's retained event timestamps.
const maxSlidingEvents = 1000

// Window is one rate-limit window's current state.
type Window struct {
	Used     int       `json:"used"`
	Limit    int        `json:"limit"`
	WindowStart time.Time `json:"windowStart"`
	ResetAt  time.Time `json:"resetAt"`
}

// Pace describes 5-hour window consumption velocity.
type Pace struct {
	Current float64 `json:"current"` // used / elapsed hours
	Safe    float64 `json:"safe"`    // limit*0.9 / 5h
}

// SlidingWindowView is the read view of the 5-hour window.
type SlidingWindowView struct {
	Window
	Pace Pace `json:"pace"`
}

// ProjectedDaily extrapolates the daily window's end-of-day usage.
type ProjectedDaily struct {
	Window
	EndOfDay float64 `json:"endOfDay"`
}

// Alert names a window currently at or above the alert threshold.
type Alert struct {
	Window  string  `json:"window"`
	Used    int     `json:"used"`
	Limit   int     `json:"limit"`
	Percent float64 `json:"percent"`
}

// alertThresholdPercent is the utilization fraction at which getAlerts
// reports a window (spec §4.6: "≥ 90% used").
const alertThresholdPercent = 0.90

// persistedState is what gets written to disk every persistInterval.
type persistedState struct {
	SlidingEvents []int64   `json:"slidingEvents"` // unix-ms timestamps
	DailyRollover time.Time `json:"dailyRollover"`
	DailyCount    int       `json:"dailyCount"`
	WeeklyRollover time.Time `json:"weeklyRollover"`
	WeeklyCount    int      `json:"weeklyCount"`
}
