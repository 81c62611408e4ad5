package domain

import (
	"math"
	"time"
)

const (
	TradingHalfLifeHours  = 4.0
	OffHoursHalfLifeHours = 24.0
	freshnessEpsilon      = 0.01
)

// IsTradingTime reports whether t falls on a weekday inside the morning
// (09:30-11:30) or afternoon (13:00-15:00) session. Minute resolution,
// bounds inclusive.
func IsTradingTime(t time.Time) bool {
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	hm := t.Hour()*60 + t.Minute()
	morning := hm >= 9*60+30 && hm <= 11*60+30
	afternoon := hm >= 13*60 && hm <= 15*60
	return morning || afternoon
}

// HalfLife returns the decay half-life in hours for an item published at t.
func HalfLife(t time.Time) float64 {
	if IsTradingTime(t) {
		return TradingHalfLifeHours
	}
	return OffHoursHalfLifeHours
}

// DecayedScore halves score every halfLife hours. Negative elapsed time
// counts as zero.
func DecayedScore(score int, elapsedHours, halfLife float64) float64 {
	if elapsedHours < 0 {
		elapsedHours = 0
	}
	if halfLife <= 0 {
		halfLife = OffHoursHalfLifeHours
	}
	return float64(score) * math.Pow(0.5, elapsedHours/halfLife)
}

func Freshness(decayed float64, score int) float64 {
	return decayed / (float64(score) + freshnessEpsilon)
}

// LookbackHours spans the weekend on Mondays.
func LookbackHours(now time.Time) int {
	if now.Weekday() == time.Monday {
		return 72
	}
	return 24
}
