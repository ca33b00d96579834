package booking

import (
	"math"
	"time"
)

// StartingBalance is credited to every newly registered user.
const StartingBalance = 5.00

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Cost is the price of holding karts whose hourly rates add up to
// hourlyTotal for d.
func Cost(d time.Duration, hourlyTotal uint64) float64 {
	return round2(d.Hours() * float64(hourlyTotal))
}
