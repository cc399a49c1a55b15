package pricing

import (
	"math"
	"time"
)

const (
	basePrice        = 159.0 // 60 minute session
	perQuarterHour   = 35.0  // each 15 minutes past the first hour
	weekendMultiple  = 1.2
	eveningMultiple  = 1.2 // 16:00-21:00 start
	nightMultiple    = 1.3 // 21:00-09:00 start
	paidParkingExtra = 20.0
)

// Quote computes the session price for a duration in minutes, the scheduled
// start time and the parking option. Surcharges compound: a weekend evening is
// both the weekend and the evening multiple.
func Quote(durationMin int, scheduledAt time.Time, parking string) float64 {
	if durationMin < 60 {
		durationMin = 60
	}

	price := basePrice + float64((durationMin-60)/15)*perQuarterHour

	switch scheduledAt.Weekday() {
	case time.Saturday, time.Sunday:
		price *= weekendMultiple
	}

	hour := scheduledAt.Hour()
	switch {
	case hour >= 21 || hour < 9:
		price *= nightMultiple
	case hour >= 16:
		price *= eveningMultiple
	}

	if parking == "paid" {
		price += paidParkingExtra
	}

	return math.Round(price*100) / 100
}
