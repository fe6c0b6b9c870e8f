package timeutil

import (
	"math"
	"sort"
	"time"
)

// GPSEpoch is GPS time zero.
var GPSEpoch = time.Date(1980, time.January, 6, 0, 0, 0, 0, time.UTC)

// leapDates are the UTC instants from which each leap second after the
// GPS epoch applies.
var leapDates = []time.Time{
	utcDate(1981, 7), utcDate(1982, 7), utcDate(1983, 7), utcDate(1985, 7),
	utcDate(1988, 1), utcDate(1990, 1), utcDate(1991, 1), utcDate(1992, 7),
	utcDate(1993, 7), utcDate(1994, 7), utcDate(1996, 1), utcDate(1997, 7),
	utcDate(1999, 1), utcDate(2006, 1), utcDate(2009, 1), utcDate(2012, 7),
	utcDate(2015, 7), utcDate(2017, 1),
}

// leapGPS[i] is the GPS time at which leapDates[i] takes effect.
var leapGPS = func() []float64 {
	out := make([]float64, len(leapDates))
	for i, d := range leapDates {
		out[i] = d.Sub(GPSEpoch).Seconds() + float64(i+1)
	}
	return out
}()

func utcDate(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

// LeapSeconds returns GPS-UTC at GPS time gps.
func LeapSeconds(gps float64) int {
	return sort.Search(len(leapGPS), func(i int) bool { return leapGPS[i] > gps })
}

// GPSToUTC converts GPS seconds to UTC.
func GPSToUTC(gps float64) time.Time {
	sec, frac := math.Modf(gps - float64(LeapSeconds(gps)))
	return GPSEpoch.Add(time.Duration(sec) * time.Second).Add(time.Duration(frac * float64(time.Second)))
}

// UTCToGPS converts a time to GPS seconds.
func UTCToGPS(t time.Time) float64 {
	t = t.UTC()
	n := sort.Search(len(leapDates), func(i int) bool { return leapDates[i].After(t) })
	return t.Sub(GPSEpoch).Seconds() + float64(n)
}
