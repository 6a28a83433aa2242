package normalize

import (
	"time"

	ingest "meterprofile/internal/ingest/domain"
)

const (
	weekdayBucket = 0
	weekendBucket = 1
)

// accumulator collects kW samples per (day type, hour) bucket.
type accumulator struct {
	intervalHours float64
	sums          [2][ingest.HoursPerDay]float64
	counts        [2][ingest.HoursPerDay]int
	dates         [2]map[string]struct{}
	first, last   time.Time
	peak, total   float64
	points        int
	dated         bool
}

func newAccumulator(intervalMinutes int) *accumulator {
	return &accumulator{
		intervalHours: float64(intervalMinutes) / 60,
		dates:         [2]map[string]struct{}{{}, {}},
	}
}

// add records one reading. Undated readings (pivot slots) always count as weekday
// and never contribute to the date range.
func (a *accumulator) add(at time.Time, kw float64, dated bool) {
	bucket := weekdayBucket
	if dated && ingest.IsWeekend(at) {
		bucket = weekendBucket
	}
	hour := at.Hour()
	a.sums[bucket][hour] += kw
	a.counts[bucket][hour]++
	a.points++
	a.total += kw * a.intervalHours
	if kw > a.peak {
		a.peak = kw
	}
	if !dated {
		return
	}
	a.dated = true
	a.dates[bucket][at.Format("2006-01-02")] = struct{}{}
	if a.first.IsZero() || at.Before(a.first) {
		a.first = at
	}
	if at.After(a.last) {
		a.last = at
	}
}

func (a *accumulator) profile(source string) ingest.Profile {
	p := ingest.Profile{
		Representation: ingest.RepresentationRawKW,
		DataPoints:     a.points,
		TotalKWh:       a.total,
		PeakKW:         a.peak,
		SourceFileName: source,
	}
	for hour := 0; hour < ingest.HoursPerDay; hour++ {
		if n := a.counts[weekdayBucket][hour]; n > 0 {
			p.Weekday[hour] = a.sums[weekdayBucket][hour] / float64(n)
		}
		if n := a.counts[weekendBucket][hour]; n > 0 {
			p.Weekend[hour] = a.sums[weekendBucket][hour] / float64(n)
		}
	}
	if a.dated {
		p.DateRangeStart = a.first
		p.DateRangeEnd = a.last
		p.WeekdayDays = len(a.dates[weekdayBucket])
		p.WeekendDays = len(a.dates[weekendBucket])
	}
	return p
}
