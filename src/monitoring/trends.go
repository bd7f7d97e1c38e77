package monitoring

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"rentalops/src/tracker"

	"github.com/shopspring/decimal"
)

const (
	movingAverageWindow = 3
	maxTrendBuckets     = 1000
)

var (
	hundred         = decimal.NewFromInt(100)
	changeThreshold = decimal.NewFromInt(20)
)

type Direction string

const (
	DirectionIncreasing Direction = "increasing"
	DirectionDecreasing Direction = "decreasing"
	DirectionStable     Direction = "stable"
)

type TrendBucket struct {
	Start         time.Time `json:"start"`
	Count         int       `json:"count"`
	MovingAverage float64   `json:"movingAverage"`
}

type TrendAnalysis struct {
	Period          string        `json:"period"`
	Granularity     string        `json:"granularity"`
	ErrorTypes      []string      `json:"errorTypes,omitempty"`
	Buckets         []TrendBucket `json:"buckets"`
	Total           int           `json:"total"`
	Average         float64       `json:"average"`
	Direction       Direction     `json:"direction"`
	ChangePercent   float64       `json:"changePercent"`
	PeakHour        int           `json:"peakHour"`
	PeakHourCount   int           `json:"peakHourCount"`
	Recommendations []string      `json:"recommendations"`
}

// AnalyzeTrends buckets the timeline points inside [now-period, now] and
// derives a moving average, a direction and the busiest hour of the day.
// PeakHour is -1 when there is no data.
func AnalyzeTrends(points []tracker.TrendPoint, now time.Time, period, granularity time.Duration, codes []string) TrendAnalysis {
	n := int((period + granularity - 1) / granularity)
	if n < 1 {
		n = 1
	}
	first := now.Truncate(granularity).Add(-time.Duration(n-1) * granularity)

	wanted := make(map[string]bool, len(codes))
	for _, c := range codes {
		wanted[c] = true
	}

	counts := make([]int, n)
	var byHour [24]int
	total := 0
	for _, p := range points {
		if len(wanted) > 0 && !wanted[p.Code] {
			continue
		}
		if p.Timestamp.Before(now.Add(-period)) || p.Timestamp.Before(first) || p.Timestamp.After(now) {
			continue
		}
		i := int(p.Timestamp.Sub(first) / granularity)
		if i >= n {
			continue
		}
		counts[i]++
		byHour[p.Timestamp.UTC().Hour()]++
		total++
	}

	a := TrendAnalysis{
		Period:      period.String(),
		Granularity: granularity.String(),
		ErrorTypes:  codes,
		Buckets:     make([]TrendBucket, n),
		Total:       total,
		PeakHour:    -1,
	}
	for i := range counts {
		a.Buckets[i] = TrendBucket{
			Start:         first.Add(time.Duration(i) * granularity),
			Count:         counts[i],
			MovingAverage: movingAverage(counts, i).Round(2).InexactFloat64(),
		}
	}
	avg := decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(int64(n)))
	a.Average = avg.Round(2).InexactFloat64()

	var change decimal.Decimal
	a.Direction, change = direction(counts)
	a.ChangePercent = change.Round(1).InexactFloat64()

	for h, c := range byHour {
		if c > a.PeakHourCount {
			a.PeakHour, a.PeakHourCount = h, c
		}
	}
	a.Recommendations = recommendations(avg, a.Direction, a.PeakHour)
	return a
}

func movingAverage(counts []int, i int) decimal.Decimal {
	start := i - movingAverageWindow + 1
	if start < 0 {
		start = 0
	}
	sum := 0
	for _, c := range counts[start : i+1] {
		sum += c
	}
	return decimal.NewFromInt(int64(sum)).Div(decimal.NewFromInt(int64(i + 1 - start)))
}

// direction compares the most recent window of buckets with the one before it.
func direction(counts []int) (Direction, decimal.Decimal) {
	w := movingAverageWindow
	if len(counts)/2 < w {
		w = len(counts) / 2
	}
	if w == 0 {
		return DirectionStable, decimal.Zero
	}
	recent, previous := 0, 0
	for _, c := range counts[len(counts)-w:] {
		recent += c
	}
	for _, c := range counts[len(counts)-2*w : len(counts)-w] {
		previous += c
	}
	if previous == 0 {
		if recent > 0 {
			return DirectionIncreasing, hundred
		}
		return DirectionStable, decimal.Zero
	}
	change := decimal.NewFromInt(int64(recent - previous)).
		Div(decimal.NewFromInt(int64(previous))).
		Mul(hundred)
	switch {
	case change.GreaterThan(changeThreshold):
		return DirectionIncreasing, change
	case change.LessThan(changeThreshold.Neg()):
		return DirectionDecreasing, change
	default:
		return DirectionStable, change
	}
}

func recommendations(avg decimal.Decimal, dir Direction, peakHour int) []string {
	var out []string
	switch {
	case avg.GreaterThan(decimal.NewFromInt(10)):
		out = append(out, "High error volume: review the top error types and the latest deployments")
	case avg.GreaterThan(decimal.NewFromInt(5)):
		out = append(out, "Moderate error volume: keep an eye on the most affected endpoints")
	default:
		out = append(out, "Error volume is within normal levels")
	}
	switch dir {
	case DirectionIncreasing:
		out = append(out, "Errors are trending up: check recent changes and external dependencies")
	case DirectionDecreasing:
		out = append(out, "Errors are trending down: recent fixes appear to be effective")
	}
	if peakHour >= 0 {
		out = append(out, fmt.Sprintf("Errors peak around %02d:00 UTC: avoid scheduling maintenance in that hour", peakHour))
	}
	return out
}

// parseWindow accepts Go durations plus a day suffix, e.g. "7d".
func parseWindow(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid window %q", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid window %q", s)
	}
	return d, nil
}

func parseGranularity(s string) (time.Duration, error) {
	switch s {
	case "", "hour":
		return time.Hour, nil
	case "minute":
		return time.Minute, nil
	case "day":
		return 24 * time.Hour, nil
	default:
		return parseWindow(s, time.Hour)
	}
}
