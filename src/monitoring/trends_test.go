package monitoring

import (
	"testing"
	"time"

	"rentalops/src/tracker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsAt(base time.Time, code string, offsets ...time.Duration) []tracker.TrendPoint {
	var out []tracker.TrendPoint
	for _, o := range offsets {
		out = append(out, tracker.TrendPoint{Timestamp: base.Add(o), Code: code})
	}
	return out
}

func TestAnalyzeTrends_Increasing(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 30, 0, 0, time.UTC)
	// one error per hour in the first three buckets, three per hour in the last three
	var pts []tracker.TrendPoint
	pts = append(pts, pointsAt(now, "A", -5*time.Hour-30*time.Minute, -4*time.Hour-30*time.Minute, -3*time.Hour-30*time.Minute)...)
	for _, h := range []time.Duration{-2*time.Hour - 30*time.Minute, -time.Hour - 30*time.Minute, -30 * time.Minute} {
		pts = append(pts, pointsAt(now, "A", h, h+time.Minute, h+2*time.Minute)...)
	}

	a := AnalyzeTrends(pts, now, 6*time.Hour, time.Hour, nil)

	require.Len(t, a.Buckets, 6)
	assert.Equal(t, 12, a.Total)
	assert.Equal(t, DirectionIncreasing, a.Direction)
	assert.Equal(t, 200.0, a.ChangePercent)
	assert.Equal(t, 2.0, a.Average)
	assert.Equal(t, 1, a.Buckets[0].Count)
	assert.Equal(t, 3, a.Buckets[5].Count)
	assert.Equal(t, 3.0, a.Buckets[5].MovingAverage)
	assert.Equal(t, 1.67, a.Buckets[3].MovingAverage)
	assert.Contains(t, a.Recommendations, "Errors are trending up: check recent changes and external dependencies")
}

func TestAnalyzeTrends_FiltersAndPeakHour(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	pts := append(pointsAt(now, "A", -10*time.Minute, -70*time.Minute, -75*time.Minute),
		pointsAt(now, "B", -5*time.Minute, -6*time.Minute, -7*time.Minute, -48*time.Hour)...)

	a := AnalyzeTrends(pts, now, 24*time.Hour, time.Hour, []string{"A"})
	assert.Equal(t, 3, a.Total)
	assert.Equal(t, 10, a.PeakHour)
	assert.Equal(t, 2, a.PeakHourCount)

	all := AnalyzeTrends(pts, now, 24*time.Hour, time.Hour, nil)
	assert.Equal(t, 6, all.Total, "points older than the period are ignored")
	assert.Equal(t, 11, all.PeakHour)
}

func TestAnalyzeTrends_Empty(t *testing.T) {
	a := AnalyzeTrends(nil, time.Now(), time.Hour, time.Minute, nil)
	assert.Len(t, a.Buckets, 60)
	assert.Equal(t, DirectionStable, a.Direction)
	assert.Equal(t, -1, a.PeakHour)
	assert.Equal(t, []string{"Error volume is within normal levels"}, a.Recommendations)
}

func TestDirection(t *testing.T) {
	d, _ := direction([]int{5, 5, 5, 1, 1, 1})
	assert.Equal(t, DirectionDecreasing, d)
	d, _ = direction([]int{5, 5, 5, 5, 5, 6})
	assert.Equal(t, DirectionStable, d)
	d, _ = direction([]int{4})
	assert.Equal(t, DirectionStable, d)
	d, _ = direction([]int{0, 2})
	assert.Equal(t, DirectionIncreasing, d)
}

func TestParseWindow(t *testing.T) {
	d, err := parseWindow("7d", 0)
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	d, err = parseWindow("", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, d)

	_, err = parseWindow("-1h", 0)
	assert.Error(t, err)
	_, err = parseWindow("xd", 0)
	assert.Error(t, err)

	g, err := parseGranularity("minute")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, g)
}
