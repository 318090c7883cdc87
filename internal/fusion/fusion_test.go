package fusion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func bar(ts time.Time, close float64) models.Bar {
	return models.Bar{
		Symbol: "C9999.XDCE",
		Date:   ts,
		Open:   close - 1,
		High:   close + 1,
		Low:    close - 2,
		Close:  close,
		Volume: 100,
	}
}

func TestComputeGapEmptyArchive(t *testing.T) {
	from, to := day(2025, 3, 1), day(2025, 3, 10)
	gap, has := ComputeGap(nil, from, to)
	require.True(t, has)
	assert.Equal(t, from, gap.From)
	assert.Equal(t, to, gap.To)
}

func TestComputeGapFullyCovered(t *testing.T) {
	from, to := day(2025, 3, 1), day(2025, 3, 10)
	bars := []models.Bar{bar(day(2025, 3, 9), 10), bar(day(2025, 3, 10), 11)}
	_, has := ComputeGap(bars, from, to)
	assert.False(t, has)
}

func TestComputeGapIntradayTimestampStillCovers(t *testing.T) {
	// an intraday bar at 09:31 on the end day counts as coverage of that day
	from := day(2025, 3, 1)
	to := time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC)
	bars := []models.Bar{bar(time.Date(2025, 3, 10, 9, 31, 0, 0, time.UTC), 10)}
	_, has := ComputeGap(bars, from, to)
	assert.False(t, has)
}

func TestComputeGapTrailing(t *testing.T) {
	from, to := day(2025, 3, 1), day(2025, 3, 10)
	bars := []models.Bar{bar(day(2025, 3, 5), 10)}
	gap, has := ComputeGap(bars, from, to)
	require.True(t, has)
	assert.Equal(t, day(2025, 3, 6), gap.From)
	assert.Equal(t, to, gap.To)
}

func TestComputeGapZeroTimestampDegrades(t *testing.T) {
	from, to := day(2025, 3, 1), day(2025, 3, 10)
	bars := []models.Bar{{Symbol: "C9999.XDCE"}}
	gap, has := ComputeGap(bars, from, to)
	require.True(t, has)
	assert.Equal(t, from, gap.From)
	assert.Equal(t, to, gap.To)
}

func TestMergeLiveWinsOnOverlap(t *testing.T) {
	overlap := day(2025, 3, 5)
	archive := []models.Bar{bar(day(2025, 3, 4), 10), bar(overlap, 10)}
	live := []models.Bar{bar(overlap, 99), bar(day(2025, 3, 6), 12)}

	res := Merge(archive, live)
	require.Len(t, res.Bars, 3)
	assert.Equal(t, models.SourceHybrid, res.Source)

	// ascending order
	assert.True(t, res.Bars[0].Date.Before(res.Bars[1].Date))
	assert.True(t, res.Bars[1].Date.Before(res.Bars[2].Date))

	// the overlapping day carries the live close
	assert.Equal(t, 99.0, res.Bars[1].Close)
}

func TestMergeDedupesAcrossLocations(t *testing.T) {
	// warehouse rows come back in the server's zone, live rows in UTC;
	// the same instant must still collapse to one bar with live winning
	cst := time.FixedZone("CST", 8*3600)
	instant := day(2024, 1, 5)
	archive := []models.Bar{bar(instant.In(cst), 10)}
	live := []models.Bar{bar(instant, 11)}

	res := Merge(archive, live)
	require.Len(t, res.Bars, 1)
	assert.Equal(t, 11.0, res.Bars[0].Close)
}

func TestMergeLabels(t *testing.T) {
	a := []models.Bar{bar(day(2025, 3, 4), 10)}
	l := []models.Bar{bar(day(2025, 3, 5), 11)}

	assert.Equal(t, models.SourceArchive, Merge(a, nil).Source)
	assert.Equal(t, models.SourceLive, Merge(nil, l).Source)
	assert.Equal(t, models.SourceHybrid, Merge(a, l).Source)
	assert.Equal(t, models.SourceNone, Merge(nil, nil).Source)
}
