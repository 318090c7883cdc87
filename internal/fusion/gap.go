package fusion

import (
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/util"
)

// Gap is the portion of a request window the archive did not cover.
type Gap struct {
	From time.Time
	To   time.Time
}

// ComputeGap decides what still needs fetching from the live feed
// after the archive answered. Coverage is judged in calendar days: an
// archive whose last bar lands on the window's end day fully covers
// the window, regardless of intraday timestamps.
//
// An empty archive, or one whose freshest bar carries no usable
// timestamp, degrades to the full window.
func ComputeGap(bars []models.Bar, from, to time.Time) (Gap, bool) {
	full := Gap{From: from, To: to}
	if len(bars) == 0 {
		return full, true
	}

	// bars arrive in ascending order; the last one is the freshest
	last := bars[len(bars)-1].Date
	if last.IsZero() {
		return full, true
	}

	lastDay := util.DayOf(last)
	endDay := util.DayOf(to)
	if !lastDay.Before(endDay) {
		return Gap{}, false
	}

	return Gap{From: lastDay.AddDate(0, 0, 1), To: to}, true
}
