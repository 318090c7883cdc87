package fusion

import (
	"sort"

	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/models"
)

// Merge fuses archive and live rows into one ascending series. When
// both backends produced a bar for the same timestamp the live row
// wins: the feed sees corrections and late prints the cold archive
// was loaded before.
func Merge(archive, live []models.Bar) models.FusionResult {
	if len(archive) == 0 && len(live) == 0 {
		return models.FusionResult{Source: models.SourceNone}
	}

	// Keyed on the unix instant, not time.Time: archive rows carry the
	// warehouse server's location while live rows are UTC, and the same
	// moment in two locations is still one bar.
	byTS := make(map[int64]models.Bar, len(archive)+len(live))
	for _, b := range archive {
		byTS[b.Date.Unix()] = b
	}
	for _, b := range live {
		byTS[b.Date.Unix()] = b
	}

	out := make([]models.Bar, 0, len(byTS))
	for _, b := range byTS {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	return models.FusionResult{
		Bars:   out,
		Source: models.Label(len(archive), len(live)),
	}
}
