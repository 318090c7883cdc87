package models

import (
	"fmt"
	"math"
	"time"
)

// Bar represents one OHLCV record at daily or minute resolution.
// Date carries the bar's timestamp: midnight for daily bars, the
// minute boundary for intraday bars.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate rejects bars a backend returned in a shape no market can
// produce: non-finite prices, inverted high/low, negative volume,
// or a zero timestamp.
func (b *Bar) Validate() error {
	if b.Date.IsZero() {
		return fmt.Errorf("bar has zero timestamp")
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s has non-finite price", b.Date.Format("2006-01-02"))
		}
	}
	if b.High < math.Max(b.Open, b.Close) {
		return fmt.Errorf("bar %s high %.4f below open/close", b.Date.Format("2006-01-02"), b.High)
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("bar %s low %.4f above open/close", b.Date.Format("2006-01-02"), b.Low)
	}
	if b.Volume < 0 || math.IsNaN(b.Volume) {
		return fmt.Errorf("bar %s has negative volume", b.Date.Format("2006-01-02"))
	}
	return nil
}
