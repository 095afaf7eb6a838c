package feed

import (
	"math"
	"math/rand"
	"time"

	"github.com/tradescript/tradescript/pkg/types"
)

// SyntheticSpec describes a deterministic random-walk bar series.
// The same spec always produces the same bars.
type SyntheticSpec struct {
	Bars       int     `json:"bars"`
	StartPrice float64 `json:"start_price"`
	Drift      float64 `json:"drift"`      // per-bar expected move
	Volatility float64 `json:"volatility"` // per-bar noise scale
	BaseVolume float64 `json:"base_volume"`
	Seed       int64   `json:"seed"`
}

// Synthetic generates a random-walk OHLCV series from the spec.
// Prices are floored well above zero so returns stay finite.
func Synthetic(spec SyntheticSpec) []types.Bar {
	n := spec.Bars
	if n <= 0 {
		return []types.Bar{}
	}
	price := spec.StartPrice
	if price <= 0 {
		price = 100
	}
	vol := spec.Volatility
	if vol <= 0 {
		vol = 1
	}
	baseVolume := spec.BaseVolume
	if baseVolume <= 0 {
		baseVolume = 100_000
	}

	rng := rand.New(rand.NewSource(spec.Seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	bars := make([]types.Bar, n)
	for i := 0; i < n; i++ {
		open := price
		move := spec.Drift + rng.NormFloat64()*vol
		closePrice := math.Max(open+move, 0.01)
		high := math.Max(open, closePrice) + math.Abs(rng.NormFloat64())*vol*0.5
		low := math.Max(math.Min(open, closePrice)-math.Abs(rng.NormFloat64())*vol*0.5, 0.01)
		volume := baseVolume * (0.5 + rng.Float64())

		bars[i] = types.Bar{
			Index:     i,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		}
		price = closePrice
	}
	return bars
}
