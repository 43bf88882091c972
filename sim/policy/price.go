package policy

import (
	"math"
	"sort"
)

// DefaultCheapPercentile is the price percentile at or below which a step
// counts as cheap.
const DefaultCheapPercentile = 25.0

// CheapWindow is a maximal run of consecutive cheap steps. Start and End are
// inclusive record indices.
type CheapWindow struct {
	Start    int     `json:"start"`
	End      int     `json:"end"`
	AvgPrice float64 `json:"avg_price"`
}

// Percentile returns the p-th percentile (0..100) of values using linear
// interpolation between closest ranks. It returns NaN for an empty slice.
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	p = math.Max(0, math.Min(100, p))
	pos := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// CheapWindows finds the runs of prices at or below the given percentile of
// prices. offset is the record index of prices[0].
func CheapWindows(prices []float64, offset int, percentile float64) []CheapWindow {
	if len(prices) == 0 {
		return nil
	}
	threshold := Percentile(prices, percentile)
	var windows []CheapWindow
	start := -1
	closeWindow := func(end int) {
		windows = append(windows, CheapWindow{
			Start:    offset + start,
			End:      offset + end,
			AvgPrice: Mean(prices[start : end+1]),
		})
		start = -1
	}
	for i, p := range prices {
		if p <= threshold {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			closeWindow(i - 1)
		}
	}
	if start >= 0 {
		closeWindow(len(prices) - 1)
	}
	return windows
}
