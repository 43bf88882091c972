package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// PriceScenario selects one of the record's electricity price series.
type PriceScenario string

const (
	PriceNormal PriceScenario = "normal"
	PriceHigh   PriceScenario = "high"
)

// ParsePriceScenario validates a scenario name.
func ParsePriceScenario(s string) (PriceScenario, error) {
	switch PriceScenario(s) {
	case PriceNormal, PriceHigh:
		return PriceScenario(s), nil
	case "":
		return PriceNormal, nil
	}
	return "", fmt.Errorf("unknown price scenario %q (want normal or high)", s)
}

// HistoricalRow is one fixed-interval row of station history.
type HistoricalRow struct {
	Timestamp       time.Time
	InflowM3        float64            // per-step inflow volume
	PriceNormal     float64            // EUR/kWh
	PriceHigh       float64            // EUR/kWh
	LevelM          float64            // measured level, valid when HasLevel
	HasLevel        bool
	PumpFrequencyHz map[string]float64 // historical drive frequency per pump; 0 = stopped
}

// Price returns the row's price for scenario.
func (r HistoricalRow) Price(scenario PriceScenario) float64 {
	if scenario == PriceHigh {
		return r.PriceHigh
	}
	return r.PriceNormal
}

// HistoricalRecord is the pre-loaded station history the evaluation runs against.
type HistoricalRecord interface {
	Len() int
	Row(i int) (HistoricalRow, bool)
}

// MemoryRecord is an in-memory HistoricalRecord.
type MemoryRecord struct {
	rows []HistoricalRow
}

// NewMemoryRecord validates that timestamps strictly increase and wraps rows.
// A non-uniform interval is logged, not rejected.
func NewMemoryRecord(rows []HistoricalRow) (*MemoryRecord, error) {
	for i, row := range rows {
		if err := row.validate(); err != nil {
			return nil, fmt.Errorf("record row %d: %w", i, err)
		}
	}
	var interval time.Duration
	for i := 1; i < len(rows); i++ {
		d := rows[i].Timestamp.Sub(rows[i-1].Timestamp)
		if d <= 0 {
			return nil, fmt.Errorf("record row %d: timestamp %s not after %s", i,
				rows[i].Timestamp.Format(time.RFC3339), rows[i-1].Timestamp.Format(time.RFC3339))
		}
		if interval == 0 {
			interval = d
		} else if d != interval {
			logrus.Warnf("record row %d: interval %s differs from %s", i, d, interval)
		}
	}
	return &MemoryRecord{rows: rows}, nil
}

func (r HistoricalRow) validate() error {
	finite := func(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
	switch {
	case !finite(r.InflowM3):
		return fmt.Errorf("inflow %v is not finite", r.InflowM3)
	case !finite(r.PriceNormal) || !finite(r.PriceHigh):
		return fmt.Errorf("prices %v/%v are not finite", r.PriceNormal, r.PriceHigh)
	case r.HasLevel && !finite(r.LevelM):
		return fmt.Errorf("level %v is not finite", r.LevelM)
	}
	for id, f := range r.PumpFrequencyHz {
		if !finite(f) {
			return fmt.Errorf("pump %s frequency %v is not finite", id, f)
		}
	}
	return nil
}

// Len returns the number of rows.
func (r *MemoryRecord) Len() int {
	return len(r.rows)
}

// Row returns row i, or false when i is out of range.
func (r *MemoryRecord) Row(i int) (HistoricalRow, bool) {
	if i < 0 || i >= len(r.rows) {
		return HistoricalRow{}, false
	}
	return r.rows[i], true
}

// PricesFrom returns up to n prices for scenario starting at index start.
func PricesFrom(record HistoricalRecord, start, n int, scenario PriceScenario) []float64 {
	out := make([]float64, 0, n)
	for i := start; i < start+n; i++ {
		row, ok := record.Row(i)
		if !ok {
			break
		}
		out = append(out, row.Price(scenario))
	}
	return out
}
