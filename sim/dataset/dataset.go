// Package dataset loads the station's historical record and calibration
// table from CSV files.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hsy-tunnel/tunnel-sim/sim"
)

// Record columns. Pump frequency columns are named freq_<pump id>.
const (
	ColTimestamp   = "timestamp"
	ColInflow      = "inflow_m3"
	ColPriceNormal = "price_normal"
	ColPriceHigh   = "price_high"
	ColLevel       = "level_m"
	FreqPrefix     = "freq_"

	ColCalLevel  = "level_m"
	ColCalVolume = "volume_m3"
)

// timestampLayouts are tried in order when parsing the timestamp column.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// LoadRecordCSV reads a historical record from path.
func LoadRecordCSV(path string) (*sim.MemoryRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening record: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadRecordCSV(file)
}

// ReadRecordCSV parses a header-driven record. timestamp, inflow_m3,
// price_normal and price_high are required; level_m and freq_<id> columns
// are optional. An empty level cell means no measurement; an empty
// frequency cell means the pump was stopped.
func ReadRecordCSV(r io.Reader) (*sim.MemoryRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading record header: %w", err)
	}
	cols := indexColumns(header)
	for _, name := range []string{ColTimestamp, ColInflow, ColPriceNormal, ColPriceHigh} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("record header missing column %q", name)
		}
	}
	levelCol, hasLevel := cols[ColLevel]
	freqCols := make(map[string]int)
	for idx, name := range header {
		// Pump ids keep their case for alias lookup.
		if id, ok := strings.CutPrefix(strings.TrimSpace(name), FreqPrefix); ok && id != "" {
			freqCols[id] = idx
		}
	}

	var rows []sim.HistoricalRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record line %d: %w", line, err)
		}

		ts, err := parseTimestamp(record[cols[ColTimestamp]])
		if err != nil {
			return nil, fmt.Errorf("record line %d: %w", line, err)
		}
		row := sim.HistoricalRow{Timestamp: ts, PumpFrequencyHz: make(map[string]float64, len(freqCols))}
		if row.InflowM3, err = parseFloat(record[cols[ColInflow]], ColInflow); err != nil {
			return nil, fmt.Errorf("record line %d: %w", line, err)
		}
		if row.PriceNormal, err = parseFloat(record[cols[ColPriceNormal]], ColPriceNormal); err != nil {
			return nil, fmt.Errorf("record line %d: %w", line, err)
		}
		if row.PriceHigh, err = parseFloat(record[cols[ColPriceHigh]], ColPriceHigh); err != nil {
			return nil, fmt.Errorf("record line %d: %w", line, err)
		}
		if hasLevel && strings.TrimSpace(record[levelCol]) != "" {
			if row.LevelM, err = parseFloat(record[levelCol], ColLevel); err != nil {
				return nil, fmt.Errorf("record line %d: %w", line, err)
			}
			row.HasLevel = true
		}
		for id, idx := range freqCols {
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				row.PumpFrequencyHz[id] = 0
				continue
			}
			f, err := parseFloat(cell, FreqPrefix+id)
			if err != nil {
				return nil, fmt.Errorf("record line %d: %w", line, err)
			}
			row.PumpFrequencyHz[id] = f
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("record has no data rows")
	}
	return sim.NewMemoryRecord(rows)
}

// LoadCalibrationCSV reads a level_m,volume_m3 table from path.
func LoadCalibrationCSV(path string) (*sim.CalibrationTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening calibration table: %w", err)
	}
	defer func() { _ = file.Close() }()
	return ReadCalibrationCSV(file)
}

// ReadCalibrationCSV parses a calibration table. Ordering and monotonicity
// are checked by sim.NewCalibrationTable.
func ReadCalibrationCSV(r io.Reader) (*sim.CalibrationTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading calibration header: %w", err)
	}
	cols := indexColumns(header)
	levelCol, ok := cols[ColCalLevel]
	if !ok {
		return nil, fmt.Errorf("calibration header missing column %q", ColCalLevel)
	}
	volumeCol, ok := cols[ColCalVolume]
	if !ok {
		return nil, fmt.Errorf("calibration header missing column %q", ColCalVolume)
	}

	var points []sim.CalibrationPoint
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("calibration line %d: %w", line, err)
		}
		level, err := parseFloat(record[levelCol], ColCalLevel)
		if err != nil {
			return nil, fmt.Errorf("calibration line %d: %w", line, err)
		}
		volume, err := parseFloat(record[volumeCol], ColCalVolume)
		if err != nil {
			return nil, fmt.Errorf("calibration line %d: %w", line, err)
		}
		points = append(points, sim.CalibrationPoint{LevelM: level, VolumeM3: volume})
	}
	table, err := sim.NewCalibrationTable(points)
	if err != nil {
		return nil, fmt.Errorf("calibration table: %w", err)
	}
	return table, nil
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func parseFloat(s, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("column %s: invalid number %q", column, s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("column %s: non-finite value %q", column, s)
	}
	return v, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("column %s: unrecognized time %q", ColTimestamp, s)
}
