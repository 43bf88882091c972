package sim

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmptyCalibration is returned when a calibration table has fewer than two points.
	ErrEmptyCalibration = errors.New("calibration table needs at least two points")
	// ErrNonMonotonicCalibration is returned when levels or volumes are not strictly increasing.
	ErrNonMonotonicCalibration = errors.New("calibration table must be strictly increasing in level and volume")
)

// VolumeLevelConverter converts between stored volume and water level.
type VolumeLevelConverter interface {
	VolumeToLevel(volumeM3 float64) float64
	LevelToVolume(levelM float64) float64
}

// CalibrationPoint is one measured (level, volume) pair.
type CalibrationPoint struct {
	LevelM   float64
	VolumeM3 float64
}

// CalibrationTable is the measured level ↔ volume relationship of the tunnel.
// It is immutable after construction and safe for concurrent use.
type CalibrationTable struct {
	levels  []float64
	volumes []float64
}

// NewCalibrationTable validates points and builds a table.
// Points must be given in ascending order; both fields must be strictly increasing.
func NewCalibrationTable(points []CalibrationPoint) (*CalibrationTable, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w (got %d)", ErrEmptyCalibration, len(points))
	}
	t := &CalibrationTable{
		levels:  make([]float64, len(points)),
		volumes: make([]float64, len(points)),
	}
	for i, p := range points {
		if math.IsNaN(p.LevelM) || math.IsInf(p.LevelM, 0) || math.IsNaN(p.VolumeM3) || math.IsInf(p.VolumeM3, 0) {
			return nil, fmt.Errorf("calibration point %d: non-finite value (level=%v, volume=%v)", i, p.LevelM, p.VolumeM3)
		}
		if i > 0 && (p.LevelM <= points[i-1].LevelM || p.VolumeM3 <= points[i-1].VolumeM3) {
			return nil, fmt.Errorf("%w: point %d (level=%v, volume=%v) after (level=%v, volume=%v)",
				ErrNonMonotonicCalibration, i, p.LevelM, p.VolumeM3, points[i-1].LevelM, points[i-1].VolumeM3)
		}
		t.levels[i] = p.LevelM
		t.volumes[i] = p.VolumeM3
	}
	return t, nil
}

// VolumeToLevel returns the level for a stored volume.
// Volumes outside the table extrapolate along the nearest segment.
func (t *CalibrationTable) VolumeToLevel(volumeM3 float64) float64 {
	return interpolate(t.volumes, t.levels, volumeM3)
}

// LevelToVolume returns the stored volume for a level.
// Levels outside the table extrapolate along the nearest segment.
func (t *CalibrationTable) LevelToVolume(levelM float64) float64 {
	return interpolate(t.levels, t.volumes, levelM)
}

// Range returns the first and last calibration points.
func (t *CalibrationTable) Range() (lo, hi CalibrationPoint) {
	n := len(t.levels) - 1
	return CalibrationPoint{LevelM: t.levels[0], VolumeM3: t.volumes[0]},
		CalibrationPoint{LevelM: t.levels[n], VolumeM3: t.volumes[n]}
}

// Len returns the number of calibration points.
func (t *CalibrationTable) Len() int {
	return len(t.levels)
}

// interpolate evaluates the piecewise-linear function through (xs, ys) at x.
// xs must be strictly increasing with len ≥ 2.
func interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	// Segment index i such that xs[i] <= x <= xs[i+1], clamped to the end segments.
	i := 0
	switch {
	case x <= xs[0]:
		i = 0
	case x >= xs[n-1]:
		i = n - 2
	default:
		lo, hi := 0, n-1
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if xs[mid] <= x {
				lo = mid
			} else {
				hi = mid
			}
		}
		i = lo
	}
	slope := (ys[i+1] - ys[i]) / (xs[i+1] - xs[i])
	return ys[i] + slope*(x-xs[i])
}
