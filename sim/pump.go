package sim

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
)

// LitersPerSecondToM3PerHour converts a rated flow in l/s to m³/h.
const LitersPerSecondToM3PerHour = 3.6

const (
	minEfficiency = 0.70
	maxEfficiency = 0.90
	// efficiency drops 5% of rated per unit of relative speed deviation
	efficiencyDeviationPenalty = 0.05
)

// ErrNoLargeTemplate is returned when the model has no large-pump fallback template.
var ErrNoLargeTemplate = errors.New("pump model requires a large-pump template for unknown ids")

// PumpClass is the size class of a pump.
type PumpClass string

const (
	PumpClassLarge PumpClass = "large"
	PumpClassSmall PumpClass = "small"
)

// PumpSpec is the calibrated rating of one pump at nominal frequency.
type PumpSpec struct {
	ID                 string    `json:"id" yaml:"id"`
	Class              PumpClass `json:"class" yaml:"class"`
	RatedPowerKW       float64   `json:"rated_power_kw" yaml:"rated_power_kw"`
	RatedFlowLS        float64   `json:"rated_flow_ls" yaml:"rated_flow_ls"`
	RatedHeadM         float64   `json:"rated_head_m" yaml:"rated_head_m"`
	RatedEfficiency    float64   `json:"rated_efficiency" yaml:"rated_efficiency"`
	NominalFrequencyHz float64   `json:"nominal_frequency_hz" yaml:"nominal_frequency_hz"`
}

// RatedFlowM3H returns the rated flow in m³/h.
func (s PumpSpec) RatedFlowM3H() float64 {
	return s.RatedFlowLS * LitersPerSecondToM3PerHour
}

func (s PumpSpec) validate() error {
	if s.NominalFrequencyHz <= 0 {
		return fmt.Errorf("pump %q: nominal frequency must be > 0, got %v", s.ID, s.NominalFrequencyHz)
	}
	if s.RatedFlowLS < 0 || s.RatedPowerKW < 0 {
		return fmt.Errorf("pump %q: rated flow and power must be >= 0", s.ID)
	}
	return nil
}

// PumpPerformance is the operating point of one pump.
type PumpPerformance struct {
	FlowM3H    float64
	PowerKW    float64
	Efficiency float64
	HeadM      float64 // reported only; does not feed back into flow or power
}

// PerformanceModel computes a pump's operating point. TankKernel depends on this
// interface so tests can substitute a fixed model.
type PerformanceModel interface {
	Performance(pumpID string, frequencyHz, levelM float64) PumpPerformance
}

// PumpModelConfig groups the calibration inputs of a PumpPerformanceModel.
type PumpModelConfig struct {
	Pumps          []PumpSpec             // individually calibrated pumps
	Templates      map[PumpClass]PumpSpec // class templates; large is required as the unknown-id fallback
	Aliases        map[string]string      // legacy id → calibrated id
	WWTPElevationM float64                // discharge elevation used for head reporting
}

// PumpPerformanceModel applies the affinity laws to per-pump calibrations.
// It is immutable after construction and safe for concurrent use.
type PumpPerformanceModel struct {
	specs          map[string]PumpSpec
	templates      map[PumpClass]PumpSpec
	aliases        map[string]string
	ids            []string
	wwtpElevationM float64
}

// NewPumpPerformanceModel validates the calibration and builds a model.
func NewPumpPerformanceModel(cfg PumpModelConfig) (*PumpPerformanceModel, error) {
	large, ok := cfg.Templates[PumpClassLarge]
	if !ok {
		return nil, ErrNoLargeTemplate
	}
	if err := large.validate(); err != nil {
		return nil, fmt.Errorf("large template: %w", err)
	}
	m := &PumpPerformanceModel{
		specs:          make(map[string]PumpSpec, len(cfg.Pumps)),
		templates:      make(map[PumpClass]PumpSpec, len(cfg.Templates)),
		aliases:        make(map[string]string, len(cfg.Aliases)),
		wwtpElevationM: cfg.WWTPElevationM,
	}
	for class, t := range cfg.Templates {
		if err := t.validate(); err != nil {
			return nil, fmt.Errorf("%s template: %w", class, err)
		}
		m.templates[class] = t
	}
	for _, s := range cfg.Pumps {
		if s.ID == "" {
			return nil, fmt.Errorf("pump spec with empty id")
		}
		if _, dup := m.specs[s.ID]; dup {
			return nil, fmt.Errorf("duplicate pump id %q", s.ID)
		}
		if err := s.validate(); err != nil {
			return nil, err
		}
		m.specs[s.ID] = s
		m.ids = append(m.ids, s.ID)
	}
	for alias, target := range cfg.Aliases {
		if _, ok := m.specs[target]; !ok {
			return nil, fmt.Errorf("alias %q points at unknown pump %q", alias, target)
		}
		m.aliases[alias] = target
	}
	sort.Strings(m.ids)
	return m, nil
}

// PumpIDs returns the calibrated pump ids in sorted order.
func (m *PumpPerformanceModel) PumpIDs() []string {
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// Spec resolves the spec for pumpID: alias, then exact id, then the large template.
// fallback reports whether the template was used.
func (m *PumpPerformanceModel) Spec(pumpID string) (spec PumpSpec, fallback bool) {
	id := pumpID
	if target, ok := m.aliases[id]; ok {
		id = target
	}
	if s, ok := m.specs[id]; ok {
		return s, false
	}
	s := m.templates[PumpClassLarge]
	s.ID = pumpID
	return s, true
}

// Head returns the pumping head for a tunnel level.
func (m *PumpPerformanceModel) Head(levelM float64) float64 {
	return m.wwtpElevationM - levelM
}

// Performance returns flow (m³/h), power (kW), efficiency and head for a pump
// running at frequencyHz with the tunnel at levelM. frequencyHz <= 0 means off.
func (m *PumpPerformanceModel) Performance(pumpID string, frequencyHz, levelM float64) PumpPerformance {
	perf := PumpPerformance{HeadM: m.Head(levelM)}
	if frequencyHz <= 0 {
		return perf
	}
	spec, fallback := m.Spec(pumpID)
	if fallback {
		logrus.Debugf("pump %q has no calibration; using large-pump template", pumpID)
	}
	r := frequencyHz / spec.NominalFrequencyHz
	perf.FlowM3H = spec.RatedFlowM3H() * r
	perf.PowerKW = spec.RatedPowerKW * r * r * r
	eff := spec.RatedEfficiency * (1 - efficiencyDeviationPenalty*math.Abs(r-1))
	perf.Efficiency = math.Max(minEfficiency, math.Min(maxEfficiency, eff))
	return perf
}
