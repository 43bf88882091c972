package sim

import (
	"fmt"
	"math"
	"time"
)

// TankKernel advances the tunnel storage by one step per call.
//
// It owns level, volume, the simulation clock and the cumulative energy and
// cost totals. It has no controller: pump commands come from outside and are
// applied as given. A TankKernel belongs to exactly one run and is not safe
// for concurrent use.
type TankKernel struct {
	converter VolumeLevelConverter
	model     PerformanceModel
	stepHours float64
	stepDur   time.Duration

	clock     time.Time
	levelM    float64
	volumeM3  float64
	last      []PumpStatus
	cumCost   float64
	cumEnergy float64
}

// NewTankKernel builds a kernel whose initial volume is derived from
// cfg.InitialLevelM through the converter.
func NewTankKernel(cfg KernelConfig, converter VolumeLevelConverter, model PerformanceModel) (*TankKernel, error) {
	if converter == nil || model == nil {
		return nil, fmt.Errorf("tank kernel requires a converter and a performance model")
	}
	if math.IsNaN(cfg.InitialLevelM) || math.IsInf(cfg.InitialLevelM, 0) {
		return nil, fmt.Errorf("initial level must be finite, got %v", cfg.InitialLevelM)
	}
	stepDur := cfg.StepDuration
	if stepDur <= 0 {
		stepDur = DefaultStepDuration
	}
	volume := math.Max(0, converter.LevelToVolume(cfg.InitialLevelM))
	return &TankKernel{
		converter: converter,
		model:     model,
		stepHours: stepDur.Hours(),
		stepDur:   stepDur,
		clock:     cfg.StartTime,
		levelM:    converter.VolumeToLevel(volume),
		volumeM3:  volume,
	}, nil
}

// StepHours returns the step duration in hours.
func (k *TankKernel) StepHours() float64 {
	return k.stepHours
}

// Clock returns the timestamp of the next step.
func (k *TankKernel) Clock() time.Time {
	return k.clock
}

// Peek returns the pre-step decision snapshot: current storage, the upcoming
// exogenous inflow and price, and the pump statuses of the previous step.
func (k *TankKernel) Peek(inflowM3, priceEURPerKWh float64, recordIndex int) SystemState {
	return SystemState{
		Timestamp:           k.clock,
		RecordIndex:         recordIndex,
		LevelM:              k.levelM,
		VolumeM3:            k.volumeM3,
		InflowM3:            inflowM3,
		PriceEURPerKWh:      priceEURPerKWh,
		Pumps:               append([]PumpStatus(nil), k.last...),
		CumulativeCostEUR:   k.cumCost,
		CumulativeEnergyKWh: k.cumEnergy,
	}
}

// Step applies one step of mass balance and energy accounting.
//
// inflowM3 is the volume entering during the step. Running pumps are
// evaluated at the pre-step level. Volume is clamped at zero; the level is
// not clamped above the physical maximum.
func (k *TankKernel) Step(inflowM3 float64, commands []PumpCommand, priceEURPerKWh float64, recordIndex int) SystemState {
	merged := mergeCommands(commands)
	statuses := make([]PumpStatus, 0, len(merged))
	totalFlow, totalPower := 0.0, 0.0
	for _, cmd := range merged {
		status := PumpStatus{PumpID: cmd.PumpID, Running: cmd.Active()}
		if status.Running {
			perf := k.model.Performance(cmd.PumpID, cmd.FrequencyHz, k.levelM)
			status.FrequencyHz = cmd.FrequencyHz
			status.FlowM3H = perf.FlowM3H
			status.PowerKW = perf.PowerKW
			status.Efficiency = perf.Efficiency
			status.HeadM = perf.HeadM
			totalFlow += perf.FlowM3H
			totalPower += perf.PowerKW
		}
		statuses = append(statuses, status)
	}

	pumped := totalFlow * k.stepHours
	newVolume := math.Max(0, k.volumeM3+inflowM3-pumped)
	newLevel := k.converter.VolumeToLevel(newVolume)

	energy := totalPower * k.stepHours
	cost := energy * priceEURPerKWh
	k.cumEnergy += energy
	k.cumCost += cost

	state := SystemState{
		Timestamp:           k.clock,
		RecordIndex:         recordIndex,
		LevelM:              newLevel,
		VolumeM3:            newVolume,
		InflowM3:            inflowM3,
		OutflowM3H:          totalFlow,
		PriceEURPerKWh:      priceEURPerKWh,
		Pumps:               statuses,
		PumpedVolumeM3:      pumped,
		TotalPowerKW:        totalPower,
		StepEnergyKWh:       energy,
		StepCostEUR:         cost,
		CumulativeCostEUR:   k.cumCost,
		CumulativeEnergyKWh: k.cumEnergy,
	}

	k.levelM = newLevel
	k.volumeM3 = newVolume
	k.last = statuses
	k.clock = k.clock.Add(k.stepDur)
	return state.clone()
}
