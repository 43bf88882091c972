package sim

// DefaultWWTPElevationM is the constant discharge level at the treatment plant.
const DefaultWWTPElevationM = 30.0

// LargePumpTemplate is the datasheet rating of the large pump type.
var LargePumpTemplate = PumpSpec{
	ID:                 "large",
	Class:              PumpClassLarge,
	RatedPowerKW:       386,
	RatedFlowLS:        925,
	RatedHeadM:         31.5,
	RatedEfficiency:    0.848,
	NominalFrequencyHz: 50,
}

// SmallPumpTemplate is the datasheet rating of the small pump type.
var SmallPumpTemplate = PumpSpec{
	ID:                 "small",
	Class:              PumpClassSmall,
	RatedPowerKW:       192.5,
	RatedFlowLS:        464,
	RatedHeadM:         31.5,
	RatedEfficiency:    0.816,
	NominalFrequencyHz: 50,
}

// calibratedPower holds rated power at 50 Hz back-calculated per pump from
// operating records with the cubic law P_rated = P_measured / (f/50)³.
var calibratedPower = []struct {
	id      string
	class   PumpClass
	powerKW float64
}{
	{"1.1", PumpClassSmall, 192.7},
	{"1.2", PumpClassLarge, 381.1},
	{"1.3", PumpClassLarge, 381.1},
	{"1.4", PumpClassLarge, 398.0},
	{"2.1", PumpClassSmall, 192.3},
	{"2.2", PumpClassLarge, 393.9},
	{"2.3", PumpClassLarge, 394.6},
	{"2.4", PumpClassLarge, 368.4},
}

// DefaultPumpSpecs returns the station's eight calibrated pumps.
func DefaultPumpSpecs() []PumpSpec {
	specs := make([]PumpSpec, 0, len(calibratedPower))
	for _, c := range calibratedPower {
		base := LargePumpTemplate
		if c.class == PumpClassSmall {
			base = SmallPumpTemplate
		}
		base.ID = c.id
		base.Class = c.class
		base.RatedPowerKW = c.powerKW
		specs = append(specs, base)
	}
	return specs
}

// DefaultPumpModelConfig returns the station calibration, including the
// legacy two-pump aliases used by older decision services.
func DefaultPumpModelConfig() PumpModelConfig {
	return PumpModelConfig{
		Pumps: DefaultPumpSpecs(),
		Templates: map[PumpClass]PumpSpec{
			PumpClassLarge: LargePumpTemplate,
			PumpClassSmall: SmallPumpTemplate,
		},
		Aliases:        map[string]string{"P1L": "1.1", "P2L": "2.1"},
		WWTPElevationM: DefaultWWTPElevationM,
	}
}
