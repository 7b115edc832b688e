// Package adjustment turns a post-workout survey into volume and intensity multipliers for the next session.
package adjustment

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrInvalidSurvey is returned when a survey answer is outside its enumeration.
var ErrInvalidSurvey = errors.New("invalid survey")

type Energy string

const (
	EnergyLow    Energy = "low"
	EnergyNormal Energy = "normal"
	EnergyHigh   Energy = "high"
)

type Soreness string

const (
	SorenessNone Soreness = "none"
	SorenessMild Soreness = "mild"
	SorenessHigh Soreness = "high"
)

type Pump string

const (
	PumpPoor      Pump = "poor"
	PumpGood      Pump = "good"
	PumpExcellent Pump = "excellent"
)

type Difficulty string

const (
	DifficultyTooEasy   Difficulty = "too_easy"
	DifficultyJustRight Difficulty = "just_right"
	DifficultyTooHard   Difficulty = "too_hard"
)

// Multiplier bounds.
const (
	MinVolume    = 0.8
	MaxVolume    = 1.2
	MinIntensity = 0.85
	MaxIntensity = 1.15
)

// Survey is the composite feedback collected after a workout.
type Survey struct {
	Energy            Energy
	Soreness          Soreness
	Pump              Pump
	JointPain         bool
	OverallDifficulty Difficulty
}

// Recommendation is one rule that fired while evaluating a survey.
type Recommendation struct {
	Rule    string
	Message string
}

// Adjustment scales the next session.
type Adjustment struct {
	VolumeMultiplier    float64
	IntensityMultiplier float64
	Reason              string
	// Recommendations lists every fired rule in evaluation order.
	Recommendations []Recommendation
}

// rule multiplies the running multipliers when matches holds.
type rule struct {
	id        string
	message   string
	matches   func(Survey) bool
	volume    float64
	intensity float64
}

// rules are evaluated in order. They are cumulative, several may fire for one survey.
var rules = []rule{ //nolint:gochecknoglobals // static rule table.
	{
		id:        "low_energy_high_soreness",
		message:   "Low energy and high soreness: reduce volume by 10%.",
		matches:   func(s Survey) bool { return s.Energy == EnergyLow && s.Soreness == SorenessHigh },
		volume:    0.9,
		intensity: 1,
	},
	{
		id:        "high_energy_fresh",
		message:   "High energy and no soreness: add 5% volume.",
		matches:   func(s Survey) bool { return s.Energy == EnergyHigh && s.Soreness == SorenessNone },
		volume:    1.05,
		intensity: 1,
	},
	{
		id:        "high_soreness",
		message:   "High soreness: reduce volume by 5% to recover.",
		matches:   func(s Survey) bool { return s.Soreness == SorenessHigh },
		volume:    0.95,
		intensity: 1,
	},
	{
		id:        "normal_energy_fresh",
		message:   "Recovered well: add 2% volume.",
		matches:   func(s Survey) bool { return s.Soreness == SorenessNone && s.Energy == EnergyNormal },
		volume:    1.02,
		intensity: 1,
	},
	{
		id:        "poor_pump",
		message:   "Poor pump: add 3% volume.",
		matches:   func(s Survey) bool { return s.Pump == PumpPoor && s.Energy == EnergyNormal },
		volume:    1.03,
		intensity: 1,
	},
	{
		id:        "excellent_pump_mild_soreness",
		message:   "Excellent pump with mild soreness: trim volume by 2%.",
		matches:   func(s Survey) bool { return s.Pump == PumpExcellent && s.Soreness == SorenessMild },
		volume:    0.98,
		intensity: 1,
	},
	{
		id:        "joint_pain",
		message:   "Joint pain reported: reduce intensity by 5%.",
		matches:   func(s Survey) bool { return s.JointPain },
		volume:    1,
		intensity: 0.95,
	},
	{
		id:        "too_easy",
		message:   "Workout felt too easy: add 5% volume and 2% intensity.",
		matches:   func(s Survey) bool { return s.OverallDifficulty == DifficultyTooEasy },
		volume:    1.05,
		intensity: 1.02,
	},
	{
		id:        "too_hard",
		message:   "Workout felt too hard: reduce volume by 10% and intensity by 5%.",
		matches:   func(s Survey) bool { return s.OverallDifficulty == DifficultyTooHard },
		volume:    0.9,
		intensity: 0.95,
	},
}

// Calculate evaluates every rule against s and clamps the resulting multipliers.
func Calculate(s Survey) (Adjustment, error) {
	if err := s.validate(); err != nil {
		return Adjustment{}, err
	}

	adj := Adjustment{
		VolumeMultiplier:    1,
		IntensityMultiplier: 1,
		Reason:              "",
		Recommendations:     []Recommendation{},
	}
	for _, r := range rules {
		if !r.matches(s) {
			continue
		}
		adj.VolumeMultiplier *= r.volume
		adj.IntensityMultiplier *= r.intensity
		adj.Recommendations = append(adj.Recommendations, Recommendation{Rule: r.id, Message: r.message})
	}

	adj.VolumeMultiplier = clamp(adj.VolumeMultiplier, MinVolume, MaxVolume)
	adj.IntensityMultiplier = clamp(adj.IntensityMultiplier, MinIntensity, MaxIntensity)
	adj.Reason = reason(adj)
	return adj, nil
}

func (s Survey) validate() error {
	var errs []error
	switch s.Energy {
	case EnergyLow, EnergyNormal, EnergyHigh:
	default:
		errs = append(errs, fmt.Errorf("%w: energy %q", ErrInvalidSurvey, s.Energy))
	}
	switch s.Soreness {
	case SorenessNone, SorenessMild, SorenessHigh:
	default:
		errs = append(errs, fmt.Errorf("%w: soreness %q", ErrInvalidSurvey, s.Soreness))
	}
	switch s.Pump {
	case PumpPoor, PumpGood, PumpExcellent:
	default:
		errs = append(errs, fmt.Errorf("%w: pump %q", ErrInvalidSurvey, s.Pump))
	}
	switch s.OverallDifficulty {
	case DifficultyTooEasy, DifficultyJustRight, DifficultyTooHard:
	default:
		errs = append(errs, fmt.Errorf("%w: overall difficulty %q", ErrInvalidSurvey, s.OverallDifficulty))
	}
	return errors.Join(errs...)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func reason(adj Adjustment) string {
	if len(adj.Recommendations) == 0 {
		return "Keep the current volume and intensity."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Volume x%.2f, intensity x%.2f based on:", adj.VolumeMultiplier, adj.IntensityMultiplier)
	for _, r := range adj.Recommendations {
		b.WriteString(" ")
		b.WriteString(r.Rule)
	}
	return b.String()
}

// Apply scales a prescription of sets at weight. Sets round to the nearest whole set with a
// minimum of one, the weight to the nearest 0.5.
func (a Adjustment) Apply(sets int, weight float64) (int, float64) {
	scaledSets := int(math.Round(float64(sets) * a.VolumeMultiplier))
	if scaledSets < 1 {
		scaledSets = 1
	}
	scaledWeight := math.Floor(weight*a.IntensityMultiplier*2+0.5) / 2 //nolint:mnd // half units
	return scaledSets, scaledWeight
}
