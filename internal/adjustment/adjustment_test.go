package adjustment_test

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/trainengine/internal/adjustment"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func ruleIDs(adj adjustment.Adjustment) []string {
	ids := make([]string, 0, len(adj.Recommendations))
	for _, r := range adj.Recommendations {
		ids = append(ids, r.Rule)
	}
	return ids
}

func TestCalculate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		survey        adjustment.Survey
		wantVolume    float64
		wantIntensity float64
		wantRules     []string
	}{
		{
			name: "nothing fires",
			survey: adjustment.Survey{
				Energy: adjustment.EnergyNormal, Soreness: adjustment.SorenessMild, Pump: adjustment.PumpGood,
				JointPain: false, OverallDifficulty: adjustment.DifficultyJustRight,
			},
			wantVolume: 1, wantIntensity: 1, wantRules: []string{},
		},
		{
			name: "fresh and too easy stack",
			survey: adjustment.Survey{
				Energy: adjustment.EnergyHigh, Soreness: adjustment.SorenessNone, Pump: adjustment.PumpGood,
				JointPain: false, OverallDifficulty: adjustment.DifficultyTooEasy,
			},
			wantVolume: 1.05 * 1.05, wantIntensity: 1.02,
			wantRules: []string{"high_energy_fresh", "too_easy"},
		},
		{
			name: "high soreness rules are cumulative and clamped",
			survey: adjustment.Survey{
				Energy: adjustment.EnergyLow, Soreness: adjustment.SorenessHigh, Pump: adjustment.PumpGood,
				JointPain: true, OverallDifficulty: adjustment.DifficultyTooHard,
			},
			wantVolume: adjustment.MinVolume, wantIntensity: 0.95 * 0.95,
			wantRules: []string{"low_energy_high_soreness", "high_soreness", "joint_pain", "too_hard"},
		},
		{
			name: "normal energy poor pump",
			survey: adjustment.Survey{
				Energy: adjustment.EnergyNormal, Soreness: adjustment.SorenessNone, Pump: adjustment.PumpPoor,
				JointPain: false, OverallDifficulty: adjustment.DifficultyJustRight,
			},
			wantVolume: 1.02 * 1.03, wantIntensity: 1,
			wantRules: []string{"normal_energy_fresh", "poor_pump"},
		},
		{
			name: "excellent pump with mild soreness",
			survey: adjustment.Survey{
				Energy: adjustment.EnergyHigh, Soreness: adjustment.SorenessMild, Pump: adjustment.PumpExcellent,
				JointPain: false, OverallDifficulty: adjustment.DifficultyJustRight,
			},
			wantVolume: 0.98, wantIntensity: 1,
			wantRules: []string{"excellent_pump_mild_soreness"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := adjustment.Calculate(tt.survey)
			if err != nil {
				t.Fatalf("Calculate() error = %v", err)
			}
			if !almostEqual(got.VolumeMultiplier, tt.wantVolume) {
				t.Errorf("VolumeMultiplier = %v, want %v", got.VolumeMultiplier, tt.wantVolume)
			}
			if !almostEqual(got.IntensityMultiplier, tt.wantIntensity) {
				t.Errorf("IntensityMultiplier = %v, want %v", got.IntensityMultiplier, tt.wantIntensity)
			}
			if diff := cmp.Diff(tt.wantRules, ruleIDs(got)); diff != "" {
				t.Errorf("fired rules mismatch (-want +got):\n%s", diff)
			}
			if got.Reason == "" {
				t.Error("expected a reason")
			}
		})
	}
}

// Every combination of survey answers stays within the multiplier bounds.
func TestCalculate_AllCombinationsWithinBounds(t *testing.T) {
	t.Parallel()
	energies := []adjustment.Energy{adjustment.EnergyLow, adjustment.EnergyNormal, adjustment.EnergyHigh}
	sorenesses := []adjustment.Soreness{adjustment.SorenessNone, adjustment.SorenessMild, adjustment.SorenessHigh}
	pumps := []adjustment.Pump{adjustment.PumpPoor, adjustment.PumpGood, adjustment.PumpExcellent}
	difficulties := []adjustment.Difficulty{
		adjustment.DifficultyTooEasy, adjustment.DifficultyJustRight, adjustment.DifficultyTooHard,
	}

	combinations := 0
	for _, energy := range energies {
		for _, soreness := range sorenesses {
			for _, pump := range pumps {
				for _, jointPain := range []bool{false, true} {
					for _, difficulty := range difficulties {
						survey := adjustment.Survey{
							Energy: energy, Soreness: soreness, Pump: pump,
							JointPain: jointPain, OverallDifficulty: difficulty,
						}
						got, err := adjustment.Calculate(survey)
						if err != nil {
							t.Fatalf("Calculate(%+v) error = %v", survey, err)
						}
						if got.VolumeMultiplier < adjustment.MinVolume || got.VolumeMultiplier > adjustment.MaxVolume {
							t.Errorf("Calculate(%+v) volume %v out of bounds", survey, got.VolumeMultiplier)
						}
						if got.IntensityMultiplier < adjustment.MinIntensity ||
							got.IntensityMultiplier > adjustment.MaxIntensity {
							t.Errorf("Calculate(%+v) intensity %v out of bounds", survey, got.IntensityMultiplier)
						}
						combinations++
					}
				}
			}
		}
	}
	if combinations != 162 {
		t.Errorf("enumerated %d combinations, want 162", combinations)
	}
}

func TestCalculate_InvalidSurvey(t *testing.T) {
	t.Parallel()
	_, err := adjustment.Calculate(adjustment.Survey{
		Energy: "sleepy", Soreness: adjustment.SorenessNone, Pump: adjustment.PumpGood,
		JointPain: false, OverallDifficulty: "",
	})
	if !errors.Is(err, adjustment.ErrInvalidSurvey) {
		t.Errorf("Calculate() error = %v, want ErrInvalidSurvey", err)
	}
}

func TestAdjustment_Apply(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		adj        adjustment.Adjustment
		sets       int
		weight     float64
		wantSets   int
		wantWeight float64
	}{
		{name: "neutral", adj: adjustment.Adjustment{VolumeMultiplier: 1, IntensityMultiplier: 1}, sets: 3, weight: 100, wantSets: 3, wantWeight: 100},
		{name: "deload", adj: adjustment.Adjustment{VolumeMultiplier: 0.8, IntensityMultiplier: 0.9}, sets: 4, weight: 85, wantSets: 3, wantWeight: 76.5},
		{name: "at least one set", adj: adjustment.Adjustment{VolumeMultiplier: 0.8, IntensityMultiplier: 1}, sets: 0, weight: 20, wantSets: 1, wantWeight: 20},
		{name: "bump", adj: adjustment.Adjustment{VolumeMultiplier: 1.2, IntensityMultiplier: 1.02}, sets: 5, weight: 60, wantSets: 6, wantWeight: 61},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			sets, weight := tt.adj.Apply(tt.sets, tt.weight)
			if sets != tt.wantSets || weight != tt.wantWeight {
				t.Errorf("Apply(%d, %v) = (%d, %v), want (%d, %v)",
					tt.sets, tt.weight, sets, weight, tt.wantSets, tt.wantWeight)
			}
		})
	}
}
