package progression

import (
	"fmt"
	"math"
)

// Effort thresholds of the RPE/RIR estimator.
const (
	MinRPE = 1
	MaxRPE = 10
	MinRIR = 0
	// MaxRIR also stands for "5 or more reps in reserve".
	MaxRIR = 5

	easyMaxRPE        = 6
	easyMinRIR        = 3
	hardMinRPE        = 9
	effortStepPercent = 0.075
)

// Estimate is a coarse preview of the next weight derived from RPE and RIR.
//
// It ignores exercise categories and increment tables, so it can disagree with [Calculator] for
// equivalent feedback. Persist only Calculator results.
type Estimate struct {
	Result
	// Feedback is the three-way rating the effort pair maps to.
	Feedback Feedback
	Preview  bool
}

// EstimateFromEffort maps an RPE (1-10) and RIR (0-5) pair to a flat 7.5% weight change.
func EstimateFromEffort(rpe, rir int, currentWeight float64) (Estimate, error) {
	if rpe < MinRPE || rpe > MaxRPE {
		return Estimate{}, fmt.Errorf("%w: rpe %d outside %d-%d", ErrInvalidInput, rpe, MinRPE, MaxRPE)
	}
	if rir < MinRIR || rir > MaxRIR {
		return Estimate{}, fmt.Errorf("%w: rir %d outside %d-%d", ErrInvalidInput, rir, MinRIR, MaxRIR)
	}
	if err := validateWeight(currentWeight); err != nil {
		return Estimate{}, err
	}

	feedback := FeedbackFromEffort(rpe, rir)
	newWeight := currentWeight
	switch feedback {
	case FeedbackTooEasy:
		newWeight = roundToHalf(currentWeight * (1 + effortStepPercent))
	case FeedbackTooHard:
		newWeight = math.Max(0, roundToHalf(currentWeight*(1-effortStepPercent)))
	case FeedbackJustRight:
	}

	change := newWeight - currentWeight
	return Estimate{
		Result: Result{
			NewWeight: newWeight,
			Change:    change,
			Reason:    fmt.Sprintf("rpe %d with %d reps in reserve: %s", rpe, rir, weightReason(feedback, change)),
			Direction: directionOf(change),
		},
		Feedback: feedback,
		Preview:  true,
	}, nil
}

// FeedbackFromEffort classifies an RPE/RIR pair. It does not validate its inputs.
func FeedbackFromEffort(rpe, rir int) Feedback {
	switch {
	case rpe <= easyMaxRPE && rir >= easyMinRIR:
		return FeedbackTooEasy
	case rpe >= hardMinRPE || rir == 0:
		return FeedbackTooHard
	default:
		return FeedbackJustRight
	}
}
