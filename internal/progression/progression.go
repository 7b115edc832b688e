// Package progression decides the next prescribed weight of an exercise from effort feedback.
package progression

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidInput is returned for feedback, categories or weights outside their domains.
var ErrInvalidInput = errors.New("invalid progression input")

// Category of an exercise drives the size of the weight step.
type Category string

const (
	CategoryCompound   Category = "compound"
	CategoryIsolation  Category = "isolation"
	CategoryBodyweight Category = "bodyweight"
)

func (c Category) IsValid() bool {
	switch c {
	case CategoryCompound, CategoryIsolation, CategoryBodyweight:
		return true
	default:
		return false
	}
}

// Feedback is the three-way effort rating given after an exercise.
type Feedback string

const (
	FeedbackTooEasy   Feedback = "too_easy"
	FeedbackJustRight Feedback = "just_right"
	FeedbackTooHard   Feedback = "too_hard"
)

func (f Feedback) IsValid() bool {
	switch f {
	case FeedbackTooEasy, FeedbackJustRight, FeedbackTooHard:
		return true
	default:
		return false
	}
}

// Direction tells which way the prescription moves.
type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
	DirectionMaintain Direction = "maintain"
)

// Percentage steps relative to the current weight.
const (
	compoundStepPercent = 0.025
	defaultStepPercent  = 0.02
)

// ExerciseState is the working weight of one exercise slot of a user.
//
// CurrentWeight is always a multiple of 0.5 and only changes through [ExerciseState.Apply].
type ExerciseState struct {
	ExerciseKey   string
	Category      Category
	CurrentWeight float64
}

// Validate reports ErrInvalidInput for an unknown category or a weight that is not a multiple of 0.5.
func (s ExerciseState) Validate() error {
	if !s.Category.IsValid() {
		return fmt.Errorf("%w: category %q", ErrInvalidInput, s.Category)
	}
	return validateWeight(s.CurrentWeight)
}

// Apply returns the state after the calculator produced r.
func (s ExerciseState) Apply(r Result) ExerciseState {
	s.CurrentWeight = r.NewWeight
	return s
}

// Input of [Calculator.Calculate].
type Input struct {
	Feedback      Feedback
	CurrentWeight float64
	Category      Category
	// ExerciseKey selects a per-exercise minimum increment. Optional.
	ExerciseKey string
}

// Result of a progression decision.
type Result struct {
	NewWeight float64
	// Change is NewWeight - CurrentWeight.
	Change    float64
	Reason    string
	Direction Direction
}

// Calculator applies the category based progression rules. It is the authoritative source of
// persisted weights.
type Calculator struct {
	increments Increments
}

// NewCalculator creates a Calculator using incs for minimum increments.
func NewCalculator(incs Increments) *Calculator {
	return &Calculator{increments: incs}
}

// Calculate returns the next prescribed weight for in.
func (c *Calculator) Calculate(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	if in.Category == CategoryBodyweight || in.CurrentWeight == 0 {
		return repAdjustment(in), nil
	}

	step := c.step(in)
	var newWeight float64
	switch in.Feedback {
	case FeedbackTooEasy:
		newWeight = roundToHalf(in.CurrentWeight + step)
	case FeedbackTooHard:
		newWeight = math.Max(0, roundToHalf(in.CurrentWeight-step))
	case FeedbackJustRight:
		newWeight = in.CurrentWeight
	}

	change := newWeight - in.CurrentWeight
	return Result{
		NewWeight: newWeight,
		Change:    change,
		Reason:    weightReason(in.Feedback, change),
		Direction: directionOf(change),
	}, nil
}

// step is the larger of the percentage step and the minimum increment.
func (c *Calculator) step(in Input) float64 {
	percent := defaultStepPercent
	if in.Category == CategoryCompound {
		percent = compoundStepPercent
	}
	return math.Max(in.CurrentWeight*percent, c.increments.minimum(in.ExerciseKey, in.Category))
}

func validate(in Input) error {
	if !in.Feedback.IsValid() {
		return fmt.Errorf("%w: feedback %q", ErrInvalidInput, in.Feedback)
	}
	if !in.Category.IsValid() {
		return fmt.Errorf("%w: category %q", ErrInvalidInput, in.Category)
	}
	return validateWeight(in.CurrentWeight)
}

// validateWeight accepts finite non-negative multiples of 0.5.
func validateWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: weight %v", ErrInvalidInput, w)
	}
	if w*2 != math.Trunc(w*2) {
		return fmt.Errorf("%w: weight %v is not a multiple of 0.5", ErrInvalidInput, w)
	}
	return nil
}

// repAdjustment keeps the weight and only signals which way the rep count should move.
func repAdjustment(in Input) Result {
	r := Result{
		NewWeight: in.CurrentWeight,
		Change:    0,
		Reason:    "keep the same reps per set",
		Direction: DirectionMaintain,
	}
	switch in.Feedback {
	case FeedbackTooEasy:
		r.Reason = "add 1 rep per set"
		r.Direction = DirectionIncrease
	case FeedbackTooHard:
		r.Reason = "remove 1 rep per set"
		r.Direction = DirectionDecrease
	case FeedbackJustRight:
	}
	return r
}

func weightReason(f Feedback, change float64) string {
	switch {
	case change > 0:
		return fmt.Sprintf("felt too easy, add %.1f kg", change)
	case change < 0:
		return fmt.Sprintf("felt too hard, remove %.1f kg", -change)
	case f == FeedbackJustRight:
		return "felt just right, keep the weight"
	default:
		return "keep the weight"
	}
}

func directionOf(change float64) Direction {
	switch {
	case change > 0:
		return DirectionIncrease
	case change < 0:
		return DirectionDecrease
	default:
		return DirectionMaintain
	}
}

// roundToHalf rounds to the nearest 0.5, ties rounding up.
func roundToHalf(w float64) float64 {
	return math.Floor(w*2+0.5) / 2 //nolint:mnd // half units
}
