package progression

import (
	_ "embed"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
)

//go:embed increments.toml
var defaultIncrements string

// Increments holds the minimum weight step per category and per exercise.
type Increments struct {
	Categories map[string]float64 `toml:"categories"`
	Exercises  map[string]float64 `toml:"exercises"`
}

// DefaultIncrements returns the built-in increment table.
func DefaultIncrements() Increments {
	incs, err := parseIncrements(defaultIncrements)
	if err != nil {
		panic(fmt.Sprintf("embedded increments.toml: %v", err))
	}
	return incs
}

// LoadIncrements reads an increment table in TOML. Categories missing from the document keep the
// built-in defaults.
func LoadIncrements(r io.Reader) (Increments, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Increments{}, fmt.Errorf("read increments: %w", err)
	}
	loaded, err := parseIncrements(string(b))
	if err != nil {
		return Increments{}, err
	}

	defaults := DefaultIncrements()
	for cat, inc := range loaded.Categories {
		defaults.Categories[cat] = inc
	}
	defaults.Exercises = loaded.Exercises
	if defaults.Exercises == nil {
		defaults.Exercises = map[string]float64{}
	}
	return defaults, nil
}

func parseIncrements(doc string) (Increments, error) {
	var incs Increments
	md, err := toml.Decode(doc, &incs)
	if err != nil {
		return Increments{}, fmt.Errorf("decode increments: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Increments{}, fmt.Errorf("%w: unknown increment keys %v", ErrInvalidInput, undecoded)
	}
	for cat, inc := range incs.Categories {
		if !Category(cat).IsValid() {
			return Increments{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, cat)
		}
		if inc < 0 {
			return Increments{}, fmt.Errorf("%w: negative increment for %s", ErrInvalidInput, cat)
		}
	}
	for key, inc := range incs.Exercises {
		if inc < 0 {
			return Increments{}, fmt.Errorf("%w: negative increment for %s", ErrInvalidInput, key)
		}
	}
	if incs.Categories == nil {
		incs.Categories = map[string]float64{}
	}
	return incs, nil
}

// minimum returns the minimum increment for exerciseKey, falling back to the category default.
func (incs Increments) minimum(exerciseKey string, category Category) float64 {
	if inc, ok := incs.Exercises[exerciseKey]; ok && exerciseKey != "" {
		return inc
	}
	return incs.Categories[string(category)]
}
