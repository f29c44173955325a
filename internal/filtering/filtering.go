package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/match"
)

// Filter represents a single step applied to the candidates of a result set.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Apply(ctx context.Context, cands []match.Candidate) ([]match.Candidate, Step, error)
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string            `json:"name" yaml:"name"`
	Enabled bool              `json:"enabled" yaml:"enabled"`
	Reason  string            `json:"reason,omitempty" yaml:"reason,omitempty"`
	Details map[string]string `json:"details,omitempty" yaml:"details,omitempty"`
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns the steps every result set goes through: dedup, the
// configured exclusions and ranking. Ranking runs last so ranks are dense.
func Default(exclude []string) []Filter {
	return []Filter{
		NewDedup(),
		NewExclude(exclude),
		NewRank(),
	}
}

// Run executes the supplied filters sequentially. The input slice is never
// modified.
func Run(ctx context.Context, logger *zap.Logger, steps []Filter, cands []match.Candidate) ([]match.Candidate, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cands = append([]match.Candidate(nil), cands...)

	for _, step := range steps {
		if !step.IsEnabled() {
			logger.Debug("filter disabled", zap.String("name", step.Name()))
			continue
		}

		next, info, err := step.Apply(ctx, cands)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		logger.Debug("filter step",
			zap.String("name", step.Name()),
			zap.Int("initial", info.Initial),
			zap.Int("dropped", info.Dropped),
			zap.Int("left", info.Left),
		)

		cands = next
	}

	return cands, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
