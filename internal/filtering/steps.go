package filtering

import (
	"context"
	"sort"
	"strings"

	"github.com/spigell/radar-pilot/internal/match"
)

type dedupFilter struct{}

// NewDedup creates a filter that keeps the first occurrence of every
// counterpart.
func NewDedup() Filter {
	return &dedupFilter{}
}

func (f *dedupFilter) Name() string { return "dedup" }

func (f *dedupFilter) Disable(string) {}

func (f *dedupFilter) IsEnabled() bool { return true }

func (f *dedupFilter) Apply(_ context.Context, cands []match.Candidate) ([]match.Candidate, Step, error) {
	out := match.Dedup(cands)
	return out, Step{Initial: len(cands), Dropped: len(cands) - len(out), Left: len(out)}, nil
}

type excludeFilter struct {
	keys     map[string]struct{}
	disabled bool
	reason   string
}

// NewExclude creates a filter that drops candidates by counterpart id or
// file path. It disables itself when there is nothing to exclude.
func NewExclude(refs []string) Filter {
	f := &excludeFilter{keys: make(map[string]struct{}, len(refs))}
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		f.keys[match.Candidate{CounterpartID: ref}.Key()] = struct{}{}
		f.keys[match.Candidate{FilePath: ref}.Key()] = struct{}{}
	}

	if len(f.keys) == 0 {
		f.Disable("nothing to exclude")
	}

	return f
}

func (f *excludeFilter) Name() string { return "exclude" }

func (f *excludeFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *excludeFilter) IsEnabled() bool { return !f.disabled }

func (f *excludeFilter) Apply(_ context.Context, cands []match.Candidate) ([]match.Candidate, Step, error) {
	out := make([]match.Candidate, 0, len(cands))
	for _, c := range cands {
		if f.excluded(c) {
			continue
		}
		out = append(out, c)
	}

	return out, Step{Initial: len(cands), Dropped: len(cands) - len(out), Left: len(out)}, nil
}

func (f *excludeFilter) excluded(c match.Candidate) bool {
	if c.CounterpartID != "" {
		if _, ok := f.keys[match.Candidate{CounterpartID: c.CounterpartID}.Key()]; ok {
			return true
		}
	}
	if c.FilePath != "" {
		if _, ok := f.keys[match.Candidate{FilePath: c.FilePath}.Key()]; ok {
			return true
		}
	}

	return false
}

func (f *excludeFilter) Status() Status {
	details := map[string]string{}
	if len(f.keys) > 0 {
		keys := make([]string, 0, len(f.keys))
		for k := range f.keys {
			if strings.HasPrefix(k, "id:") {
				keys = append(keys, strings.TrimPrefix(k, "id:"))
			}
		}
		sort.Strings(keys)
		details["refs"] = strings.Join(keys, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type rankFilter struct{}

// NewRank creates a step that orders candidates by score and assigns ranks.
// It never drops anything.
func NewRank() Filter {
	return &rankFilter{}
}

func (f *rankFilter) Name() string { return "rank" }

func (f *rankFilter) Disable(string) {}

func (f *rankFilter) IsEnabled() bool { return true }

func (f *rankFilter) Apply(_ context.Context, cands []match.Candidate) ([]match.Candidate, Step, error) {
	out := match.RankByScore(cands)
	return out, Step{Initial: len(cands), Left: len(out)}, nil
}
