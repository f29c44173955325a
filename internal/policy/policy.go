package policy

import (
	"math"

	"github.com/spigell/radar-pilot/internal/match"
)

const (
	DefaultQualify = 0.5
	DefaultHigh    = 0.8
)

// Recommendation tiers.
const (
	TierHigh        = "Highly Recommended"
	TierRecommended = "Recommended"
	TierExplore     = "Explore"
)

// Thresholds are the score cutoffs on a 0..1 scale.
type Thresholds struct {
	Qualify float64 `json:"qualify" yaml:"qualify"`
	High    float64 `json:"high" yaml:"high"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{Qualify: DefaultQualify, High: DefaultHigh}
}

// Normalize replaces out-of-range values with defaults and keeps High >= Qualify.
func (t Thresholds) Normalize() Thresholds {
	if !inUnitRange(t.Qualify) {
		t.Qualify = DefaultQualify
	}
	if !inUnitRange(t.High) {
		t.High = DefaultHigh
	}
	if t.High < t.Qualify {
		t.High = t.Qualify
	}

	return t
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func (t Thresholds) TierFor(score float64) string {
	switch {
	case score >= t.High:
		return TierHigh
	case score >= t.Qualify:
		return TierRecommended
	default:
		return TierExplore
	}
}

func (t Thresholds) Qualifies(score float64) bool {
	return score >= t.Qualify
}

// Classify returns a copy of candidates with Tier filled in.
func Classify(candidates []match.Candidate, t Thresholds) []match.Candidate {
	classified := make([]match.Candidate, len(candidates))
	for i, c := range candidates {
		c.Tier = t.TierFor(c.Score)
		classified[i] = c
	}

	return classified
}

// Intent is the kind of notification a result set calls for.
type Intent string

const (
	IntentAutoNoMatch Intent = "AUTO_NO_MATCH"
	IntentManual      Intent = "MANUAL_WITH_ATTACHMENTS"
)

// Decision is computed once per result set and cached by its owner.
type Decision struct {
	Intent      Intent            `json:"intent" yaml:"intent"`
	Attachments []match.Candidate `json:"attachments" yaml:"attachments"`
	Thresholds  Thresholds        `json:"thresholds" yaml:"thresholds"`
}

// Decide picks the notification path. Attachments are the qualifying
// candidates in result set order.
func Decide(rs *match.ResultSet, t Thresholds) Decision {
	d := Decision{
		Intent:      IntentAutoNoMatch,
		Attachments: []match.Candidate{},
		Thresholds:  t,
	}

	if rs == nil {
		return d
	}

	for _, c := range rs.Candidates {
		if t.Qualifies(c.Score) {
			d.Attachments = append(d.Attachments, c)
		}
	}

	if len(d.Attachments) > 0 {
		d.Intent = IntentManual
	}

	return d
}
