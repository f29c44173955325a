package policy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/radar-pilot/internal/match"
)

func TestTierFor(t *testing.T) {
	t.Parallel()

	th := Thresholds{Qualify: 0.5, High: 0.8}

	tests := []struct {
		score float64
		want  string
	}{
		{score: 0.9, want: TierHigh},
		{score: 0.8, want: TierHigh},
		{score: 0.6, want: TierRecommended},
		{score: 0.5, want: TierRecommended},
		{score: 0.3, want: TierExplore},
		{score: 0, want: TierExplore},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, th.TierFor(tt.score), "score %v", tt.score)
	}
}

func TestTierForUsesConfiguredCutoffs(t *testing.T) {
	t.Parallel()

	th := Thresholds{Qualify: 0.7, High: 0.95}

	assert.Equal(t, TierExplore, th.TierFor(0.6))
	assert.Equal(t, TierRecommended, th.TierFor(0.9))
	assert.Equal(t, TierHigh, th.TierFor(0.97))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultThresholds(), Thresholds{Qualify: -1, High: 2}.Normalize())
	assert.Equal(t, Thresholds{Qualify: 0.5, High: 0.8}, Thresholds{Qualify: math.NaN(), High: 0.8}.Normalize())
	assert.Equal(t, Thresholds{Qualify: 0.9, High: 0.9}, Thresholds{Qualify: 0.9, High: 0.8}.Normalize())
}

func TestClassifyDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := []match.Candidate{{CounterpartID: "1", Score: 0.85}, {CounterpartID: "2", Score: 0.1}}

	got := Classify(input, DefaultThresholds())

	require.Len(t, got, 2)
	assert.Equal(t, TierHigh, got[0].Tier)
	assert.Equal(t, TierExplore, got[1].Tier)
	assert.Empty(t, input[0].Tier)
}

func TestDecideEmptyIsAutoNoMatch(t *testing.T) {
	t.Parallel()

	d := Decide(&match.ResultSet{Kind: match.KindJDToResumes}, DefaultThresholds())
	assert.Equal(t, IntentAutoNoMatch, d.Intent)
	assert.Empty(t, d.Attachments)

	d = Decide(nil, DefaultThresholds())
	assert.Equal(t, IntentAutoNoMatch, d.Intent)
}

func TestDecideAllBelowThresholdIsAutoNoMatch(t *testing.T) {
	t.Parallel()

	rs := &match.ResultSet{Candidates: []match.Candidate{{Score: 0.49}, {Score: 0.1}}}

	d := Decide(rs, DefaultThresholds())
	assert.Equal(t, IntentAutoNoMatch, d.Intent)
	assert.Empty(t, d.Attachments)
}

func TestDecideManualAttachesOnlyQualifying(t *testing.T) {
	t.Parallel()

	rs := &match.ResultSet{Candidates: []match.Candidate{
		{CounterpartID: "a", Score: 0.9},
		{CounterpartID: "b", Score: 0.2},
	}}

	d := Decide(rs, DefaultThresholds())
	assert.Equal(t, IntentManual, d.Intent)
	require.Len(t, d.Attachments, 1)
	assert.Equal(t, "a", d.Attachments[0].CounterpartID)
	assert.Equal(t, DefaultThresholds(), d.Thresholds)
}
