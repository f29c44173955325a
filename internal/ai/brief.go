package ai

import (
	"context"

	"github.com/spigell/radar-pilot/internal/match"
)

// BriefMatch is one attachment as presented to a drafter.
type BriefMatch struct {
	Name        string  `json:"name,omitempty"`
	Title       string  `json:"title,omitempty"`
	Score       float64 `json:"score"`
	Tier        string  `json:"tier,omitempty"`
	Explanation any     `json:"explanation,omitempty"`
}

// Brief is everything a drafter may use to write the cover note of a
// notification email.
type Brief struct {
	Kind      string       `json:"kind"`
	Subject   string       `json:"subject"`
	Recipient string       `json:"recipient,omitempty"`
	Matches   []BriefMatch `json:"matches"`
}

// Drafter writes the body of a notification email.
type Drafter interface {
	Draft(ctx context.Context, brief *Brief) (string, error)
}

// NewBrief builds a brief from the qualifying candidates of a result set.
func NewBrief(kind match.Kind, subject, recipient string, candidates []match.Candidate) *Brief {
	b := &Brief{
		Kind:      string(kind),
		Subject:   subject,
		Recipient: recipient,
		Matches:   make([]BriefMatch, 0, len(candidates)),
	}

	for _, c := range candidates {
		name := c.Name
		if name == "" {
			name = c.CounterpartID
		}
		b.Matches = append(b.Matches, BriefMatch{
			Name:        name,
			Title:       c.JobTitle,
			Score:       c.Score,
			Tier:        c.Tier,
			Explanation: c.Explanation,
		})
	}

	return b
}
