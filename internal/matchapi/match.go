package matchapi

import (
	"context"
	"fmt"

	"github.com/spigell/radar-pilot/internal/match"
)

// RequestMatch starts the remote computation and returns its raw payload.
// Decoding is left to the match package so malformed responses can be told
// apart from transport errors.
func (c *Client) RequestMatch(ctx context.Context, kind match.Kind, subject match.Subject) (map[string]any, error) {
	if err := subject.Validate(kind); err != nil {
		return nil, err
	}

	body := map[string]any{}
	switch kind {
	case match.KindJDToResumes:
		body["jd_id"] = idValue(subject.JDID)
	case match.KindResumeToJDs:
		if subject.ResumeID != "" {
			body["resume_id"] = idValue(subject.ResumeID)
		} else {
			body["profile_id"] = idValue(subject.ProfileID)
		}
	case match.KindOneToOne:
		body["jd_id"] = idValue(subject.JDID)
		body["resume_id"] = idValue(subject.ResumeID)
	}

	var payload map[string]any
	if err := c.postJSON(ctx, c.endpoint("match", kind.Path()), body, &payload); err != nil {
		return nil, fmt.Errorf("requesting %s match: %w", kind, err)
	}

	return payload, nil
}

// ExistingMatches loads results the service already stored for a JD.
func (c *Client) ExistingMatches(ctx context.Context, jdID string) (map[string]any, error) {
	var payload map[string]any
	if err := c.getJSON(ctx, c.endpoint("match", "results", jdID), &payload); err != nil {
		return nil, fmt.Errorf("loading stored matches for jd %s: %w", jdID, err)
	}

	return payload, nil
}
