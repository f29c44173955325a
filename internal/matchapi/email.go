package matchapi

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/match"
)

// EmailKind selects the /send-email/{kind} endpoint.
type EmailKind string

const (
	EmailManual             EmailKind = "manual"
	EmailRecommendedProfile EmailKind = "recommended-profile"
	EmailMatchesFinal       EmailKind = "matches-final"
)

func (k EmailKind) Valid() bool {
	switch k {
	case EmailManual, EmailRecommendedProfile, EmailMatchesFinal:
		return true
	default:
		return false
	}
}

// EmailRequest is the body of a send-email call.
type EmailRequest struct {
	JDID        string            `json:"jd_id,omitempty"`
	ResumeID    string            `json:"resume_id,omitempty"`
	To          string            `json:"to_email"`
	CC          []string          `json:"cc_list,omitempty"`
	Subject     string            `json:"subject,omitempty"`
	JobTitle    string            `json:"job_title,omitempty"`
	Body        string            `json:"body,omitempty"`
	Attachments []string          `json:"attachments"`
	TopMatches  []match.Candidate `json:"top_matches"`
}

// NeedsJD reports whether the endpoint is keyed by a JD id.
func (k EmailKind) NeedsJD() bool {
	return k != EmailRecommendedProfile
}

// ErrInvalidEmail is returned for requests the endpoint would reject with 400.
var ErrInvalidEmail = errors.New("invalid email request")

// Validate checks the fields the endpoint of kind insists on. The manual and
// matches-final endpoints are keyed by a JD, recommended-profile only needs a
// recipient.
func (r *EmailRequest) Validate(kind EmailKind) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: unknown email kind %q", ErrInvalidEmail, kind)
	}
	if r == nil || r.To == "" {
		return fmt.Errorf("%w: to_email is required", ErrInvalidEmail)
	}
	if kind.NeedsJD() && r.JDID == "" {
		return fmt.Errorf("%w: jd_id is required for %s", ErrInvalidEmail, kind)
	}

	return nil
}

// SendEmail posts one notification and returns the service's message.
func (c *Client) SendEmail(ctx context.Context, kind EmailKind, req *EmailRequest) (string, error) {
	if err := req.Validate(kind); err != nil {
		return "", err
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := c.postJSON(ctx, c.endpoint("send-email", string(kind)), req, &resp); err != nil {
		return "", fmt.Errorf("sending %s email: %w", kind, err)
	}

	c.logger.Debug("email accepted",
		zap.String("kind", string(kind)),
		zap.String("to", req.To),
		zap.Int("attachments", len(req.Attachments)),
	)

	return resp.Message, nil
}
