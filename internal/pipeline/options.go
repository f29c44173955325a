package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/radar-pilot/internal/ai"
	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/matchapi"
	"github.com/spigell/radar-pilot/internal/policy"
	"github.com/spigell/radar-pilot/internal/poller"
)

// Backend is the remote matching service as seen by a controller.
type Backend interface {
	RequestMatch(ctx context.Context, kind match.Kind, subject match.Subject) (map[string]any, error)
	ExistingMatches(ctx context.Context, jdID string) (map[string]any, error)
	QueryStatus(ctx context.Context, jdID string) (*matchapi.Status, error)
	QueryEmailSent(ctx context.Context, jdID string) (bool, error)
	SendEmail(ctx context.Context, kind matchapi.EmailKind, req *matchapi.EmailRequest) (string, error)
}

// ThresholdSource hands out the current threshold snapshot.
type ThresholdSource interface {
	Current() policy.Thresholds
}

// StaticThresholds is a ThresholdSource that never changes.
type StaticThresholds policy.Thresholds

func (s StaticThresholds) Current() policy.Thresholds {
	return policy.Thresholds(s).Normalize()
}

// EmailKinds maps each notification path to a send-email endpoint.
type EmailKinds struct {
	AutoNoMatch matchapi.EmailKind `mapstructure:"auto-no-match"`
	// ResumeAutoNoMatch is used for resume subjects, which carry no JD id.
	ResumeAutoNoMatch matchapi.EmailKind `mapstructure:"resume-auto-no-match"`
	JDManual          matchapi.EmailKind `mapstructure:"jd-manual"`
	ResumeManual      matchapi.EmailKind `mapstructure:"resume-manual"`
	PairManual        matchapi.EmailKind `mapstructure:"pair-manual"`
}

func DefaultEmailKinds() EmailKinds {
	return EmailKinds{
		AutoNoMatch:       matchapi.EmailManual,
		ResumeAutoNoMatch: matchapi.EmailRecommendedProfile,
		JDManual:          matchapi.EmailMatchesFinal,
		ResumeManual:      matchapi.EmailRecommendedProfile,
		PairManual:        matchapi.EmailManual,
	}
}

func (k EmailKinds) withDefaults() EmailKinds {
	def := DefaultEmailKinds()
	if !k.AutoNoMatch.Valid() {
		k.AutoNoMatch = def.AutoNoMatch
	}
	if !k.ResumeAutoNoMatch.Valid() {
		k.ResumeAutoNoMatch = def.ResumeAutoNoMatch
	}
	if !k.JDManual.Valid() {
		k.JDManual = def.JDManual
	}
	if !k.ResumeManual.Valid() {
		k.ResumeManual = def.ResumeManual
	}
	if !k.PairManual.Valid() {
		k.PairManual = def.PairManual
	}

	return k
}

// Auto picks the endpoint for the no-match notice of the given match kind.
func (k EmailKinds) Auto(kind match.Kind) matchapi.EmailKind {
	if kind == match.KindResumeToJDs {
		return k.ResumeAutoNoMatch
	}

	return k.AutoNoMatch
}

// Manual picks the endpoint for a manual send of the given match kind.
func (k EmailKinds) Manual(kind match.Kind) matchapi.EmailKind {
	switch kind {
	case match.KindJDToResumes:
		return k.JDManual
	case match.KindResumeToJDs:
		return k.ResumeManual
	default:
		return k.PairManual
	}
}

// Recipients of a notification.
type Recipients struct {
	To string   `json:"to"`
	CC []string `json:"cc,omitempty"`
}

func (r Recipients) normalize() Recipients {
	r.To = strings.TrimSpace(r.To)
	cc := make([]string, 0, len(r.CC))
	for _, addr := range r.CC {
		if addr = strings.TrimSpace(addr); addr != "" {
			cc = append(cc, addr)
		}
	}
	r.CC = cc

	return r
}

// Notify configures who hears about the outcome and how.
type Notify struct {
	Recipients
	// Subject overrides the generated email subject.
	Subject  string
	JobTitle string
	Kinds    EmailKinds
	// Drafter writes the cover note of manual sends. Optional.
	Drafter ai.Drafter
}

type Options struct {
	Kind          match.Kind
	PollInterval  time.Duration
	ReuseExisting bool
	// Exclude lists counterpart ids or file paths that never reach a decision.
	Exclude []string
	Notify  Notify
}

func (o Options) validate() (Options, error) {
	if !o.Kind.Valid() {
		return o, fmt.Errorf("unknown match kind %q", o.Kind)
	}
	if o.PollInterval <= 0 {
		o.PollInterval = poller.DefaultInterval
	}

	o.Notify.Recipients = o.Notify.Recipients.normalize()
	if o.Notify.To == "" {
		return o, fmt.Errorf("notification recipient is required")
	}
	o.Notify.Kinds = o.Notify.Kinds.withDefaults()
	if o.Kind == match.KindResumeToJDs {
		for _, k := range []matchapi.EmailKind{o.Notify.Kinds.Auto(o.Kind), o.Notify.Kinds.Manual(o.Kind)} {
			if k.NeedsJD() {
				return o, fmt.Errorf("email kind %q needs a jd id, resume subjects have none", k)
			}
		}
	}

	return o, nil
}
