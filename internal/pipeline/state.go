package pipeline

import (
	"errors"
	"time"

	"github.com/spigell/radar-pilot/internal/filtering"
	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/policy"
)

// State is a step of the per-instance lifecycle.
type State string

const (
	StateIdle               State = "IDLE"
	StateAwaitingTrigger    State = "AWAITING_TRIGGER"
	StateComputing          State = "COMPUTING"
	StateResultsReady       State = "RESULTS_READY"
	StateAutoNotifying      State = "AUTO_NOTIFYING"
	StateAwaitingManualSend State = "AWAITING_MANUAL_SEND"
	StateNotified           State = "NOTIFIED"
	StateFailed             State = "FAILED"
)

func (s State) Terminal() bool {
	return s == StateNotified || s == StateFailed
}

var transitions = map[State][]State{
	StateIdle:               {StateAwaitingTrigger},
	StateAwaitingTrigger:    {StateComputing},
	StateComputing:          {StateResultsReady},
	StateResultsReady:       {StateAutoNotifying, StateAwaitingManualSend},
	StateAutoNotifying:      {StateNotified},
	StateAwaitingManualSend: {StateNotified},
}

// CanTransition reports whether from -> to is a legal move. FAILED is
// reachable from every non-terminal state.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}

	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}

	return false
}

var (
	ErrComputeFailed = errors.New("compute failed")
	ErrSendFailed    = errors.New("send failed")
	ErrCancelled     = errors.New("pipeline cancelled")
	ErrNotReady      = errors.New("pipeline is not awaiting a manual send")
	ErrAlreadySent   = errors.New("notification already sent")
	ErrSendInFlight  = errors.New("notification send already in progress")
)

// Progress is one observation of the remote pipeline.
type Progress struct {
	Compared    bool      `json:"compared" yaml:"compared"`
	Ranked      bool      `json:"ranked" yaml:"ranked"`
	Recommended bool      `json:"recommended" yaml:"recommended"`
	Emailed     bool      `json:"emailed" yaml:"emailed"`
	ObservedAt  time.Time `json:"observed_at,omitempty" yaml:"observed_at,omitempty"`
}

// Snapshot is a read-only copy of a controller's state.
type Snapshot struct {
	ID                 string             `json:"id" yaml:"id"`
	Kind               match.Kind         `json:"kind" yaml:"kind"`
	Subject            match.Subject      `json:"subject" yaml:"subject"`
	State              State              `json:"state" yaml:"state"`
	Generation         uint64             `json:"generation" yaml:"generation"`
	MatchRequested     bool               `json:"match_requested" yaml:"match_requested"`
	ReusedResults      bool               `json:"reused_results,omitempty" yaml:"reused_results,omitempty"`
	Notified           bool               `json:"notified" yaml:"notified"`
	NotifiedExternally bool               `json:"notified_externally,omitempty" yaml:"notified_externally,omitempty"`
	Cancelled          bool               `json:"cancelled" yaml:"cancelled"`
	Candidates         int                `json:"candidates" yaml:"candidates"`
	Progress           Progress           `json:"progress" yaml:"progress"`
	LastPollError      string             `json:"last_poll_error,omitempty" yaml:"last_poll_error,omitempty"`
	LastSendError      string             `json:"last_send_error,omitempty" yaml:"last_send_error,omitempty"`
	Failure            string             `json:"failure,omitempty" yaml:"failure,omitempty"`
	SendMessage        string             `json:"send_message,omitempty" yaml:"send_message,omitempty"`
	MatchError         string             `json:"match_error,omitempty" yaml:"match_error,omitempty"`
	CoverNote          string             `json:"cover_note,omitempty" yaml:"cover_note,omitempty"`
	Filters            []filtering.Status `json:"filters,omitempty" yaml:"filters,omitempty"`
	Decision           *policy.Decision   `json:"decision,omitempty" yaml:"decision,omitempty"`
}
