package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/ai"
	"github.com/spigell/radar-pilot/internal/filtering"
	"github.com/spigell/radar-pilot/internal/logger"
	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/matchapi"
	"github.com/spigell/radar-pilot/internal/policy"
	"github.com/spigell/radar-pilot/internal/poller"
)

// alreadyMatched is what the service answers when a JD was matched before.
const alreadyMatched = "already matched"

// Controller drives one subject through match, classification and a single
// notification. A controller is never reused: after FAILED or Cancel a new
// one has to be created.
type Controller struct {
	id         string
	opts       Options
	backend    Backend
	thresholds ThresholdSource
	base       *zap.Logger
	log        atomic.Pointer[zap.Logger]

	filters []filtering.Filter
	trigger *Trigger
	guard   DispatchGuard

	// runCtx outlives individual Start calls and dies with the controller.
	runCtx    context.Context
	runCancel context.CancelFunc
	done      chan struct{}
	doneOnce  sync.Once

	mu                 sync.Mutex
	state              State
	generation         uint64
	cancelled          bool
	subject            match.Subject
	result             *match.ResultSet
	decision           *policy.Decision
	reused             bool
	progress           Progress
	lastPollErr        string
	lastSendErr        string
	failure            string
	sendMessage        string
	coverNote          string
	notifiedExternally bool
	poller             *poller.Poller[Progress]
}

func New(backend Backend, thresholds ThresholdSource, log *zap.Logger, opts Options) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}

	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}

	if thresholds == nil {
		thresholds = StaticThresholds(policy.DefaultThresholds())
	}
	if log == nil {
		log = zap.NewNop()
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	c := &Controller{
		id:         uuid.NewString(),
		opts:       opts,
		backend:    backend,
		thresholds: thresholds,
		base:       log,
		filters:    filtering.Default(opts.Exclude),
		trigger:    NewTrigger(),
		runCtx:     runCtx,
		runCancel:  runCancel,
		done:       make(chan struct{}),
		state:      StateIdle,
	}
	c.log.Store(logger.WithPipelineFields(log, c.id, string(opts.Kind), "", ""))

	return c, nil
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Kind() match.Kind {
	return c.opts.Kind
}

func (c *Controller) logger() *zap.Logger {
	return c.log.Load()
}

// Start assigns the subject and runs the match. The first caller drives the
// lifecycle up to AWAITING_MANUAL_SEND or through the automatic send; every
// later call returns nil without touching the service.
func (c *Controller) Start(ctx context.Context, subject match.Subject) error {
	if err := subject.Validate(c.opts.Kind); err != nil {
		return err
	}

	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return ErrCancelled
	}
	if c.state == StateIdle {
		c.subject = subject
		c.generation++
		c.log.Store(logger.WithPipelineFields(c.base, c.id, string(c.opts.Kind), subject.JDID, subject.ResumeRef()))
		c.transitionLocked(StateAwaitingTrigger)
	} else if c.subject != subject {
		c.logger().Warn("ignoring start for a different subject",
			zap.String("requested_jd_id", subject.JDID),
			zap.String("requested_resume_id", subject.ResumeRef()),
		)
	}
	gen := c.generation
	subject = c.subject
	c.mu.Unlock()

	if !c.trigger.Fire() {
		c.logger().Debug("match already triggered")
		return nil
	}

	return c.run(ctx, gen, subject)
}

func (c *Controller) run(ctx context.Context, gen uint64, subject match.Subject) error {
	ctx, release := c.bind(ctx)
	defer release()

	if !c.transition(gen, StateComputing) {
		c.trigger.Resolve(ErrCancelled)
		return ErrCancelled
	}

	if c.opts.Kind == match.KindJDToResumes {
		c.startPoller(gen, subject.JDID)
	}

	rs, reused, err := c.compute(ctx, subject)
	c.trigger.Resolve(err)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrComputeFailed, err)
		if !c.fail(gen, err) {
			return ErrCancelled
		}
		return err
	}

	cands, err := filtering.Run(ctx, c.logger(), c.filters, rs.Candidates)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrComputeFailed, err)
		if !c.fail(gen, err) {
			return ErrCancelled
		}
		return err
	}

	th := c.thresholds.Current()
	rs.Candidates = policy.Classify(cands, th)
	decision := policy.Decide(rs, th)

	next := StateAwaitingManualSend
	if decision.Intent == policy.IntentAutoNoMatch {
		next = StateAutoNotifying
	}

	c.mu.Lock()
	if !c.liveLocked(gen) || !c.transitionLocked(StateResultsReady) {
		c.mu.Unlock()
		return ErrCancelled
	}
	c.result = rs
	c.reused = reused
	c.decision = &decision

	c.logger().Info("results ready",
		zap.Int("candidates", rs.Len()),
		zap.Int("qualifying", len(decision.Attachments)),
		zap.String("intent", string(decision.Intent)),
		zap.Float64("threshold", th.Qualify),
		zap.Bool("reused", reused),
	)

	c.transitionLocked(next)
	if c.guard.Sent() {
		c.notifiedExternally = true
		c.transitionLocked(StateNotified)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if next == StateAutoNotifying {
		return c.autoSend(ctx, gen)
	}

	c.prepareCoverNote(ctx, gen)

	return nil
}

// prepareCoverNote drafts the note for the configured recipients so it can
// be reviewed before the manual send. A failed draft is retried on send.
func (c *Controller) prepareCoverNote(ctx context.Context, gen uint64) {
	if c.opts.Notify.Drafter == nil {
		return
	}

	c.mu.Lock()
	if !c.liveLocked(gen) || c.state != StateAwaitingManualSend {
		c.mu.Unlock()
		return
	}
	brief := ai.NewBrief(c.opts.Kind, c.titleLocked(), c.opts.Notify.To, c.decision.Attachments)
	c.mu.Unlock()

	c.storeCoverNote(gen, c.draft(ctx, brief))
}

func (c *Controller) storeCoverNote(gen uint64, note string) {
	if note == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.liveLocked(gen) {
		c.coverNote = note
	}
}

func (c *Controller) compute(ctx context.Context, subject match.Subject) (*match.ResultSet, bool, error) {
	kind := c.opts.Kind

	if kind == match.KindJDToResumes && c.opts.ReuseExisting {
		if rs, ok := c.reuseIfRanked(ctx, subject); ok {
			return rs, true, nil
		}
	}

	payload, err := c.backend.RequestMatch(ctx, kind, subject)
	if err != nil {
		return nil, false, err
	}

	rs, err := match.DecodeResultSet(kind, subject, payload)
	if err != nil {
		return nil, false, err
	}

	if kind == match.KindJDToResumes && rs.Len() == 0 && strings.EqualFold(strings.TrimSpace(rs.Message), alreadyMatched) {
		if stored, ok := c.loadStored(ctx, subject); ok {
			return stored, true, nil
		}
	}

	return rs, false, nil
}

func (c *Controller) reuseIfRanked(ctx context.Context, subject match.Subject) (*match.ResultSet, bool) {
	st, err := c.backend.QueryStatus(ctx, subject.JDID)
	if err != nil {
		c.logger().Debug("status check before match failed", zap.Error(err))
		return nil, false
	}
	if !st.Compared || !st.Ranked {
		return nil, false
	}

	return c.loadStored(ctx, subject)
}

func (c *Controller) loadStored(ctx context.Context, subject match.Subject) (*match.ResultSet, bool) {
	payload, err := c.backend.ExistingMatches(ctx, subject.JDID)
	if err != nil {
		c.logger().Warn("failed to load stored matches", zap.Error(err))
		return nil, false
	}

	rs, err := match.DecodeResultSet(match.KindJDToResumes, subject, payload)
	if err != nil {
		c.logger().Warn("stored matches are malformed", zap.Error(err))
		return nil, false
	}

	c.logger().Info("reusing stored matches", zap.Int("candidates", rs.Len()))

	return rs, true
}

func (c *Controller) autoSend(ctx context.Context, gen uint64) error {
	c.mu.Lock()
	if !c.liveLocked(gen) {
		c.mu.Unlock()
		return ErrCancelled
	}
	if c.state != StateAutoNotifying {
		c.mu.Unlock()
		return nil
	}
	req := c.emailRequestLocked(c.opts.Notify.Recipients, nil)
	kind := c.opts.Notify.Kinds.Auto(c.opts.Kind)
	c.mu.Unlock()

	msg, err := c.guard.Dispatch(ctx, false, func(ctx context.Context) (string, error) {
		return c.backend.SendEmail(ctx, kind, req)
	})
	switch {
	case err == nil:
		c.markNotified(gen, msg, false)
		return nil
	case c.guard.Sent():
		c.markNotified(gen, "", true)
		return nil
	default:
		if !c.fail(gen, err) {
			return ErrCancelled
		}
		return err
	}
}

// RequestManualSend sends the qualifying matches. Empty recipients fall back
// to the configured ones. A failed send can be retried by calling again.
func (c *Controller) RequestManualSend(ctx context.Context, to Recipients) error {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return ErrCancelled
	}
	switch c.state {
	case StateAwaitingManualSend:
	case StateNotified:
		c.mu.Unlock()
		return ErrAlreadySent
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrNotReady, state)
	}

	to = to.normalize()
	if to.To == "" {
		to.To = c.opts.Notify.To
	}
	if len(to.CC) == 0 {
		to.CC = c.opts.Notify.CC
	}

	gen := c.generation
	attachments := c.decision.Attachments
	req := c.emailRequestLocked(to, attachments)
	kind := c.opts.Notify.Kinds.Manual(c.opts.Kind)
	brief := ai.NewBrief(c.opts.Kind, c.titleLocked(), to.To, attachments)
	// The prepared note was written for the configured recipient.
	note := ""
	if to.To == c.opts.Notify.To {
		note = c.coverNote
	}
	c.mu.Unlock()

	ctx, release := c.bind(ctx)
	defer release()

	msg, err := c.guard.Dispatch(ctx, true, func(ctx context.Context) (string, error) {
		if note == "" {
			note = c.draft(ctx, brief)
			c.storeCoverNote(gen, note)
		}
		req.Body = note
		return c.backend.SendEmail(ctx, kind, req)
	})
	if err != nil && errors.Is(err, ErrSendFailed) && c.guard.Sent() {
		// The service reported the email while our call was still running.
		c.logger().Info("email observed as sent, ignoring send error", zap.Error(err))
		c.markNotified(gen, "", true)
		return nil
	}
	if err != nil {
		if errors.Is(err, ErrSendFailed) {
			c.mu.Lock()
			if c.liveLocked(gen) {
				c.lastSendErr = err.Error()
			}
			c.mu.Unlock()
			c.logger().Warn("manual send failed", zap.Error(err))
		}
		return err
	}

	if !c.markNotified(gen, msg, false) {
		c.logger().Warn("email was sent after the pipeline was cancelled")
	}

	return nil
}

func (c *Controller) draft(ctx context.Context, brief *ai.Brief) string {
	if c.opts.Notify.Drafter == nil {
		return ""
	}

	body, err := c.opts.Notify.Drafter.Draft(ctx, brief)
	if err != nil {
		c.logger().Warn("cover note drafting failed, sending without it", zap.Error(err))
		return ""
	}

	return body
}

// Cancel stops polling and makes the controller inert. Safe to call in any
// state and more than once.
func (c *Controller) Cancel() {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		return
	}
	c.cancelled = true
	c.generation++
	p := c.poller
	state := c.state
	c.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	c.runCancel()
	c.closeDone()

	c.logger().Info("pipeline cancelled", zap.String("state", string(state)))
}

// Done is closed when the controller reaches a terminal state or is cancelled.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Result returns a copy of the classified result set once it is available.
func (c *Controller) Result() (*match.ResultSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.result == nil {
		return nil, false
	}

	rs := *c.result
	rs.Candidates = slices.Clone(c.result.Candidates)

	return &rs, true
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ID:                 c.id,
		Kind:               c.opts.Kind,
		Subject:            c.subject,
		State:              c.state,
		Generation:         c.generation,
		MatchRequested:     c.trigger.Fired(),
		ReusedResults:      c.reused,
		Notified:           c.state == StateNotified,
		NotifiedExternally: c.notifiedExternally,
		Cancelled:          c.cancelled,
		Candidates:         c.result.Len(),
		Progress:           c.progress,
		LastPollError:      c.lastPollErr,
		LastSendError:      c.lastSendErr,
		Failure:            c.failure,
		SendMessage:        c.sendMessage,
		CoverNote:          c.coverNote,
		Filters:            filtering.Describe(c.filters),
	}
	if err := c.trigger.Err(); err != nil {
		snap.MatchError = err.Error()
	}
	if c.decision != nil {
		d := *c.decision
		d.Attachments = slices.Clone(c.decision.Attachments)
		snap.Decision = &d
	}

	return snap
}

func (c *Controller) startPoller(gen uint64, jdID string) {
	p := poller.New(poller.Config[Progress]{
		Interval: c.opts.PollInterval,
		ID:       jdID,
		Query:    c.queryProgress,
		Terminal: func(p Progress) bool { return p.Emailed },
		OnResult: func(p Progress) { c.applyProgress(gen, p) },
		OnError:  func(err error) { c.recordPollError(gen, err) },
		Logger:   c.logger(),
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen) || c.state.Terminal() {
		return
	}
	c.poller = p
	p.Start(c.runCtx)
}

func (c *Controller) queryProgress(ctx context.Context, jdID string) (Progress, error) {
	st, err := c.backend.QueryStatus(ctx, jdID)
	if err != nil {
		return Progress{}, err
	}

	p := Progress{
		Compared:    st.Compared,
		Ranked:      st.Ranked,
		Recommended: st.Recommended,
		Emailed:     st.Emailed,
		ObservedAt:  time.Now().UTC(),
	}
	if p.Emailed {
		return p, nil
	}

	emailed, err := c.backend.QueryEmailSent(ctx, jdID)
	if err != nil {
		return Progress{}, err
	}
	p.Emailed = emailed

	return p, nil
}

func (c *Controller) applyProgress(gen uint64, p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen) {
		return
	}

	c.progress = p
	c.lastPollErr = ""
	if !p.Emailed {
		return
	}

	c.guard.MarkSent()
	// A running manual send owns the final transition. Ending the run here
	// would cancel its context and turn a delivered email into an error.
	if c.state == StateAwaitingManualSend && !c.guard.InFlight() {
		c.notifiedExternally = true
		c.transitionLocked(StateNotified)
	}
}

func (c *Controller) recordPollError(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen) {
		return
	}

	c.lastPollErr = err.Error()
	c.logger().Warn("status poll failed", zap.Error(err))
}

func (c *Controller) markNotified(gen uint64, msg string, external bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen) {
		return false
	}
	if c.state == StateNotified {
		// The poller may have won the race against our own confirmation.
		if !external && msg != "" {
			c.sendMessage = msg
			c.notifiedExternally = false
		}
		return true
	}

	c.sendMessage = msg
	c.notifiedExternally = external

	return c.transitionLocked(StateNotified)
}

func (c *Controller) fail(gen uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen) {
		return false
	}

	c.failure = err.Error()
	c.logger().Error("pipeline failed", zap.Error(err))

	return c.transitionLocked(StateFailed)
}

func (c *Controller) transition(gen uint64, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.liveLocked(gen) {
		return false
	}

	return c.transitionLocked(to)
}

func (c *Controller) transitionLocked(to State) bool {
	from := c.state
	if !CanTransition(from, to) {
		c.logger().Warn("rejected state transition", zap.String("from", string(from)), zap.String("to", string(to)))
		return false
	}

	c.state = to
	c.logger().Info("state changed", zap.String("from", string(from)), zap.String("to", string(to)))

	if to.Terminal() {
		if c.poller != nil {
			c.poller.Stop()
		}
		c.runCancel()
		c.closeDone()
	}

	return true
}

// liveLocked rejects work from a cancelled controller or a superseded run.
func (c *Controller) liveLocked(gen uint64) bool {
	return !c.cancelled && gen == c.generation
}

func (c *Controller) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// bind derives a context that is also cancelled when the controller dies.
func (c *Controller) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.runCtx, cancel)

	return ctx, func() {
		stop()
		cancel()
	}
}

func (c *Controller) titleLocked() string {
	if c.opts.Notify.JobTitle != "" {
		return c.opts.Notify.JobTitle
	}

	switch c.opts.Kind {
	case match.KindResumeToJDs:
		return "resume " + c.subject.ResumeRef()
	case match.KindOneToOne:
		return fmt.Sprintf("JD %s and resume %s", c.subject.JDID, c.subject.ResumeRef())
	default:
		return "JD " + c.subject.JDID
	}
}

func (c *Controller) emailRequestLocked(to Recipients, attachments []match.Candidate) *matchapi.EmailRequest {
	paths := make([]string, 0, len(attachments))
	for _, a := range attachments {
		if a.FilePath != "" {
			paths = append(paths, a.FilePath)
		}
	}

	subject := c.opts.Notify.Subject
	if subject == "" {
		if len(attachments) == 0 {
			subject = "No qualifying matches for " + c.titleLocked()
		} else {
			subject = "Top matches for " + c.titleLocked()
		}
	}

	return &matchapi.EmailRequest{
		JDID:        c.subject.JDID,
		ResumeID:    c.subject.ResumeRef(),
		To:          to.To,
		CC:          slices.Clone(to.CC),
		Subject:     subject,
		JobTitle:    c.opts.Notify.JobTitle,
		Attachments: paths,
		TopMatches:  append([]match.Candidate{}, attachments...),
	}
}
