package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/matchapi"
)

type sentEmail struct {
	kind matchapi.EmailKind
	req  matchapi.EmailRequest
}

// fakeBackend records calls and can hold RequestMatch or SendEmail open
// until a gate channel is closed.
type fakeBackend struct {
	mu sync.Mutex

	matchPayload map[string]any
	matchErr     error
	matchGate    chan struct{}
	matchEntered chan struct{}
	matchCalls   atomic.Int32

	existing      map[string]any
	existingCalls atomic.Int32

	status      matchapi.Status
	statusErr   error
	emailed     bool
	statusCalls atomic.Int32

	sendErrs []error
	// emailOnSend makes the service report the email as sent as soon as a
	// send call arrives, before the call returns.
	emailOnSend bool
	sendGate    chan struct{}
	sendEntered chan struct{}
	sendCalls   atomic.Int32
	sent        []sentEmail
}

func newFakeBackend(payload map[string]any) *fakeBackend {
	return &fakeBackend{matchPayload: payload}
}

func (f *fakeBackend) RequestMatch(ctx context.Context, _ match.Kind, _ match.Subject) (map[string]any, error) {
	if f.matchCalls.Add(1) == 1 && f.matchEntered != nil {
		close(f.matchEntered)
	}

	if f.matchGate != nil {
		<-f.matchGate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.matchPayload, f.matchErr
}

func (f *fakeBackend) ExistingMatches(context.Context, string) (map[string]any, error) {
	f.existingCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.existing, nil
}

func (f *fakeBackend) QueryStatus(context.Context, string) (*matchapi.Status, error) {
	f.statusCalls.Add(1)

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := f.status

	return &st, nil
}

func (f *fakeBackend) QueryEmailSent(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.emailed, nil
}

func (f *fakeBackend) SendEmail(ctx context.Context, kind matchapi.EmailKind, req *matchapi.EmailRequest) (string, error) {
	f.mu.Lock()
	if f.emailOnSend {
		f.emailed = true
	}
	f.mu.Unlock()

	if f.sendCalls.Add(1) == 1 && f.sendEntered != nil {
		close(f.sendEntered)
	}

	if f.sendGate != nil {
		select {
		case <-f.sendGate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if err := req.Validate(kind); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		if err != nil {
			return "", err
		}
	}

	f.sent = append(f.sent, sentEmail{kind: kind, req: *req})

	return "Email sent", nil
}

func (f *fakeBackend) setEmailed(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.emailed = v
}

func (f *fakeBackend) sentEmails() []sentEmail {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]sentEmail(nil), f.sent...)
}

func topMatches(entries ...map[string]any) map[string]any {
	list := make([]any, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}

	return map[string]any{"top_matches": list}
}
