package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/ai"
	"github.com/spigell/radar-pilot/internal/match"
)

type stubGenerator struct {
	response    string
	err         error
	lastSystem  string
	lastMessage string
}

func (s *stubGenerator) GenerateContent(_ context.Context, system, message string) (string, error) {
	s.lastSystem = system
	s.lastMessage = message
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func testBrief() *ai.Brief {
	return ai.NewBrief(match.KindJDToResumes, "Senior Go Engineer", "hr@example.com", []match.Candidate{
		{CounterpartID: "17", Name: "Ana", Score: 0.91, Tier: "Highly Recommended", Explanation: map[string]any{"summary": "strong Go"}},
		{CounterpartID: "18", Score: 0.55, Tier: "Recommended"},
	})
}

func TestDrafterDraft(t *testing.T) {
	stub := &stubGenerator{response: "```json\n{\"body\": \"Ana is a strong fit (91%).\"}\n```"}
	drafter := NewDrafter(stub, zap.NewNop(), 0)

	body, err := drafter.Draft(context.Background(), testBrief())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body != "Ana is a strong fit (91%)." {
		t.Fatalf("unexpected body: %q", body)
	}

	if !strings.Contains(stub.lastSystem, "cover notes") {
		t.Fatalf("expected embedded system prompt to be sent")
	}

	if !strings.Contains(stub.lastMessage, `"subject": "Senior Go Engineer"`) {
		t.Fatalf("expected brief subject in message: %s", stub.lastMessage)
	}

	if !strings.Contains(stub.lastMessage, `"name": "18"`) {
		t.Fatalf("expected id fallback for unnamed candidate: %s", stub.lastMessage)
	}
}

func TestDrafterAcceptsPlainText(t *testing.T) {
	stub := &stubGenerator{response: "Please find two profiles attached."}
	drafter := NewDrafter(stub, nil, 10)

	body, err := drafter.Draft(context.Background(), testBrief())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body != "Please find two profiles attached." {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestDrafterErrors(t *testing.T) {
	cases := []struct {
		name  string
		stub  *stubGenerator
		brief *ai.Brief
	}{
		{name: "nil brief", stub: &stubGenerator{response: `{"body":"x"}`}},
		{name: "generator error", stub: &stubGenerator{err: errors.New("quota")}, brief: testBrief()},
		{name: "empty body", stub: &stubGenerator{response: `{"body": "  "}`}, brief: testBrief()},
		{name: "broken json", stub: &stubGenerator{response: `{"body": `}, brief: testBrief()},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			drafter := NewDrafter(tc.stub, zap.NewNop(), 0)
			if _, err := drafter.Draft(context.Background(), tc.brief); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
