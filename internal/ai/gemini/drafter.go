package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/radar-pilot/internal/ai"
	"github.com/spigell/radar-pilot/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

// Drafter writes email cover notes with Gemini.
type Drafter struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

//go:embed prompt.md
var systemPrompt string

const defaultMaxLogLength = 200

func NewDrafter(generator contentGenerator, logger *zap.Logger, maxLogLength int) *Drafter {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Drafter{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

var _ ai.Drafter = (*Drafter)(nil)

func (d *Drafter) Draft(ctx context.Context, brief *ai.Brief) (string, error) {
	if brief == nil {
		return "", fmt.Errorf("brief is required")
	}

	payload, err := json.MarshalIndent(brief, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal brief: %w", err)
	}
	message := string(payload)

	d.logger.Debug("gemini draft request",
		zap.String("kind", brief.Kind),
		zap.Int("matches", len(brief.Matches)),
		zap.Int("message_length", utf8.RuneCountInString(message)),
		zap.String("message_preview", utils.TruncateForLog(message, d.maxLogLen)),
	)

	raw, err := d.generator.GenerateContent(ctx, systemPrompt, message)
	if err != nil {
		return "", err
	}

	d.logger.Debug("gemini draft response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, d.maxLogLen)),
	)

	return parseDraft(raw)
}

// parseDraft accepts {"body": ...}, optionally fenced, and falls back to the
// raw text when the model ignored the schema.
func parseDraft(raw string) (string, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		if text := strings.TrimSpace(cleaned); text != "" && !strings.HasPrefix(text, "{") {
			return text, nil
		}
		return "", fmt.Errorf("parse gemini response: %w", err)
	}

	body := coerceString(data["body"])
	if body == "" {
		return "", fmt.Errorf("gemini response has no body")
	}

	return body, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
