package matchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/spigell/radar-pilot/internal/match"
)

type configEntry struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// GetConfig reads /admin/config into flat key/value pairs. The service
// answers with a list of {key, value}; a plain object is accepted as well.
func (c *Client) GetConfig(ctx context.Context) (map[string]string, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, c.endpoint("admin", "config"), &raw); err != nil {
		return nil, fmt.Errorf("reading admin config: %w", err)
	}

	values := make(map[string]string)
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return values, nil
	}

	if trimmed[0] == '[' {
		var entries []configEntry
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decoding admin config: %w", err)
		}
		for _, e := range entries {
			if e.Key == "" {
				continue
			}
			values[e.Key] = match.IDString(e.Value)
		}

		return values, nil
	}

	var object map[string]any
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return nil, fmt.Errorf("decoding admin config: %w", err)
	}
	for k, v := range object {
		values[k] = match.IDString(v)
	}

	return values, nil
}
