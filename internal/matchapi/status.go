package matchapi

import (
	"context"
	"fmt"
)

// Status is the progress of the remote pipeline for one JD.
type Status struct {
	Compared    bool `json:"compared"`
	Ranked      bool `json:"ranked"`
	Recommended bool `json:"recommended"`
	Emailed     bool `json:"emailed"`
}

func (c *Client) QueryStatus(ctx context.Context, jdID string) (*Status, error) {
	var st Status
	if err := c.getJSON(ctx, c.endpoint("status", jdID), &st); err != nil {
		return nil, fmt.Errorf("querying status of jd %s: %w", jdID, err)
	}

	return &st, nil
}

func (c *Client) QueryEmailSent(ctx context.Context, jdID string) (bool, error) {
	var body struct {
		Emailed bool `json:"emailed"`
	}
	if err := c.getJSON(ctx, c.endpoint("email", "sent", jdID), &body); err != nil {
		return false, fmt.Errorf("querying email state of jd %s: %w", jdID, err)
	}

	return body.Emailed, nil
}
