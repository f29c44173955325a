package match

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ErrMalformedPayload is returned when a match response lacks the fields the
// pipeline needs to continue.
var ErrMalformedPayload = errors.New("malformed match payload")

type rawCandidate struct {
	ProfileID   any      `mapstructure:"profile_id"`
	ResumeID    any      `mapstructure:"resume_id"`
	JDID        any      `mapstructure:"jd_id"`
	EmpID       any      `mapstructure:"emp_id"`
	Name        string   `mapstructure:"name"`
	Email       string   `mapstructure:"email"`
	JobTitle    string   `mapstructure:"job_title"`
	ResumePath  string   `mapstructure:"resume_path"`
	FilePath    string   `mapstructure:"file_path"`
	JDFile      string   `mapstructure:"jd_file"`
	Score       *float64 `mapstructure:"score"`
	Label       string   `mapstructure:"label"`
	Explanation any      `mapstructure:"explanation"`
}

// DecodeResultSet turns a raw match response into a ResultSet in arrival order.
// Deduplication and ranking are left to the caller.
func DecodeResultSet(kind Kind, subject Subject, payload map[string]any) (*ResultSet, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedPayload)
	}

	rs := &ResultSet{
		Kind:    kind,
		Subject: subject,
		Message: IDString(payload["message"]),
	}

	if kind == KindOneToOne {
		c, err := decodeCandidate(kind, subject, payload)
		if err != nil {
			return nil, err
		}
		rs.Candidates = []Candidate{c}

		return rs, nil
	}

	rawList, ok := payload["top_matches"]
	if !ok {
		return nil, fmt.Errorf("%w: missing top_matches", ErrMalformedPayload)
	}
	if rawList == nil {
		rs.Candidates = []Candidate{}
		return rs, nil
	}

	items, ok := rawList.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top_matches is %T, not a list", ErrMalformedPayload, rawList)
	}

	rs.Candidates = make([]Candidate, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: top_matches[%d] is %T, not an object", ErrMalformedPayload, i, item)
		}

		c, err := decodeCandidate(kind, subject, fields)
		if err != nil {
			return nil, fmt.Errorf("top_matches[%d]: %w", i, err)
		}
		rs.Candidates = append(rs.Candidates, c)
	}

	return rs, nil
}

func decodeCandidate(kind Kind, subject Subject, fields map[string]any) (Candidate, error) {
	var raw rawCandidate

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
		TagName:          "mapstructure",
	})
	if err != nil {
		return Candidate{}, err
	}

	if err := decoder.Decode(fields); err != nil {
		return Candidate{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	if raw.Score == nil {
		return Candidate{}, fmt.Errorf("%w: missing score", ErrMalformedPayload)
	}
	if math.IsNaN(*raw.Score) || math.IsInf(*raw.Score, 0) {
		return Candidate{}, fmt.Errorf("%w: score is not a finite number", ErrMalformedPayload)
	}
	if *raw.Score < 0 || *raw.Score > 1 {
		return Candidate{}, fmt.Errorf("%w: score %v is outside [0,1]", ErrMalformedPayload, *raw.Score)
	}

	c := Candidate{
		FilePath:    firstNonEmpty(raw.ResumePath, raw.FilePath, raw.JDFile),
		Name:        strings.TrimSpace(raw.Name),
		Email:       strings.TrimSpace(raw.Email),
		EmpID:       IDString(raw.EmpID),
		JobTitle:    strings.TrimSpace(raw.JobTitle),
		Label:       raw.Label,
		Score:       *raw.Score,
		Explanation: raw.Explanation,
	}

	switch kind {
	case KindJDToResumes:
		c.CounterpartID = firstNonEmpty(IDString(raw.ProfileID), IDString(raw.ResumeID))
	case KindResumeToJDs:
		c.CounterpartID = IDString(raw.JDID)
	case KindOneToOne:
		c.CounterpartID = subject.ResumeRef()
	}

	return c, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return ""
}

// IDString renders JSON scalars so numeric ids compare equal to their
// string form.
func IDString(v any) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
