package match

import (
	"fmt"
	"sort"
	"strings"
)

// Kind selects which remote matching mode a pipeline drives.
type Kind string

const (
	KindJDToResumes Kind = "jd_to_resumes"
	KindResumeToJDs Kind = "resume_to_jds"
	KindOneToOne    Kind = "one_to_one"
)

// ParseKind accepts both the underscore form and the dashed path form.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !k.Valid() {
		return "", fmt.Errorf("unknown match kind %q", s)
	}

	return k, nil
}

func (k Kind) Valid() bool {
	switch k {
	case KindJDToResumes, KindResumeToJDs, KindOneToOne:
		return true
	default:
		return false
	}
}

// Path is the URL segment used by the matching service for this kind.
func (k Kind) Path() string {
	return strings.ReplaceAll(string(k), "_", "-")
}

// Subject identifies what a pipeline is matching.
// ProfileID is used for stored profiles that were never uploaded as a resume file.
type Subject struct {
	JDID      string `json:"jd_id,omitempty" yaml:"jd_id,omitempty"`
	ResumeID  string `json:"resume_id,omitempty" yaml:"resume_id,omitempty"`
	ProfileID string `json:"profile_id,omitempty" yaml:"profile_id,omitempty"`
}

// Validate checks that the identifiers needed by kind are present.
func (s Subject) Validate(kind Kind) error {
	switch kind {
	case KindJDToResumes:
		if s.JDID == "" {
			return fmt.Errorf("%s requires a jd id", kind)
		}
	case KindResumeToJDs:
		if s.ResumeID == "" && s.ProfileID == "" {
			return fmt.Errorf("%s requires a resume or profile id", kind)
		}
	case KindOneToOne:
		if s.JDID == "" || s.ResumeID == "" {
			return fmt.Errorf("%s requires both a jd id and a resume id", kind)
		}
	default:
		return fmt.Errorf("unknown match kind %q", kind)
	}

	return nil
}

// ResumeRef returns the resume id, falling back to the profile id.
func (s Subject) ResumeRef() string {
	if s.ResumeID != "" {
		return s.ResumeID
	}

	return s.ProfileID
}

// JobDescriptor is what the service returns once a JD upload is accepted.
type JobDescriptor struct {
	ID          string `json:"jd_id" yaml:"jd_id"`
	Title       string `json:"job_title,omitempty" yaml:"job_title,omitempty"`
	UploadedBy  string `json:"uploaded_by,omitempty" yaml:"uploaded_by,omitempty"`
	ProjectCode string `json:"project_code,omitempty" yaml:"project_code,omitempty"`
}

// Candidate is one scored pairing. Explanation is passed through untouched.
type Candidate struct {
	CounterpartID string  `json:"counterpart_id,omitempty" yaml:"counterpart_id,omitempty"`
	FilePath      string  `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Name          string  `json:"name,omitempty" yaml:"name,omitempty"`
	Email         string  `json:"email,omitempty" yaml:"email,omitempty"`
	EmpID         string  `json:"emp_id,omitempty" yaml:"emp_id,omitempty"`
	JobTitle      string  `json:"job_title,omitempty" yaml:"job_title,omitempty"`
	Label         string  `json:"label,omitempty" yaml:"label,omitempty"`
	Score         float64 `json:"score" yaml:"score"`
	Explanation   any     `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Rank          int     `json:"rank" yaml:"rank"`
	Tier          string  `json:"tier,omitempty" yaml:"tier,omitempty"`
}

// Key is the identity used for deduplication. Empty when the service issued
// neither an id nor a file path.
func (c Candidate) Key() string {
	if c.CounterpartID != "" {
		return "id:" + c.CounterpartID
	}
	if c.FilePath != "" {
		return "path:" + c.FilePath
	}

	return ""
}

// ResultSet is the outcome of one remote match invocation.
type ResultSet struct {
	Kind       Kind        `json:"kind" yaml:"kind"`
	Subject    Subject     `json:"subject" yaml:"subject"`
	Message    string      `json:"message,omitempty" yaml:"message,omitempty"`
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
}

// Len is nil-safe.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}

	return len(rs.Candidates)
}

// Dedup drops later candidates whose key was already seen. Order is kept and
// nothing is re-sorted. Candidates without any identity are always kept.
func Dedup(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	result := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		key := c.Key()
		if key != "" {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
		}

		result = append(result, c)
	}

	return result
}

// RankByScore returns a copy sorted by score descending, ties keeping their
// input order, with 1-based ranks assigned by position.
func RankByScore(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	return ranked
}
