package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/spigell/radar-pilot/internal/filtering"
	"github.com/spigell/radar-pilot/internal/match"
	"github.com/spigell/radar-pilot/internal/pipeline"
	"github.com/spigell/radar-pilot/internal/policy"
)

var tierOrder = []string{policy.TierHigh, policy.TierRecommended, policy.TierExplore}

// ByTier groups candidates under their tier label, keeping result set order
// inside each group.
func ByTier(rs *match.ResultSet) map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	if rs == nil {
		return report
	}

	for _, c := range rs.Candidates {
		tier := c.Tier
		if tier == "" {
			tier = policy.TierExplore
		}
		report[tier] = append(report[tier], map[string]string{
			"rank":  strconv.Itoa(c.Rank),
			"id":    c.CounterpartID,
			"name":  displayName(c),
			"score": Percent(c.Score),
			"file":  c.FilePath,
		})
	}

	return report
}

// Percent formats a 0..1 score the way recruiters read it.
func Percent(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

func displayName(c match.Candidate) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.JobTitle != "":
		return c.JobTitle
	case c.CounterpartID != "":
		return c.CounterpartID
	default:
		return c.FilePath
	}
}

// Render prints a colored summary of one pipeline.
func Render(w io.Writer, snap pipeline.Snapshot, rs *match.ResultSet) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	tierColor := map[string]func(a ...any) string{
		policy.TierHigh:        green,
		policy.TierRecommended: yellow,
		policy.TierExplore:     gray,
	}

	fmt.Fprintf(w, "\n%s\n", cyan(fmt.Sprintf("=== %s %s ===", snap.Kind, subjectLabel(snap.Subject))))

	state := string(snap.State)
	switch snap.State {
	case pipeline.StateNotified:
		state = green(state)
	case pipeline.StateFailed:
		state = red(state)
	default:
		state = yellow(state)
	}
	fmt.Fprintf(w, "State:    %s\n", state)
	if snap.Failure != "" {
		fmt.Fprintf(w, "Failure:  %s\n", red(snap.Failure))
	}
	if snap.Decision != nil {
		fmt.Fprintf(w, "Intent:   %s (%d attachments, threshold %s)\n",
			snap.Decision.Intent, len(snap.Decision.Attachments), Percent(snap.Decision.Thresholds.Qualify))
	}
	if snap.LastPollError != "" {
		fmt.Fprintf(w, "Polling:  %s\n", gray(snap.LastPollError))
	}
	if len(snap.Filters) > 0 {
		fmt.Fprintf(w, "Filters:  %s\n", filterLine(snap.Filters))
	}

	if rs.Len() == 0 {
		fmt.Fprintf(w, "  %s\n", gray("No matches"))
		return
	}

	groups := ByTier(rs)
	for _, tier := range tierOrder {
		entries := groups[tier]
		if len(entries) == 0 {
			continue
		}

		paint := tierColor[tier]
		fmt.Fprintf(w, "\n%s\n", paint(fmt.Sprintf("%s (%d)", tier, len(entries))))
		for _, e := range entries {
			fmt.Fprintf(w, "  #%s %s %s\n", e["rank"], paint(e["score"]), e["name"])
			if e["file"] != "" {
				fmt.Fprintf(w, "     %s\n", gray(e["file"]))
			}
		}
	}

	if snap.CoverNote != "" {
		fmt.Fprintf(w, "\n%s\n", cyan("Cover note"))
		for _, line := range strings.Split(strings.TrimSpace(snap.CoverNote), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
	fmt.Fprintln(w)
}

func filterLine(statuses []filtering.Status) string {
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		switch {
		case !st.Enabled && st.Reason != "":
			parts = append(parts, fmt.Sprintf("%s off (%s)", st.Name, st.Reason))
		case !st.Enabled:
			parts = append(parts, st.Name+" off")
		case st.Details["refs"] != "":
			parts = append(parts, fmt.Sprintf("%s [%s]", st.Name, st.Details["refs"]))
		default:
			parts = append(parts, st.Name)
		}
	}

	return strings.Join(parts, ", ")
}

func subjectLabel(s match.Subject) string {
	switch {
	case s.JDID != "" && s.ResumeRef() != "":
		return fmt.Sprintf("jd %s / resume %s", s.JDID, s.ResumeRef())
	case s.JDID != "":
		return "jd " + s.JDID
	default:
		return "resume " + s.ResumeRef()
	}
}

type dump struct {
	Pipeline pipeline.Snapshot `yaml:"pipeline"`
	Results  *match.ResultSet  `yaml:"results,omitempty"`
}

// DumpToTmpFile writes the snapshot and result set as YAML and returns the path.
func DumpToTmpFile(snap pipeline.Snapshot, rs *match.ResultSet) (string, error) {
	file, err := os.CreateTemp("", "radar-pilot_*.yaml")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := yaml.NewEncoder(file)
	enc.SetIndent(2)
	if err := enc.Encode(dump{Pipeline: snap, Results: rs}); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}

	return file.Name(), nil
}
