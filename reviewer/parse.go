package reviewer

import (
	"encoding/json"
	"fmt"

	"github.com/repoforge/transformer/domain"
)

// rawIssue mirrors domain.Issue's wire shape without an id; parseAuditReport
// assigns ids once at construction and never reuses them.
type rawIssue struct {
	Severity     domain.Severity `json:"severity"`
	Category     domain.Category `json:"category"`
	FilePath     string          `json:"file_path,omitempty"`
	Line         int             `json:"line,omitempty"`
	Description  string          `json:"description"`
	SuggestedFix string          `json:"suggested_fix,omitempty"`
}

func (ri rawIssue) toIssue() domain.Issue {
	return domain.Issue{
		ID:           newIssueID(),
		Severity:     ri.Severity,
		Category:     ri.Category,
		FilePath:     ri.FilePath,
		Line:         ri.Line,
		Description:  ri.Description,
		SuggestedFix: ri.SuggestedFix,
	}
}

type rawAuditReport struct {
	CriticalIssues      []rawIssue              `json:"critical_issues"`
	MajorIssues         []rawIssue              `json:"major_issues"`
	MinorIssues         []rawIssue              `json:"minor_issues"`
	ArchitectureChanges []string                `json:"architecture_changes"`
	FileProposals       []domain.FileProposal   `json:"file_proposals"`
	DimensionScores     map[string]float64      `json:"dimension_scores"`
	OverallScore        float64                 `json:"overall_score"`
	Summary             string                  `json:"summary"`
	EffortEstimate      string                  `json:"effort_estimate"`
}

func parseAuditReport(raw string) (domain.AuditReport, error) {
	if raw == "" {
		return domain.AuditReport{}, fmt.Errorf("empty response")
	}
	var r rawAuditReport
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return domain.AuditReport{}, fmt.Errorf("unmarshal audit report: %w", err)
	}

	report := domain.AuditReport{
		ArchitectureChanges: r.ArchitectureChanges,
		FileProposals:       r.FileProposals,
		DimensionScores:     r.DimensionScores,
		OverallScore:        r.OverallScore,
		Summary:             r.Summary,
		EffortEstimate:      r.EffortEstimate,
	}
	for _, ri := range r.CriticalIssues {
		report.CriticalIssues = append(report.CriticalIssues, ri.toIssue())
	}
	for _, ri := range r.MajorIssues {
		report.MajorIssues = append(report.MajorIssues, ri.toIssue())
	}
	for _, ri := range r.MinorIssues {
		report.MinorIssues = append(report.MinorIssues, ri.toIssue())
	}
	if report.OverallScore == 0 && len(report.DimensionScores) > 0 {
		report.OverallScore = domain.WeightedScore(report.DimensionScores)
	}
	return report, nil
}

func parsePlan(raw string) (domain.Plan, error) {
	if raw == "" {
		return domain.Plan{}, fmt.Errorf("empty response")
	}
	var p domain.Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return domain.Plan{}, fmt.Errorf("unmarshal plan: %w", err)
	}
	if p.Steps == nil {
		p.Steps = map[string]any{}
	}
	return p, nil
}

func parseCritique(raw string) (Critique, error) {
	if raw == "" {
		return Critique{}, fmt.Errorf("empty response")
	}
	var c Critique
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Critique{}, fmt.Errorf("unmarshal critique: %w", err)
	}
	return c, nil
}

func parseVote(raw string) (domain.Vote, error) {
	if raw == "" {
		return domain.Vote{}, fmt.Errorf("empty response")
	}
	var v domain.Vote
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return domain.Vote{}, fmt.Errorf("unmarshal vote: %w", err)
	}
	return v, nil
}

func parseReviewVerdict(raw string) (ReviewVerdict, error) {
	if raw == "" {
		return ReviewVerdict{}, fmt.Errorf("empty response")
	}
	var v ReviewVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return ReviewVerdict{}, fmt.Errorf("unmarshal review verdict: %w", err)
	}
	return v, nil
}

func parseChangeSet(raw string, step string) (domain.ChangeSet, error) {
	if raw == "" {
		return domain.ChangeSet{}, fmt.Errorf("empty response")
	}
	var cs domain.ChangeSet
	if err := json.Unmarshal([]byte(raw), &cs); err != nil {
		return domain.ChangeSet{}, fmt.Errorf("unmarshal change set: %w", err)
	}
	cs.Step = step
	return cs, nil
}
