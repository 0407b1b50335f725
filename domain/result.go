package domain

// PipelineResult is the Pipeline Controller's final summary for one job,
// computed once the state machine reaches a terminal status.
type PipelineResult struct {
	JobID                string  `json:"job_id"`
	Status               Status  `json:"status"`
	Error                string  `json:"error,omitempty"`
	BeforeScore          float64 `json:"before_score"`
	AfterScore           float64 `json:"after_score"`
	IssuesFixed          int     `json:"issues_fixed"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// Assemble computes a PipelineResult from the final PipelineState:
// after-score falls back to before-score when validation never ran,
// issues-fixed sums critical+major counts across every audit report, and
// duration is wall-clock seconds rounded to two decimals.
func Assemble(s *PipelineState) PipelineResult {
	before := 0.0
	if s.Snapshot != nil {
		before = s.Snapshot.InitialHealthScore
	}

	after := before
	if s.Validation != nil {
		after = s.Validation.HealthScore
	}

	issuesFixed := 0
	for _, report := range s.AuditReports {
		issuesFixed += len(report.CriticalIssues) + len(report.MajorIssues)
	}

	duration := 0.0
	if !s.StartedAt.IsZero() {
		end := s.CompletedAt
		if end.IsZero() {
			end = s.StartedAt
		}
		duration = roundTo2(end.Sub(s.StartedAt).Seconds())
	}

	return PipelineResult{
		JobID:                s.JobID,
		Status:               s.Status,
		Error:                s.LastError(),
		BeforeScore:          before,
		AfterScore:           after,
		IssuesFixed:          issuesFixed,
		TotalDurationSeconds: duration,
	}
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
