package pipeline

import (
	"context"

	"github.com/repoforge/transformer/domain"
)

// LearningPreview is the summary handed to a KnowledgeStore at the end of
// a run, ahead of the persistent store's own internal extraction (the
// store itself is an external collaborator; only this preview contract
// lives here).
type LearningPreview struct {
	JobID       string
	RepoName    string
	BeforeScore float64
	AfterScore  float64
	IssuesFixed int
	PlanSummary string
}

// KnowledgeStore is the narrow extraction interface the learning phase
// calls. A nil store (the default) makes the learning phase a no-op.
type KnowledgeStore interface {
	Record(ctx context.Context, preview LearningPreview) error
}

func previewFromState(state *domain.PipelineState) LearningPreview {
	result := domain.Assemble(state)

	repoName := ""
	planSummary := ""
	if state.Snapshot != nil {
		repoName = state.Snapshot.Name
	}
	if state.Consensus != nil {
		planSummary = state.Consensus.UnifiedPlan.Rationale
	}

	return LearningPreview{
		JobID:       state.JobID,
		RepoName:    repoName,
		BeforeScore: result.BeforeScore,
		AfterScore:  result.AfterScore,
		IssuesFixed: result.IssuesFixed,
		PlanSummary: planSummary,
	}
}
