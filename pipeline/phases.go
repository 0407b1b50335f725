package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/fanout"
	"github.com/repoforge/transformer/fileops"
	"github.com/repoforge/transformer/metrics"
	"github.com/repoforge/transformer/reviewer"
)

// runIngestion returns a phaseFunc closed over repoURL (Run's only
// per-call parameter besides jobID): clone the repository and build its
// Snapshot. A failure here is always fatal — there is no downstream work
// without a snapshot.
func (p *Pipeline) runIngestion(repoURL string) phaseFunc {
	return func(ctx context.Context, state *domain.PipelineState) error {
		workingCopy, err := p.ingest.Clone(ctx, repoURL)
		if err != nil {
			return fmt.Errorf("clone repository: %w", err)
		}

		snapshot, err := p.ingest.BuildSnapshot(ctx, workingCopy)
		if err != nil {
			return fmt.Errorf("build snapshot: %w", err)
		}
		snapshot.RepoURL = repoURL

		state.Snapshot = snapshot
		return nil
	}
}

// runAudit fans out Architect/Auditor/Builder audits concurrently. A
// report is kept only when its audit succeeded; the run is fatal only
// when every audit fails.
func (p *Pipeline) runAudit(ctx context.Context, state *domain.PipelineState) error {
	results, err := fanout.Run(ctx, p.order, func(ctx context.Context, name string) (domain.AuditReport, error) {
		return p.reviewers[name].Audit(ctx, state.Snapshot)
	})
	if err != nil {
		return fmt.Errorf("audit fan-out: %w", err)
	}

	var failedNames []string
	for _, res := range results {
		if res.Err != nil {
			name := p.order[res.Index]
			p.logger.Warn("audit failed", "reviewer", name, "error", res.Err)
			metrics.RecordFanoutFailure(string(domain.PhaseAudit))
			failedNames = append(failedNames, name)
			continue
		}
		state.AuditReports = append(state.AuditReports, res.Value)
	}

	if len(state.AuditReports) == 0 {
		return fmt.Errorf("every reviewer audit failed: %s", strings.Join(failedNames, ", "))
	}
	return nil
}

// runConsensus drives the debate engine to a unified, voted-on plan.
func (p *Pipeline) runConsensus(ctx context.Context, state *domain.PipelineState) error {
	engine := p.consensusEngine()
	result, err := engine.Run(ctx, state.JobID, state.AuditReports)
	if err != nil {
		return fmt.Errorf("consensus: %w", err)
	}
	state.Consensus = result
	return nil
}

// runExecution asks the Builder to execute the unified plan against a
// File Operations scope rooted at the working copy.
func (p *Pipeline) runExecution(ctx context.Context, state *domain.PipelineState) error {
	if state.Consensus == nil {
		return fmt.Errorf("execution phase requires a consensus result")
	}

	builder, ok := p.reviewers["builder"]
	if !ok {
		return fmt.Errorf("no builder reviewer configured")
	}

	scope := fileops.NewScope(state.Snapshot.WorkingCopyPath)
	changeSets := builder.ExecutePlan(ctx, state.Consensus.UnifiedPlan, state.Snapshot, scope)
	state.ChangeSets = append(state.ChangeSets, changeSets...)
	return nil
}

// reviewNames are the two reviewers that inspect the builder's changes
// during the review phase: Architect and Auditor.
var reviewNames = []string{"architect", "auditor"}

// runReview fans Architect/Auditor reviewChanges out concurrently,
// accumulates rejections, and runs one Builder applyFixes pass if any
// rejections were raised. Fatal only if every reviewer call fails.
func (p *Pipeline) runReview(ctx context.Context, state *domain.PipelineState) error {
	results, err := fanout.Run(ctx, reviewNames, func(ctx context.Context, name string) (reviewer.ReviewVerdict, error) {
		return p.reviewers[name].ReviewChanges(ctx, state.ChangeSets, state.Snapshot)
	})
	if err != nil {
		return fmt.Errorf("review fan-out: %w", err)
	}

	var rejections []string
	failures := 0
	for _, res := range results {
		if res.Err != nil {
			p.logger.Warn("review failed", "reviewer", reviewNames[res.Index], "error", res.Err)
			metrics.RecordFanoutFailure(string(domain.PhaseReview))
			failures++
			continue
		}
		if !res.Value.Approved {
			rejections = append(rejections, res.Value.Rejections...)
		}
	}
	if failures == len(results) {
		return fmt.Errorf("every reviewer review failed")
	}

	if len(rejections) > 0 {
		builder, ok := p.reviewers["builder"]
		if ok {
			scope := fileops.NewScope(state.Snapshot.WorkingCopyPath)
			fixCS := builder.ApplyFixes(ctx, rejections, state.Snapshot, scope)
			state.ChangeSets = append(state.ChangeSets, fixCS)
		}
	}

	state.ReviewApproved = len(rejections) == 0
	return nil
}

// runValidation delegates to the configured validator using the
// snapshot's primary language and the set of files touched by execution
// and review.
func (p *Pipeline) runValidation(ctx context.Context, state *domain.PipelineState) error {
	if p.validator == nil {
		return nil
	}

	report, err := p.validator.Validate(ctx, state.Snapshot.WorkingCopyPath, state.Snapshot.PrimaryLanguage, changedFilePaths(state.ChangeSets))
	if err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	state.Validation = report
	return nil
}

// runLearning hands a preview of the run to the configured knowledge
// store, if any. Failures are logged, never propagated: learning never
// affects job status.
func (p *Pipeline) runLearning(ctx context.Context, state *domain.PipelineState) error {
	if p.store == nil {
		return nil
	}

	preview := previewFromState(state)
	if err := p.store.Record(ctx, preview); err != nil {
		p.logger.Warn("learning phase: knowledge store record failed", "job_id", state.JobID, "error", err)
	}
	return nil
}

func changedFilePaths(changeSets []domain.ChangeSet) []string {
	var paths []string
	for _, cs := range changeSets {
		for _, fc := range cs.Created {
			paths = append(paths, fc.Path)
		}
		for _, fc := range cs.Modified {
			paths = append(paths, fc.Path)
		}
	}
	return paths
}
