package reviewer

import (
	"context"
	"fmt"

	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/fileops"
)

// ExecutePlan walks the unified plan's steps in the canonical
// domain.ExecutionOrder, asking the backend for a ChangeSet per step and
// applying it through scope. Keys absent from the plan are skipped, not
// errored. A step that fails to produce a parsable
// ChangeSet yields a recorded ChangeSet whose summary notes the failure;
// the remaining steps still run.
func (r *Reviewer) ExecutePlan(ctx context.Context, plan domain.Plan, snapshot *domain.Snapshot, scope *fileops.Scope) []domain.ChangeSet {
	steps := domain.OrderedSteps(plan)
	changeSets := make([]domain.ChangeSet, 0, len(steps))

	for _, step := range steps {
		cs := r.executeStep(ctx, step, plan, snapshot, scope)
		changeSets = append(changeSets, cs)
	}

	return changeSets
}

func (r *Reviewer) executeStep(ctx context.Context, step string, plan domain.Plan, snapshot *domain.Snapshot, scope *fileops.Scope) domain.ChangeSet {
	cs, _, err := completeWithRetry(ctx, r, ExecuteStepUserPrompt(step, plan, snapshot), func(raw string) (domain.ChangeSet, error) {
		return parseChangeSet(raw, step)
	})
	if err != nil {
		r.logger.Warn("execute step: failed", "step", step, "error", err)
		return domain.ChangeSet{Step: step, Summary: fmt.Sprintf("step failed: %s", err)}
	}

	if err := scope.Apply(cs); err != nil {
		r.logger.Warn("execute step: apply failed", "step", step, "error", err)
		cs.Summary = fmt.Sprintf("%s (apply failed: %s)", cs.Summary, err)
	}

	return cs
}

// ApplyFixes performs a single follow-up pass that attempts to address
// textual rejection reasons gathered from the review phase, returning one
// ChangeSet (possibly an error-summary only).
func (r *Reviewer) ApplyFixes(ctx context.Context, rejections []string, snapshot *domain.Snapshot, scope *fileops.Scope) domain.ChangeSet {
	const step = "apply_fixes"

	cs, _, err := completeWithRetry(ctx, r, ApplyFixesUserPrompt(rejections, snapshot), func(raw string) (domain.ChangeSet, error) {
		return parseChangeSet(raw, step)
	})
	if err != nil {
		return domain.ChangeSet{Step: step, Summary: fmt.Sprintf("fix-up failed: %s", err)}
	}

	if err := scope.Apply(cs); err != nil {
		cs.Summary = fmt.Sprintf("%s (apply failed: %s)", cs.Summary, err)
	}

	return cs
}
