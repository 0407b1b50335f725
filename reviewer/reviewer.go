// Package reviewer implements the four LLM-backed roles that participate
// in audit, debate, and post-change review: Architect, Auditor, Builder,
// and Mediator. All four share one capability set (Audit, Propose,
// Critique, Revise, Vote, ReviewChanges); the Builder role additionally
// executes a unified plan and applies fix-up changes. Role-specific
// prompt templates and JSON field mappings are per-variant data, not
// types — the same Reviewer struct backs all four.
package reviewer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/llm"
	"github.com/repoforge/transformer/model"
)

// Completer is the subset of the LLM client a reviewer needs. Tests
// substitute llm/testutil.MockLLMClient.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Critique is the structured output of Reviewer.Critique: per-reviewer
// feedback on the plans proposed by every other debate participant.
type Critique struct {
	Concerns   []string `json:"concerns,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Suggestion string   `json:"suggestion,omitempty"`
}

// ReviewVerdict is the structured output of Reviewer.ReviewChanges.
type ReviewVerdict struct {
	Approved   bool     `json:"approved"`
	Rejections []string `json:"rejections,omitempty"`
	Concerns   []string `json:"concerns,omitempty"`
}

// formatCorrectionPrompt is the single re-prompt issued when a reviewer's
// JSON response fails to parse: one retry, then fatal for that call.
const formatCorrectionPrompt = "Your response was not valid JSON. Please return only a valid JSON object."

// Reviewer is one of the four debate participants. Name identifies the
// reviewer in transcripts and audit reports ("architect", "auditor",
// "builder", "mediator" by convention, but callers may use any label).
type Reviewer struct {
	Name   string
	Role   model.Role
	llm    Completer
	logger *slog.Logger

	systemPrompt string
}

// Option configures a Reviewer.
type Option func(*Reviewer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reviewer) { r.logger = logger }
}

// WithSystemPrompt overrides the prompt loaded from disk; mainly useful
// in tests.
func WithSystemPrompt(prompt string) Option {
	return func(r *Reviewer) { r.systemPrompt = prompt }
}

// New creates a Reviewer for the given role, loading its system prompt
// from ./prompts/{role}_system.md (falling back to a canned prompt if
// the file is missing — see LoadSystemPrompt).
func New(name string, role model.Role, completer Completer, opts ...Option) *Reviewer {
	r := &Reviewer{
		Name:   name,
		Role:   role,
		llm:    completer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.systemPrompt == "" {
		r.systemPrompt = LoadSystemPrompt(string(role))
	}
	return r
}

// complete issues one LLM call in JSON mode tagged with this reviewer's
// role, returning the raw response for the caller to parse.
func (r *Reviewer) complete(ctx context.Context, userPrompt string) (*llm.Response, error) {
	return r.llm.Complete(ctx, llm.Request{
		Role:     string(r.Role),
		JSONMode: true,
		Messages: []llm.Message{
			{Role: "system", Content: r.systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
}

// completeWithRetry issues a JSON-mode completion and parses it with
// parse. On parse failure it makes one re-prompt with the conversation
// so far plus formatCorrectionPrompt; a second failure is returned to the
// caller as a fatal error for that call.
func completeWithRetry[T any](ctx context.Context, r *Reviewer, userPrompt string, parse func(string) (T, error)) (T, *llm.Response, error) {
	var zero T

	resp, err := r.complete(ctx, userPrompt)
	if err != nil {
		return zero, nil, fmt.Errorf("%s: complete: %w", r.Name, err)
	}

	value, parseErr := parse(llm.ExtractJSON(resp.Content))
	if parseErr == nil {
		return value, resp, nil
	}

	r.logger.Warn("reviewer response failed to parse, retrying once",
		"reviewer", r.Name, "role", r.Role, "error", parseErr)

	retryResp, retryErr := r.llm.Complete(ctx, llm.Request{
		Role:     string(r.Role),
		JSONMode: true,
		Messages: []llm.Message{
			{Role: "system", Content: r.systemPrompt},
			{Role: "user", Content: userPrompt},
			{Role: "assistant", Content: resp.Content},
			{Role: "user", Content: formatCorrectionPrompt},
		},
	})
	if retryErr != nil {
		return zero, nil, fmt.Errorf("%s: retry complete: %w", r.Name, retryErr)
	}

	value, parseErr = parse(llm.ExtractJSON(retryResp.Content))
	if parseErr != nil {
		return zero, nil, fmt.Errorf("%s: parse response after retry: %w", r.Name, parseErr)
	}
	return value, retryResp, nil
}

// Audit asks the reviewer to produce an AuditReport for a snapshot.
func (r *Reviewer) Audit(ctx context.Context, snapshot *domain.Snapshot) (domain.AuditReport, error) {
	report, resp, err := completeWithRetry(ctx, r, AuditUserPrompt(snapshot), parseAuditReport)
	if err != nil {
		return domain.AuditReport{}, err
	}
	report.ReviewerName = r.Name
	report.Role = string(r.Role)
	report.Model = resp.Model
	report.RequestID = resp.RequestID
	report.Timestamp = time.Now()
	return report, nil
}

// Propose asks the reviewer to draft a Plan given every audit report
// gathered so far.
func (r *Reviewer) Propose(ctx context.Context, reports []domain.AuditReport) (domain.Plan, error) {
	plan, _, err := completeWithRetry(ctx, r, ProposeUserPrompt(reports), parsePlan)
	if err != nil {
		return domain.EmptyPlan(), err
	}
	return plan, nil
}

// Critique asks the reviewer to critique every other reviewer's current
// plan. plansByName excludes the caller's own plan.
func (r *Reviewer) Critique(ctx context.Context, plansByName map[string]domain.Plan) (Critique, error) {
	critique, _, err := completeWithRetry(ctx, r, CritiqueUserPrompt(plansByName), parseCritique)
	if err != nil {
		return Critique{}, err
	}
	return critique, nil
}

// Revise asks the reviewer to update its own plan in light of the
// critiques levied against it by every other reviewer.
func (r *Reviewer) Revise(ctx context.Context, ownPlan domain.Plan, critiquesByName map[string]Critique) (domain.Plan, error) {
	plan, _, err := completeWithRetry(ctx, r, ReviseUserPrompt(ownPlan, critiquesByName), parsePlan)
	if err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

// Synthesize asks the mediator to combine the current set of reviewer
// plans into one unified plan.
func (r *Reviewer) Synthesize(ctx context.Context, plansByName map[string]domain.Plan) (domain.Plan, error) {
	plan, _, err := completeWithRetry(ctx, r, SynthesizeUserPrompt(plansByName), parsePlan)
	if err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

// FinalDecision asks the mediator for a binding plan when the debate has
// not converged within maxRounds.
func (r *Reviewer) FinalDecision(ctx context.Context, plansByName map[string]domain.Plan, latestCritiques map[string]Critique, latestVotes map[string]domain.Vote) (domain.Plan, error) {
	plan, _, err := completeWithRetry(ctx, r, FinalDecisionUserPrompt(plansByName, latestCritiques, latestVotes), parsePlan)
	if err != nil {
		return domain.Plan{}, err
	}
	return plan, nil
}

// Vote asks the reviewer to score the unified plan and decide whether it
// approves. The returned Vote carries the backend's own score and approve
// flag; the consensus package then recomputes Approve from its
// consensusThreshold.
func (r *Reviewer) Vote(ctx context.Context, unifiedPlan domain.Plan) (domain.Vote, error) {
	vote, resp, err := completeWithRetry(ctx, r, VoteUserPrompt(unifiedPlan), parseVote)
	if err != nil {
		return domain.Vote{}, err
	}
	vote.ReviewerName = r.Name
	if resp != nil {
		vote.RequestID = resp.RequestID
	}
	return vote, nil
}

// ReviewChanges asks the reviewer to inspect the executed change sets
// against the original snapshot and decide whether to approve them.
func (r *Reviewer) ReviewChanges(ctx context.Context, changeSets []domain.ChangeSet, snapshot *domain.Snapshot) (ReviewVerdict, error) {
	verdict, _, err := completeWithRetry(ctx, r, ReviewChangesUserPrompt(changeSets, snapshot), parseReviewVerdict)
	if err != nil {
		return ReviewVerdict{}, err
	}
	return verdict, nil
}

// newIssueID assigns an id unique across a run; construction-time only,
// never reused.
func newIssueID() string {
	return uuid.New().String()
}
