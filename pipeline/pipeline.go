// Package pipeline implements the Pipeline Controller: the seven-phase
// state machine (ingestion, audit, consensus, execution, review,
// validation, learning) that owns one job's domain.PipelineState end to
// end, emitting lifecycle events on an eventbus.Bus as it goes.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/repoforge/transformer/consensus"
	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/eventbus"
	"github.com/repoforge/transformer/metrics"
	"github.com/repoforge/transformer/reviewer"
)

const defaultPhaseTimeout = 15 * time.Minute

// Ingester is the subset of ingestion.Adapter the Pipeline needs. Tests
// substitute a fake; production code passes an *ingestion.Adapter.
type Ingester interface {
	Clone(ctx context.Context, repoURL string) (string, error)
	BuildSnapshot(ctx context.Context, workingCopyPath string) (*domain.Snapshot, error)
}

// Checker is the subset of validator.Validator the Pipeline needs.
type Checker interface {
	Validate(ctx context.Context, workingCopy, language string, changedFiles []string) (*domain.ValidationReport, error)
}

// Pipeline runs one job at a time through the seven phases. A Pipeline is
// safe to reuse across jobs (it holds no per-job state of its own).
type Pipeline struct {
	ingest       Ingester
	reviewers    map[string]*reviewer.Reviewer
	order        []string // specialist reviewer names, e.g. architect, auditor, builder
	mediatorName string
	validator    Checker
	bus          *eventbus.Bus
	store        KnowledgeStore
	logger       *slog.Logger

	phaseTimeout       time.Duration
	consensusMaxRounds int
	consensusThreshold float64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for phase diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithEventBus sets the bus lifecycle events and debate messages are
// emitted on. Without this option, events are dropped (a nil bus is
// replaced with a private, subscriber-less one).
func WithEventBus(bus *eventbus.Bus) Option {
	return func(p *Pipeline) { p.bus = bus }
}

// WithPhaseTimeout overrides the default 15-minute per-phase timeout.
func WithPhaseTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.phaseTimeout = d
		}
	}
}

// WithKnowledgeStore configures the learning phase's extraction target.
func WithKnowledgeStore(store KnowledgeStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithConsensusMaxRounds overrides the debate engine's round cap.
func WithConsensusMaxRounds(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.consensusMaxRounds = n
		}
	}
}

// WithConsensusThreshold overrides the debate engine's convergence
// threshold.
func WithConsensusThreshold(t float64) Option {
	return func(p *Pipeline) { p.consensusThreshold = t }
}

// New creates a Pipeline. reviewers must contain every name in order plus
// mediatorName; order lists the specialist reviewers (architect, auditor,
// builder) that propose/critique/revise/vote, while mediatorName
// synthesises and, on non-convergence, issues the final decision.
func New(ingest Ingester, reviewers map[string]*reviewer.Reviewer, order []string, mediatorName string, v Checker, opts ...Option) *Pipeline {
	p := &Pipeline{
		ingest:             ingest,
		reviewers:          reviewers,
		order:              order,
		mediatorName:       mediatorName,
		validator:          v,
		bus:                eventbus.New(),
		logger:             slog.Default(),
		phaseTimeout:       defaultPhaseTimeout,
		consensusMaxRounds: consensus.DefaultMaxRounds,
		consensusThreshold: 7.0,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// emit wraps eventbus.Bus.Emit, always merging job_id into the payload.
func (p *Pipeline) emit(ctx context.Context, name, jobID string, extra map[string]any) {
	data := map[string]any{"job_id": jobID}
	for k, v := range extra {
		data[k] = v
	}
	p.bus.Emit(ctx, name, data)
}

// phaseFunc runs one phase against the shared state, returning an error
// only when the phase is fatal to the run.
type phaseFunc func(ctx context.Context, state *domain.PipelineState) error

// Run drives jobID's state machine from ingestion through learning and
// returns the assembled result. Run itself never returns an error: a
// failed phase is recorded on state and reflected in the result's Status
// and Error fields instead.
func (p *Pipeline) Run(ctx context.Context, jobID, repoURL string) (*domain.PipelineResult, error) {
	state := &domain.PipelineState{
		JobID:     jobID,
		Status:    domain.StatusRunning,
		StartedAt: time.Now(),
	}
	p.emit(ctx, "pipeline_started", jobID, nil)

	phases := []struct {
		name Phase
		fn   phaseFunc
	}{
		{domain.PhaseIngestion, p.runIngestion(repoURL)},
		{domain.PhaseAudit, p.runAudit},
		{domain.PhaseConsensus, p.runConsensus},
		{domain.PhaseExecution, p.runExecution},
		{domain.PhaseReview, p.runReview},
		{domain.PhaseValidation, p.runValidation},
		{domain.PhaseLearning, p.runLearning},
	}

	for _, ph := range phases {
		state.CurrentPhase = ph.name
		p.emit(ctx, "phase_started", jobID, map[string]any{"phase": string(ph.name)})

		phaseStart := time.Now()
		phaseCtx, cancel := context.WithTimeout(ctx, p.phaseTimeout)
		err := ph.fn(phaseCtx, state)
		cancel()

		if err != nil {
			metrics.RecordPhase(string(ph.name), "failed", time.Since(phaseStart))
			state.AddError(err.Error())
			state.Status = domain.StatusFailed
			p.emit(ctx, "pipeline_failed", jobID, map[string]any{"error": err.Error()})
			break
		}
		metrics.RecordPhase(string(ph.name), "completed", time.Since(phaseStart))
		p.emit(ctx, "phase_completed", jobID, p.completionExtras(ph.name, state))
	}

	if state.Status != domain.StatusFailed {
		state.Status = domain.StatusCompleted
	}
	state.CompletedAt = time.Now()
	metrics.RecordJob(string(state.Status))
	p.emit(ctx, "pipeline_completed", jobID, map[string]any{"status": string(state.Status)})

	result := domain.Assemble(state)
	return &result, nil
}

// Phase is a local alias kept for readability in Run's phase table.
type Phase = domain.Phase

func (p *Pipeline) completionExtras(phase domain.Phase, state *domain.PipelineState) map[string]any {
	extras := map[string]any{"phase": string(phase)}
	switch phase {
	case domain.PhaseAudit:
		extras["reports"] = len(state.AuditReports)
	case domain.PhaseConsensus:
		if state.Consensus != nil {
			extras["achieved"] = state.Consensus.Achieved
			extras["rounds"] = state.Consensus.RoundsTaken
		}
	case domain.PhaseExecution:
		extras["change_sets"] = len(state.ChangeSets)
	case domain.PhaseReview:
		extras["review_approved"] = state.ReviewApproved
	case domain.PhaseValidation:
		if state.Validation != nil {
			extras["all_passed"] = state.Validation.AllPassed
		}
	}
	return extras
}

// consensusEngine builds a fresh debate engine for one run; participants
// are the reviewer package's own Reviewer values, which already satisfy
// consensus.Participant/Mediator.
func (p *Pipeline) consensusEngine() *consensus.Engine {
	participants := make(map[string]consensus.Participant, len(p.order))
	for _, name := range p.order {
		participants[name] = p.reviewers[name]
	}
	mediator := p.reviewers[p.mediatorName]

	return consensus.New(participants, p.order, p.mediatorName, mediator,
		consensus.WithMaxRounds(p.consensusMaxRounds),
		consensus.WithConsensusThreshold(p.consensusThreshold),
		consensus.WithEventBus(p.bus),
		consensus.WithLogger(p.logger),
	)
}
