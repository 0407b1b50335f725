// Package consensus implements the multi-round propose/critique/revise/
// synthesize/vote debate protocol: three specialist reviewers and a
// mediator negotiate a single unified Plan, terminating either on
// convergence (every vote's score meets the threshold) or, once maxRounds
// elapses, on a binding final decision from the mediator.
package consensus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/eventbus"
	"github.com/repoforge/transformer/fanout"
	"github.com/repoforge/transformer/metrics"
	"github.com/repoforge/transformer/reviewer"
)

// DefaultMaxRounds and DefaultConsensusThreshold are the protocol's
// documented default round cap and approval threshold.
const (
	DefaultMaxRounds          = 5
	DefaultConsensusThreshold = 7.0
)

// Participant is the capability set a debate participant must provide;
// satisfied by *reviewer.Reviewer.
type Participant interface {
	Propose(ctx context.Context, reports []domain.AuditReport) (domain.Plan, error)
	Critique(ctx context.Context, plansByName map[string]domain.Plan) (reviewer.Critique, error)
	Revise(ctx context.Context, ownPlan domain.Plan, critiquesByName map[string]reviewer.Critique) (domain.Plan, error)
	Vote(ctx context.Context, unifiedPlan domain.Plan) (domain.Vote, error)
}

// Mediator additionally synthesizes unified plans and issues final
// decisions; satisfied by *reviewer.Reviewer.
type Mediator interface {
	Participant
	Synthesize(ctx context.Context, plansByName map[string]domain.Plan) (domain.Plan, error)
	FinalDecision(ctx context.Context, plansByName map[string]domain.Plan, latestCritiques map[string]reviewer.Critique, latestVotes map[string]domain.Vote) (domain.Plan, error)
}

// namedParticipant pairs a debate-visible name with its capability.
type namedParticipant struct {
	Name        string
	Participant Participant
}

// Engine runs the debate protocol.
type Engine struct {
	participants       []namedParticipant
	mediatorName       string
	mediator           Mediator
	maxRounds          int
	consensusThreshold float64
	bus                *eventbus.Bus
	logger             *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRounds overrides DefaultMaxRounds.
func WithMaxRounds(n int) Option {
	return func(e *Engine) { e.maxRounds = n }
}

// WithConsensusThreshold overrides DefaultConsensusThreshold.
func WithConsensusThreshold(t float64) Option {
	return func(e *Engine) { e.consensusThreshold = t }
}

// WithEventBus sets the bus every debate_message is emitted on.
func WithEventBus(bus *eventbus.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates a debate Engine. participants is iterated in the order
// given for every fan-out phase's deterministic transcript ordering.
func New(participants map[string]Participant, order []string, mediatorName string, mediator Mediator, opts ...Option) *Engine {
	named := make([]namedParticipant, 0, len(order))
	for _, name := range order {
		named = append(named, namedParticipant{Name: name, Participant: participants[name]})
	}

	e := &Engine{
		participants:       named,
		mediatorName:       mediatorName,
		mediator:           mediator,
		maxRounds:          DefaultMaxRounds,
		consensusThreshold: DefaultConsensusThreshold,
		logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// transcript accumulates DebateMessages and emits one debate_message event
// per append; it is append-only and never edited.
type transcript struct {
	jobID string
	bus   *eventbus.Bus
	msgs  []domain.DebateMessage
}

func (t *transcript) append(ctx context.Context, msg domain.DebateMessage) {
	t.msgs = append(t.msgs, msg)
	if t.bus == nil {
		return
	}
	data := map[string]any{
		"job_id":  t.jobID,
		"agent":   msg.ReviewerName,
		"role":    string(msg.Role),
		"timestamp": msg.Timestamp,
		"content": msg.Content,
	}
	if msg.AgreementLevel != nil {
		data["agreement_level"] = *msg.AgreementLevel
	}
	t.bus.Emit(ctx, "debate_message", data)
}

// Run executes the full debate protocol and returns the ConsensusResult.
func (e *Engine) Run(ctx context.Context, jobID string, reports []domain.AuditReport) (*domain.ConsensusResult, error) {
	tr := &transcript{jobID: jobID, bus: e.bus}

	plans, err := e.runProposals(ctx, tr, reports)
	if err != nil {
		return nil, err
	}

	var (
		latestCritiques map[string]reviewer.Critique
		latestVotes     map[string]domain.Vote
		lastUnified     domain.Plan
		round           int
	)

	for round = 1; round <= e.maxRounds; round++ {
		critiques, err := e.runCritiques(ctx, tr, plans)
		if err != nil {
			return nil, err
		}
		latestCritiques = critiques

		plans, err = e.runRevisions(ctx, tr, plans, critiques)
		if err != nil {
			return nil, err
		}

		unified := e.runSynthesis(ctx, tr, plans)
		lastUnified = unified

		votes, err := e.runVotes(ctx, tr, unified)
		if err != nil {
			return nil, err
		}
		latestVotes = votes

		reachedConsensus := converged(votes, e.consensusThreshold)
		metrics.RecordConsensusRound(reachedConsensus)

		if reachedConsensus {
			return &domain.ConsensusResult{
				Achieved:    true,
				RoundsTaken: round,
				UnifiedPlan: unified,
				VotesByName: votes,
				Transcript:  tr.msgs,
			}, nil
		}
	}

	final := e.runFinalDecision(ctx, tr, plans, latestCritiques, latestVotes, lastUnified)
	return &domain.ConsensusResult{
		Achieved:    false,
		RoundsTaken: e.maxRounds,
		UnifiedPlan: final,
		VotesByName: latestVotes,
		Transcript:  tr.msgs,
	}, nil
}

// runProposals fans Propose out across every participant. A failed
// proposal is replaced by the empty plan; the reviewer stays in the
// debate.
func (e *Engine) runProposals(ctx context.Context, tr *transcript, reports []domain.AuditReport) (map[string]domain.Plan, error) {
	results, err := fanout.Run(ctx, e.participants, func(ctx context.Context, p namedParticipant) (domain.Plan, error) {
		return p.Participant.Propose(ctx, reports)
	})
	if err != nil {
		return nil, fmt.Errorf("proposal phase: %w", err)
	}

	plans := make(map[string]domain.Plan, len(e.participants))
	for i, p := range e.participants {
		plan := results[i].Value
		if results[i].Err != nil {
			e.logger.Warn("proposal failed, using empty plan", "reviewer", p.Name, "error", results[i].Err)
			plan = domain.EmptyPlan()
		} else {
			tr.append(ctx, domain.DebateMessage{
				ReviewerName: p.Name,
				Role:         domain.DebateProposal,
				Timestamp:    time.Now(),
				Content:      plan.Rationale,
			})
		}
		plans[p.Name] = plan
	}
	return plans, nil
}

// othersOf returns every plan except name's own.
func othersOf(plans map[string]domain.Plan, name string) map[string]domain.Plan {
	out := make(map[string]domain.Plan, len(plans)-1)
	for k, v := range plans {
		if k != name {
			out[k] = v
		}
	}
	return out
}

func (e *Engine) runCritiques(ctx context.Context, tr *transcript, plans map[string]domain.Plan) (map[string]reviewer.Critique, error) {
	results, err := fanout.Run(ctx, e.participants, func(ctx context.Context, p namedParticipant) (reviewer.Critique, error) {
		return p.Participant.Critique(ctx, othersOf(plans, p.Name))
	})
	if err != nil {
		return nil, fmt.Errorf("critique phase: %w", err)
	}

	critiques := make(map[string]reviewer.Critique, len(e.participants))
	for i, p := range e.participants {
		c := results[i].Value
		if results[i].Err != nil {
			e.logger.Warn("critique failed, using empty critique", "reviewer", p.Name, "error", results[i].Err)
			critiques[p.Name] = reviewer.Critique{}
			continue
		}
		critiques[p.Name] = c
		tr.append(ctx, domain.DebateMessage{
			ReviewerName:     p.Name,
			Role:             domain.DebateCritique,
			Timestamp:        time.Now(),
			Content:          c.Suggestion,
			BlockingConcerns: c.Concerns,
		})
	}
	return critiques, nil
}

// runRevisions fans Revise out across every participant: each reviewer
// gets its own last plan plus the full critiques-by-author map. On
// failure the reviewer keeps its previous plan.
func (e *Engine) runRevisions(ctx context.Context, tr *transcript, plans map[string]domain.Plan, critiques map[string]reviewer.Critique) (map[string]domain.Plan, error) {
	results, err := fanout.Run(ctx, e.participants, func(ctx context.Context, p namedParticipant) (domain.Plan, error) {
		return p.Participant.Revise(ctx, plans[p.Name], critiques)
	})
	if err != nil {
		return nil, fmt.Errorf("revision phase: %w", err)
	}

	revised := make(map[string]domain.Plan, len(e.participants))
	for i, p := range e.participants {
		plan := results[i].Value
		if results[i].Err != nil {
			e.logger.Warn("revision failed, keeping previous plan", "reviewer", p.Name, "error", results[i].Err)
			revised[p.Name] = plans[p.Name]
			continue
		}
		revised[p.Name] = plan
		tr.append(ctx, domain.DebateMessage{
			ReviewerName: p.Name,
			Role:         domain.DebateRevision,
			Timestamp:    time.Now(),
			Content:      plan.Rationale,
		})
	}
	return revised, nil
}

// runSynthesis asks the mediator to combine the current plans into one.
// If synthesis fails, the unified plan falls back to the first available
// reviewer plan, in participant order.
func (e *Engine) runSynthesis(ctx context.Context, tr *transcript, plans map[string]domain.Plan) domain.Plan {
	unified, err := e.mediator.Synthesize(ctx, plans)
	if err != nil {
		e.logger.Warn("synthesis failed, falling back to first available plan", "error", err)
		unified = firstPlan(e.participants, plans)
	}
	tr.append(ctx, domain.DebateMessage{
		ReviewerName: e.mediatorName,
		Role:         domain.DebateSynthesis,
		Timestamp:    time.Now(),
		Content:      unified.Rationale,
	})
	return unified
}

func firstPlan(order []namedParticipant, plans map[string]domain.Plan) domain.Plan {
	for _, p := range order {
		if plan, ok := plans[p.Name]; ok {
			return plan
		}
	}
	return domain.EmptyPlan()
}

// runVotes fans Vote out across every participant and applies the
// consensus threshold to decide Approve, overriding whatever the backend
// returned: approval is purely score >= threshold. A failed vote is
// recorded as {score:0, approve:false, rationale:"Vote failed: ..."}.
func (e *Engine) runVotes(ctx context.Context, tr *transcript, unified domain.Plan) (map[string]domain.Vote, error) {
	results, err := fanout.Run(ctx, e.participants, func(ctx context.Context, p namedParticipant) (domain.Vote, error) {
		return p.Participant.Vote(ctx, unified)
	})
	if err != nil {
		return nil, fmt.Errorf("vote phase: %w", err)
	}

	votes := make(map[string]domain.Vote, len(e.participants))
	for i, p := range e.participants {
		v := results[i].Value
		if results[i].Err != nil {
			v = domain.Vote{
				ReviewerName: p.Name,
				Score:        0,
				Approve:      false,
				Rationale:    fmt.Sprintf("Vote failed: %s", results[i].Err),
			}
		} else {
			v.ReviewerName = p.Name
			v.Approve = v.Score >= e.consensusThreshold
		}
		votes[p.Name] = v

		agreement := v.Score / 10
		tr.append(ctx, domain.DebateMessage{
			ReviewerName:     p.Name,
			Role:             domain.DebateVote,
			Timestamp:        time.Now(),
			Content:          v.Rationale,
			AgreementLevel:   &agreement,
			BlockingConcerns: v.BlockingConcerns,
		})
	}
	return votes, nil
}

// runFinalDecision asks the mediator for a binding plan once maxRounds
// elapses without convergence. If the final call fails, the last
// synthesised plan is committed instead.
func (e *Engine) runFinalDecision(ctx context.Context, tr *transcript, plans map[string]domain.Plan, critiques map[string]reviewer.Critique, votes map[string]domain.Vote, lastUnified domain.Plan) domain.Plan {
	plan, err := e.mediator.FinalDecision(ctx, plans, critiques, votes)
	if err != nil {
		e.logger.Warn("final decision failed, committing last synthesised plan", "error", err)
		plan = lastUnified
	}
	tr.append(ctx, domain.DebateMessage{
		ReviewerName: e.mediatorName,
		Role:         domain.DebateFinalDecision,
		Timestamp:    time.Now(),
		Content:      plan.Rationale,
	})
	return plan
}

func converged(votes map[string]domain.Vote, threshold float64) bool {
	if len(votes) == 0 {
		return false
	}
	for _, v := range votes {
		if v.Score < threshold {
			return false
		}
	}
	return true
}
