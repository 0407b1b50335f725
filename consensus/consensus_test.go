package consensus

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/reviewer"
)

// fakeParticipant is a scripted Participant/Mediator used to drive the
// debate protocol deterministically in tests, mirroring the
// llm/testutil mock-client pattern one layer up the stack.
type fakeParticipant struct {
	proposeErr  error
	critiqueErr error
	reviseErr   error
	voteScores  []float64 // consumed one per call, round by round
	voteCall    int
	synthErr    error
	finalErr    error
}

func (f *fakeParticipant) Propose(ctx context.Context, reports []domain.AuditReport) (domain.Plan, error) {
	if f.proposeErr != nil {
		return domain.Plan{}, f.proposeErr
	}
	return domain.Plan{Rationale: "proposed", Steps: map[string]any{"write_tests": true}}, nil
}

func (f *fakeParticipant) Critique(ctx context.Context, plansByName map[string]domain.Plan) (reviewer.Critique, error) {
	if f.critiqueErr != nil {
		return reviewer.Critique{}, f.critiqueErr
	}
	return reviewer.Critique{Suggestion: "looks fine"}, nil
}

func (f *fakeParticipant) Revise(ctx context.Context, ownPlan domain.Plan, critiquesByName map[string]reviewer.Critique) (domain.Plan, error) {
	if f.reviseErr != nil {
		return domain.Plan{}, f.reviseErr
	}
	return domain.Plan{Rationale: "revised", Steps: ownPlan.Steps}, nil
}

func (f *fakeParticipant) Vote(ctx context.Context, unifiedPlan domain.Plan) (domain.Vote, error) {
	score := 8.0
	if f.voteCall < len(f.voteScores) {
		score = f.voteScores[f.voteCall]
	}
	f.voteCall++
	return domain.Vote{Score: score, Rationale: "voted"}, nil
}

func (f *fakeParticipant) Synthesize(ctx context.Context, plansByName map[string]domain.Plan) (domain.Plan, error) {
	if f.synthErr != nil {
		return domain.Plan{}, f.synthErr
	}
	return domain.Plan{Rationale: "unified", Steps: map[string]any{"write_tests": true}}, nil
}

func (f *fakeParticipant) FinalDecision(ctx context.Context, plansByName map[string]domain.Plan, latestCritiques map[string]reviewer.Critique, latestVotes map[string]domain.Vote) (domain.Plan, error) {
	if f.finalErr != nil {
		return domain.Plan{}, f.finalErr
	}
	return domain.Plan{Rationale: "final binding plan", Steps: map[string]any{"write_tests": true}}, nil
}

func newFixture(voteScoresByReviewer map[string][]float64) (map[string]Participant, []string, Mediator) {
	order := []string{"architect", "auditor", "builder"}
	participants := make(map[string]Participant, len(order))
	for _, name := range order {
		participants[name] = &fakeParticipant{voteScores: voteScoresByReviewer[name]}
	}
	mediator := &fakeParticipant{}
	return participants, order, mediator
}

func TestEngine_ConvergesInOneRound(t *testing.T) {
	participants, order, mediator := newFixture(map[string][]float64{
		"architect": {8},
		"auditor":   {8},
		"builder":   {8},
	})
	engine := New(participants, order, "mediator", mediator)

	result, err := engine.Run(context.Background(), "job-1", nil)
	require.NoError(t, err)
	assert.True(t, result.Achieved)
	assert.Equal(t, 1, result.RoundsTaken)
	assert.Equal(t, "unified", result.UnifiedPlan.Rationale)
	assert.Len(t, result.VotesByName, 3)
}

func TestEngine_TwoRoundRecovery(t *testing.T) {
	participants, order, mediator := newFixture(map[string][]float64{
		"architect": {6, 8},
		"auditor":   {8, 8},
		"builder":   {8, 8},
	})
	engine := New(participants, order, "mediator", mediator)

	result, err := engine.Run(context.Background(), "job-2", nil)
	require.NoError(t, err)
	assert.True(t, result.Achieved)
	assert.Equal(t, 2, result.RoundsTaken)
}

func TestEngine_FinalDecisionFallbackOnNonConvergence(t *testing.T) {
	participants, order, mediator := newFixture(map[string][]float64{
		"architect": {5, 5, 5},
		"auditor":   {5, 5, 5},
		"builder":   {5, 5, 5},
	})
	engine := New(participants, order, "mediator", mediator, WithMaxRounds(3))

	result, err := engine.Run(context.Background(), "job-3", nil)
	require.NoError(t, err)
	assert.False(t, result.Achieved)
	assert.Equal(t, 3, result.RoundsTaken)
	assert.Equal(t, "final binding plan", result.UnifiedPlan.Rationale)

	finalDecisions := 0
	for _, msg := range result.Transcript {
		if msg.Role == domain.DebateFinalDecision {
			finalDecisions++
		}
	}
	assert.Equal(t, 1, finalDecisions)
}

func TestEngine_TranscriptCompleteness(t *testing.T) {
	participants, order, mediator := newFixture(map[string][]float64{
		"architect": {8},
		"auditor":   {8},
		"builder":   {8},
	})
	engine := New(participants, order, "mediator", mediator)

	result, err := engine.Run(context.Background(), "job-4", nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.RoundsTaken)

	n := len(order)
	counts := map[domain.DebateRole]int{}
	for _, msg := range result.Transcript {
		counts[msg.Role]++
	}
	assert.Equal(t, n, counts[domain.DebateProposal])
	assert.Equal(t, n, counts[domain.DebateCritique])
	assert.Equal(t, n, counts[domain.DebateRevision])
	assert.Equal(t, 1, counts[domain.DebateSynthesis])
	assert.Equal(t, n, counts[domain.DebateVote])
	assert.Equal(t, 0, counts[domain.DebateFinalDecision])
}

func TestEngine_FailedProposalBecomesEmptyPlanButReviewerStaysInDebate(t *testing.T) {
	order := []string{"architect", "auditor", "builder"}
	participants := map[string]Participant{
		"architect": &fakeParticipant{proposeErr: errors.New("boom"), voteScores: []float64{8}},
		"auditor":   &fakeParticipant{voteScores: []float64{8}},
		"builder":   &fakeParticipant{voteScores: []float64{8}},
	}
	mediator := &fakeParticipant{}
	engine := New(participants, order, "mediator", mediator)

	result, err := engine.Run(context.Background(), "job-5", nil)
	require.NoError(t, err)
	assert.True(t, result.Achieved)
	assert.Len(t, result.VotesByName, 3)
}

func TestEngine_FailedVoteIsRecordedAsZeroScore(t *testing.T) {
	order := []string{"architect", "auditor", "builder"}
	participants := map[string]Participant{
		"architect": &failingVoteParticipant{},
		"auditor":   &fakeParticipant{voteScores: []float64{8, 8}},
		"builder":   &fakeParticipant{voteScores: []float64{8, 8}},
	}
	mediator := &fakeParticipant{}
	engine := New(participants, order, "mediator", mediator, WithMaxRounds(2))

	result, err := engine.Run(context.Background(), "job-6", nil)
	require.NoError(t, err)
	vote := result.VotesByName["architect"]
	assert.Equal(t, 0.0, vote.Score)
	assert.False(t, vote.Approve)
	assert.Contains(t, vote.Rationale, "Vote failed")
}

// failingVoteParticipant always fails Vote but behaves like fakeParticipant
// otherwise.
type failingVoteParticipant struct {
	fakeParticipant
}

func (f *failingVoteParticipant) Vote(ctx context.Context, unifiedPlan domain.Plan) (domain.Vote, error) {
	return domain.Vote{}, errors.New("vote backend down")
}

func TestConverged(t *testing.T) {
	votes := map[string]domain.Vote{
		"a": {Score: 8}, "b": {Score: 7}, "c": {Score: 9},
	}
	assert.True(t, converged(votes, 7.0))

	votes["b"] = domain.Vote{Score: 6.9}
	assert.False(t, converged(votes, 7.0))

	assert.False(t, converged(nil, 7.0))
}
