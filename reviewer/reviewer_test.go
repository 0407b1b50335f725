package reviewer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repoforge/transformer/domain"
	"github.com/repoforge/transformer/fileops"
	"github.com/repoforge/transformer/llm"
	"github.com/repoforge/transformer/llm/testutil"
	"github.com/repoforge/transformer/model"
)

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		Name:            "example",
		PrimaryLanguage: "go",
		FileCount:       10,
		LineCount:       500,
	}
}

func TestReviewer_Audit(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Model: "test-model", RequestID: "req-1", Content: `{
			"critical_issues": [{"severity":"critical","category":"bug","description":"nil deref"}],
			"major_issues": [],
			"minor_issues": [],
			"overall_score": 6.5,
			"summary": "needs work"
		}`},
	}}

	r := New("architect", model.RoleArchitect, mock)
	report, err := r.Audit(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, "architect", report.ReviewerName)
	assert.Equal(t, "test-model", report.Model)
	assert.Equal(t, "req-1", report.RequestID)
	require.Len(t, report.CriticalIssues, 1)
	assert.NotEmpty(t, report.CriticalIssues[0].ID)
	assert.Equal(t, 6.5, report.OverallScore)
}

func TestReviewer_AuditRetriesOnceOnInvalidJSON(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Model: "test-model", Content: "not json at all"},
		{Model: "test-model", Content: `{"critical_issues":[],"major_issues":[],"minor_issues":[],"overall_score":8,"summary":"ok"}`},
	}}

	r := New("auditor", model.RoleAuditor, mock)
	report, err := r.Audit(context.Background(), testSnapshot())
	require.NoError(t, err)
	assert.Equal(t, 8.0, report.OverallScore)
	assert.Equal(t, 2, mock.GetCallCount())
}

func TestReviewer_AuditFatalAfterSecondParseFailure(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Model: "test-model", Content: "still not json"},
		{Model: "test-model", Content: "still not json"},
	}}

	r := New("auditor", model.RoleAuditor, mock)
	_, err := r.Audit(context.Background(), testSnapshot())
	assert.Error(t, err)
}

func TestReviewer_Vote(t *testing.T) {
	mock := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Model: "test-model", Content: `{"score":9,"approve":true,"rationale":"solid plan"}`},
	}}

	r := New("builder", model.RoleBuilder, mock)
	vote, err := r.Vote(context.Background(), domain.Plan{Rationale: "plan"})
	require.NoError(t, err)
	assert.Equal(t, "builder", vote.ReviewerName)
	assert.Equal(t, 9.0, vote.Score)
}

func TestReviewer_ExecutePlanFollowsCanonicalOrderAndSkipsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	scope := fileops.NewScope(dir)

	mock := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Model: "test-model", Content: `{"created":[],"modified":[],"deleted":[],"summary":"fixed security issue"}`},
		{Model: "test-model", Content: `{"created":[],"modified":[],"deleted":[],"summary":"wrote tests"}`},
		{Model: "test-model", Content: `{"created":[],"modified":[],"deleted":[],"summary":"set up CI"}`},
	}}

	r := New("builder", model.RoleBuilder, mock)
	plan := domain.Plan{Steps: map[string]any{
		"write_tests":                  true,
		"fix_security_vulnerabilities": true,
		"setup_cicd":                   true,
		"unknown_step_not_in_order":    true,
	}}

	changeSets := r.ExecutePlan(context.Background(), plan, testSnapshot(), scope)
	require.Len(t, changeSets, 3)
	assert.Equal(t, "fix_security_vulnerabilities", changeSets[0].Step)
	assert.Equal(t, "write_tests", changeSets[1].Step)
	assert.Equal(t, "setup_cicd", changeSets[2].Step)
}

func TestReviewer_ExecutePlanRecordsErrorSummaryOnUnparsableStepButContinues(t *testing.T) {
	dir := t.TempDir()
	scope := fileops.NewScope(dir)

	mock := &testutil.MockLLMClient{Responses: []*llm.Response{
		{Model: "test-model", Content: "garbage, not json"},
		{Model: "test-model", Content: "garbage, not json"}, // retry also fails -> fatal for this step
		{Model: "test-model", Content: `{"created":[],"modified":[],"deleted":[],"summary":"wrote tests"}`},
	}}

	r := New("builder", model.RoleBuilder, mock)
	plan := domain.Plan{Steps: map[string]any{
		"fix_security_vulnerabilities": true,
		"write_tests":                  true,
	}}

	changeSets := r.ExecutePlan(context.Background(), plan, testSnapshot(), scope)
	require.Len(t, changeSets, 2)
	assert.Contains(t, changeSets[0].Summary, "failed")
	assert.Equal(t, "wrote tests", changeSets[1].Summary)
}

func TestLoadSystemPrompt_FallsBackWhenFileMissing(t *testing.T) {
	prompt := LoadSystemPrompt("nonexistent-role")
	assert.Contains(t, prompt, "Nonexistent-role agent")
}
