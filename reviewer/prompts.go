package reviewer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/repoforge/transformer/domain"
)

// promptsDir is where LoadSystemPrompt looks for role prompt files,
// relative to the process working directory: prompt assets live in a
// sibling directory rather than being embedded, so operators can edit
// them without a rebuild.
const promptsDir = "./prompts"

// LoadSystemPrompt reads ./prompts/{role}_system.md; a missing file falls
// back to a canned prompt.
func LoadSystemPrompt(role string) string {
	path := filepath.Join(promptsDir, role+"_system.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("You are the %s agent. Respond carefully and precisely.", capitalize(role))
	}
	return string(data)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// AuditUserPrompt builds the user-turn prompt for Reviewer.Audit.
func AuditUserPrompt(snapshot *domain.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("Audit this repository and return a JSON AuditReport.\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n", snapshot.Name)
	fmt.Fprintf(&sb, "Primary language: %s\n", snapshot.PrimaryLanguage)
	fmt.Fprintf(&sb, "Files: %d, lines: %d\n", snapshot.FileCount, snapshot.LineCount)
	fmt.Fprintf(&sb, "Hygiene: readme=%v tests=%v ci=%v dockerfile=%v license=%v env_example=%v\n",
		snapshot.HasReadme, snapshot.HasTests, snapshot.HasCI, snapshot.HasDockerfile,
		snapshot.HasLicense, snapshot.HasEnvExample)
	if len(snapshot.Dependencies) > 0 {
		fmt.Fprintf(&sb, "Dependencies: %s\n", strings.Join(snapshot.Dependencies, ", "))
	}
	if len(snapshot.EntryPoints) > 0 {
		fmt.Fprintf(&sb, "Entry points: %s\n", strings.Join(snapshot.EntryPoints, ", "))
	}
	sb.WriteString("\nRespond with a JSON object matching the AuditReport schema: " +
		`{"critical_issues":[],"major_issues":[],"minor_issues":[],"architecture_changes":[],` +
		`"file_proposals":[],"dimension_scores":{},"overall_score":0,"summary":"","effort_estimate":""}`)
	return sb.String()
}

// ProposeUserPrompt builds the user-turn prompt for Reviewer.Propose.
func ProposeUserPrompt(reports []domain.AuditReport) string {
	var sb strings.Builder
	sb.WriteString("Given the following audit reports, propose an improvement Plan as JSON ")
	sb.WriteString(`({"priority":[],"steps":{},"rationale":""}).` + "\n\n")
	for _, r := range reports {
		fmt.Fprintf(&sb, "## %s (%s) — score %.1f\n%s\n", r.ReviewerName, r.Role, r.OverallScore, r.Summary)
		for _, iss := range r.AllIssues() {
			fmt.Fprintf(&sb, "- [%s/%s] %s\n", iss.Severity, iss.Category, iss.Description)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// CritiqueUserPrompt builds the user-turn prompt for Reviewer.Critique.
func CritiqueUserPrompt(plansByName map[string]domain.Plan) string {
	var sb strings.Builder
	sb.WriteString("Critique the following plans proposed by other reviewers. Return JSON ")
	sb.WriteString(`{"concerns":[],"strengths":[],"suggestion":""}.` + "\n\n")
	for name, p := range plansByName {
		fmt.Fprintf(&sb, "## %s's plan\nPriority: %s\nRationale: %s\nSteps: %v\n\n",
			name, strings.Join(p.Priority, ", "), p.Rationale, stepNames(p))
	}
	return sb.String()
}

// ReviseUserPrompt builds the user-turn prompt for Reviewer.Revise.
func ReviseUserPrompt(ownPlan domain.Plan, critiquesByName map[string]Critique) string {
	var sb strings.Builder
	sb.WriteString("Revise your plan in light of the critiques below. Return the revised Plan as JSON ")
	sb.WriteString(`({"priority":[],"steps":{},"rationale":""}).` + "\n\n")
	fmt.Fprintf(&sb, "## Your current plan\nPriority: %s\nRationale: %s\nSteps: %v\n\n",
		strings.Join(ownPlan.Priority, ", "), ownPlan.Rationale, stepNames(ownPlan))
	for name, c := range critiquesByName {
		fmt.Fprintf(&sb, "## Critique from %s\nConcerns: %s\nSuggestion: %s\n\n",
			name, strings.Join(c.Concerns, "; "), c.Suggestion)
	}
	return sb.String()
}

// SynthesizeUserPrompt builds the mediator's synthesis prompt.
func SynthesizeUserPrompt(plansByName map[string]domain.Plan) string {
	var sb strings.Builder
	sb.WriteString("Synthesize a single unified Plan from the reviewer plans below. Return JSON ")
	sb.WriteString(`({"priority":[],"steps":{},"rationale":""}).` + "\n\n")
	for name, p := range plansByName {
		fmt.Fprintf(&sb, "## %s's plan\nPriority: %s\nRationale: %s\nSteps: %v\n\n",
			name, strings.Join(p.Priority, ", "), p.Rationale, stepNames(p))
	}
	return sb.String()
}

// FinalDecisionUserPrompt builds the mediator's binding final-decision
// prompt for non-convergent debates.
func FinalDecisionUserPrompt(plansByName map[string]domain.Plan, latestCritiques map[string]Critique, latestVotes map[string]domain.Vote) string {
	var sb strings.Builder
	sb.WriteString("The debate did not converge. Issue a binding final Plan as JSON ")
	sb.WriteString(`({"priority":[],"steps":{},"rationale":""}).` + "\n\n")
	for name, p := range plansByName {
		fmt.Fprintf(&sb, "## %s's plan\nRationale: %s\nSteps: %v\n", name, p.Rationale, stepNames(p))
	}
	sb.WriteString("\n## Latest votes\n")
	for name, v := range latestVotes {
		fmt.Fprintf(&sb, "- %s: score=%.1f approve=%v rationale=%s\n", name, v.Score, v.Approve, v.Rationale)
	}
	sb.WriteString("\n## Latest critiques\n")
	for name, c := range latestCritiques {
		fmt.Fprintf(&sb, "- %s: concerns=%s\n", name, strings.Join(c.Concerns, "; "))
	}
	return sb.String()
}

// VoteUserPrompt builds the user-turn prompt for Reviewer.Vote.
func VoteUserPrompt(unifiedPlan domain.Plan) string {
	var sb strings.Builder
	sb.WriteString("Score the unified plan below from 0 to 10 and decide whether to approve it. Return JSON ")
	sb.WriteString(`{"score":0,"approve":false,"blocking_concerns":[],"minor_concerns":[],"rationale":""}.` + "\n\n")
	fmt.Fprintf(&sb, "Rationale: %s\nSteps: %v\n", unifiedPlan.Rationale, stepNames(unifiedPlan))
	return sb.String()
}

// ReviewChangesUserPrompt builds the user-turn prompt for
// Reviewer.ReviewChanges.
func ReviewChangesUserPrompt(changeSets []domain.ChangeSet, snapshot *domain.Snapshot) string {
	var sb strings.Builder
	sb.WriteString("Review the following executed change sets against the repository. Return JSON ")
	sb.WriteString(`{"approved":false,"rejections":[],"concerns":[]}.` + "\n\n")
	fmt.Fprintf(&sb, "Repository: %s\n\n", snapshot.Name)
	for _, cs := range changeSets {
		fmt.Fprintf(&sb, "## Step: %s\n%s\n", cs.Step, cs.Summary)
		for _, fc := range cs.Created {
			fmt.Fprintf(&sb, "- created %s\n", fc.Path)
		}
		for _, fc := range cs.Modified {
			fmt.Fprintf(&sb, "- modified %s\n", fc.Path)
		}
		for _, fc := range cs.Deleted {
			fmt.Fprintf(&sb, "- deleted %s\n", fc.Path)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func stepNames(p domain.Plan) []string {
	return domain.OrderedSteps(p)
}

// ExecuteStepUserPrompt builds the Builder's per-step execution prompt.
func ExecuteStepUserPrompt(step string, plan domain.Plan, snapshot *domain.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Execute plan step %q against repository %s. Return a JSON ChangeSet ", step, snapshot.Name)
	sb.WriteString(`{"created":[{"path":"","content":"","summary":""}],"modified":[],"deleted":[],"summary":""}.` + "\n\n")
	fmt.Fprintf(&sb, "Step detail: %v\n", plan.Steps[step])
	fmt.Fprintf(&sb, "Overall rationale: %s\n", plan.Rationale)
	return sb.String()
}

// ApplyFixesUserPrompt builds the Builder's single follow-up fix-up
// prompt.
func ApplyFixesUserPrompt(rejections []string, snapshot *domain.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Address the following rejection reasons for repository %s with a single follow-up ChangeSet. Return JSON ", snapshot.Name)
	sb.WriteString(`{"created":[],"modified":[],"deleted":[],"summary":""}.` + "\n\n")
	for _, r := range rejections {
		fmt.Fprintf(&sb, "- %s\n", r)
	}
	return sb.String()
}
