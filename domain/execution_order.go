package domain

// ExecutionOrder is the canonical, authoritative order the Builder walks a
// Plan's steps in when executing it. Keys absent from a Plan are skipped,
// not errored; keys in a Plan but absent from this list are never attempted.
var ExecutionOrder = []string{
	"fix_critical_bugs",
	"fix_security_vulnerabilities",
	"restructure_files",
	"update_dependencies",
	"refactor_code",
	"add_error_handling",
	"add_type_hints",
	"write_tests",
	"generate_documentation",
	"setup_cicd",
	"setup_docker",
	"add_env_management",
	"final_lint_format",
}

// OrderedSteps returns the subset of ExecutionOrder whose keys are present
// in the plan's Steps map, in canonical order.
func OrderedSteps(p Plan) []string {
	steps := make([]string, 0, len(ExecutionOrder))
	for _, name := range ExecutionOrder {
		if _, ok := p.Steps[name]; ok {
			steps = append(steps, name)
		}
	}
	return steps
}
