// Package validator runs language-appropriate external checks against a
// working copy and aggregates the results into a health score.
package validator

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/repoforge/transformer/domain"
)

// maxOutputLen truncates captured stdout/stderr per spec's "truncated to
// 2000 characters" rule.
const maxOutputLen = 2000

// Check is one named external command to run for a given language.
type Check struct {
	Name     string
	Command  string
	Required bool
	Trigger  []string // glob patterns; empty means always run
	Timeout  time.Duration
}

// Validator runs a language's configured check list against a working
// copy.
type Validator struct {
	checksByLanguage map[string][]Check
	defaultTimeout   time.Duration
	logger           *slog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithDefaultTimeout sets the fallback per-check timeout used when a
// Check does not specify its own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(v *Validator) {
		v.defaultTimeout = d
	}
}

// New creates a Validator from a language tag to ordered check list
// mapping.
func New(checksByLanguage map[string][]Check, opts ...Option) *Validator {
	v := &Validator{
		checksByLanguage: checksByLanguage,
		defaultTimeout:    120 * time.Second,
		logger:            slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// DefaultChecks returns a conservative built-in check list per language,
// grounded on common static-analysis/type-check/lint tooling for each
// ecosystem. Callers may override or extend this via New.
func DefaultChecks() map[string][]Check {
	return map[string][]Check{
		"go": {
			{Name: "vet", Command: "go vet ./...", Required: true, Trigger: []string{"**/*.go"}},
			{Name: "build", Command: "go build ./...", Required: true, Trigger: []string{"**/*.go"}},
		},
		"python": {
			{Name: "compile", Command: "python -m py_compile", Required: true, Trigger: []string{"**/*.py"}},
			{Name: "flake8", Command: "flake8 .", Required: false, Trigger: []string{"**/*.py"}},
		},
		"javascript": {
			{Name: "eslint", Command: "npx eslint .", Required: false, Trigger: []string{"**/*.js", "**/*.jsx"}},
		},
		"typescript": {
			{Name: "tsc", Command: "npx tsc --noEmit", Required: true, Trigger: []string{"**/*.ts", "**/*.tsx"}},
			{Name: "eslint", Command: "npx eslint .", Required: false, Trigger: []string{"**/*.ts", "**/*.tsx"}},
		},
	}
}

// Validate runs every triggered check for language against workingCopy
// and returns the aggregate report. When changedFiles is empty every
// check for the language runs (full scan mode); otherwise only checks
// whose Trigger pattern matches at least one changed file run.
func (v *Validator) Validate(ctx context.Context, workingCopy, language string, changedFiles []string) (*domain.ValidationReport, error) {
	checks := v.checksByLanguage[language]
	if len(checks) == 0 {
		return &domain.ValidationReport{AllPassed: true, HealthScore: 10.0}, nil
	}

	runAll := len(changedFiles) == 0

	var results []domain.CheckResult
	for _, check := range checks {
		if !runAll && !matchesAny(check.Trigger, changedFiles) {
			continue
		}
		results = append(results, v.runCheck(ctx, workingCopy, check))
	}

	if len(results) == 0 {
		return &domain.ValidationReport{AllPassed: true, HealthScore: 10.0}, nil
	}

	failures := 0
	allPassed := true
	for _, r := range results {
		if !r.Passed {
			failures++
			allPassed = false
		}
	}

	score := 10.0
	if failures > 0 {
		score = 10.0 - 2.0*float64(failures)
		if score < 0 {
			score = 0
		}
	}

	return &domain.ValidationReport{
		AllPassed:   allPassed,
		Checks:      results,
		HealthScore: score,
	}, nil
}

// runCheck executes a single check's command with its timeout and
// truncates captured output.
func (v *Validator) runCheck(ctx context.Context, workingCopy string, check Check) domain.CheckResult {
	timeout := check.Timeout
	if timeout == 0 {
		timeout = v.defaultTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := splitCommand(check.Command)
	if len(args) == 0 {
		return domain.CheckResult{Name: check.Name, Passed: false, Details: "empty command"}
	}

	cmd := exec.CommandContext(cmdCtx, args[0], args[1:]...)
	cmd.Dir = workingCopy

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	passed := runErr == nil

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += stderr.String()
	}
	if len(output) > maxOutputLen {
		output = output[:maxOutputLen]
	}

	details := ""
	if runErr != nil {
		details = runErr.Error()
	}

	v.logger.Debug("ran validation check",
		"name", check.Name,
		"passed", passed,
		"required", check.Required)

	return domain.CheckResult{
		Name:    check.Name,
		Passed:  passed,
		Output:  output,
		Details: details,
	}
}

// matchesAny reports whether any file matches any of the given
// doublestar glob patterns.
func matchesAny(patterns []string, files []string) bool {
	for _, pattern := range patterns {
		for _, file := range files {
			if matched, _ := doublestar.Match(pattern, file); matched {
				return true
			}
			if matched, _ := doublestar.Match(pattern, filepath.Base(file)); matched {
				return true
			}
		}
	}
	return false
}

// splitCommand performs minimal whitespace-based tokenization of a
// command string, preserving single- and double-quoted tokens. It does
// not support escape sequences or nested quoting; complex commands
// should be wrapped in a shell invocation.
func splitCommand(cmd string) []string {
	var tokens []string
	var current strings.Builder
	inSingle := false
	inDouble := false

	for _, r := range cmd {
		switch {
		case r == '\'' && !inDouble:
			inSingle = !inSingle
		case r == '"' && !inSingle:
			inDouble = !inDouble
		case r == ' ' && !inSingle && !inDouble:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}
