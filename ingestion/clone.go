package ingestion

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// allowedProtocols mirrors tools/git's executor allowlist
// (validateGitURL): only these schemes are ever handed to `git clone`.
var allowedProtocols = map[string]bool{
	"https": true,
	"git":   true,
	"ssh":   true,
}

// repoNameRe extracts a filesystem-safe slug from the trailing path
// component of a repo URL, dropping a ".git" suffix if present.
var repoNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func validateGitURL(rawURL string) error {
	if strings.HasPrefix(rawURL, "git@") {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme == "file" {
		return fmt.Errorf("file:// protocol is not allowed")
	}
	if !allowedProtocols[scheme] {
		return fmt.Errorf("protocol %q not allowed; must be https, git, or ssh", scheme)
	}
	return nil
}

func validatePath(baseDir, path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	absBase, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("invalid base path: %w", err)
	}
	if absPath != absBase && !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path must be within %s", absBase)
	}
	return nil
}

func slugFromRepoURL(repoURL string) string {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	parts := strings.FieldsFunc(trimmed, func(r rune) bool { return r == '/' || r == ':' })
	name := "repo"
	if len(parts) > 0 {
		name = parts[len(parts)-1]
	}
	name = repoNameRe.ReplaceAllString(name, "-")
	if name == "" {
		name = "repo"
	}
	return name
}

// Clone validates repoURL against the protocol allowlist, then shells out
// to `git clone --depth N` into a fresh subdirectory of the Adapter's
// base directory, returning the working copy path.
func (a *Adapter) Clone(ctx context.Context, repoURL string) (string, error) {
	if err := validateGitURL(repoURL); err != nil {
		return "", fmt.Errorf("invalid repository URL: %w", err)
	}

	dest := filepath.Join(a.baseDir, slugFromRepoURL(repoURL)+"-"+uuid.New().String()[:8])
	if err := validatePath(a.baseDir, dest); err != nil {
		return "", fmt.Errorf("invalid destination: %w", err)
	}

	args := []string{"clone", "--depth", strconv.Itoa(a.cloneDepth), repoURL, dest}
	cmd := exec.CommandContext(ctx, "git", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git clone failed: %w: %s", err, string(output))
	}

	a.logger.Info("cloned repository", "url", repoURL, "dest", dest)
	return dest, nil
}
