package ingestion

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// languageByExt classifies a file's language by extension. Extensions
// absent from this map are treated as unclassified and excluded from
// Snapshot.LanguageDistrib.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".java":  "java",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".sh":    "shell",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".md":    "markdown",
	".sql":   "sql",
	".proto": "protobuf",
}

// treeSitterLanguages is the subset of languageByExt's values that
// BuildSnapshot feeds through go-tree-sitter for a top-level-declaration
// count, per SPEC_FULL.md §4.8.
var treeSitterLanguages = map[string]bool{
	"go":         true,
	"python":     true,
	"typescript": true,
}

type walkedFile struct {
	relPath string
	absPath string
	size    int64
}

// walkWorkingCopy lists every regular file under root except the .git
// directory, in deterministic (filepath.Walk) order.
func walkWorkingCopy(root string) ([]walkedFile, error) {
	var files []walkedFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		files = append(files, walkedFile{relPath: filepath.ToSlash(rel), absPath: path, size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func languageForFile(relPath string) (string, bool) {
	lang, ok := languageByExt[strings.ToLower(filepath.Ext(relPath))]
	return lang, ok
}

// maxCountedFileBytes bounds how much of a single file is read for symbol
// summarization; large generated/vendored files are truncated rather than
// skipped so they still contribute a count. countLines is not bounded by
// it and reads the whole file.
const maxCountedFileBytes = 2 << 20 // 2 MiB

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lines := 0
	for scanner.Scan() {
		lines++
	}
	return lines, nil
}

// hygieneFlags holds the booleans that feed Snapshot.Has* fields and the
// base health score (see health.go).
type hygieneFlags struct {
	readme      bool
	readmePath  string
	tests       bool
	ci          bool
	dockerfile  bool
	license     bool
	envExample  bool
}

func detectHygiene(files []walkedFile) hygieneFlags {
	var h hygieneFlags
	for _, f := range files {
		base := filepath.Base(f.relPath)
		lowerBase := strings.ToLower(base)
		lowerPath := strings.ToLower(f.relPath)

		switch {
		case strings.HasPrefix(lowerBase, "readme"):
			h.readme = true
			if h.readmePath == "" {
				h.readmePath = f.relPath
			}
		case strings.HasPrefix(lowerBase, "license") || strings.HasPrefix(lowerBase, "licence"):
			h.license = true
		case lowerBase == "dockerfile" || strings.HasSuffix(lowerBase, ".dockerfile"):
			h.dockerfile = true
		case lowerBase == ".env.example" || lowerBase == ".env.sample":
			h.envExample = true
		}

		if strings.HasSuffix(lowerBase, "_test.go") ||
			strings.HasPrefix(lowerBase, "test_") && strings.HasSuffix(lowerBase, ".py") ||
			strings.HasSuffix(lowerBase, ".test.ts") || strings.HasSuffix(lowerBase, ".spec.ts") ||
			strings.Contains(lowerPath, "/tests/") || strings.HasPrefix(lowerPath, "tests/") {
			h.tests = true
		}

		if strings.Contains(lowerPath, ".github/workflows/") ||
			lowerBase == ".gitlab-ci.yml" ||
			strings.Contains(lowerPath, ".circleci/config.yml") {
			h.ci = true
		}
	}
	return h
}

// entryPointCandidates are well-known filenames treated as likely
// program entry points across languages.
var entryPointCandidates = map[string]bool{
	"main.go":     true,
	"index.js":    true,
	"index.ts":    true,
	"app.py":      true,
	"__main__.py": true,
	"server.js":   true,
	"server.ts":   true,
}

func detectEntryPoints(files []walkedFile) []string {
	var entries []string
	for _, f := range files {
		if entryPointCandidates[strings.ToLower(filepath.Base(f.relPath))] {
			entries = append(entries, f.relPath)
		}
	}
	return entries
}
