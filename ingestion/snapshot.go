package ingestion

import (
	"context"
	"path/filepath"
	"time"

	"github.com/repoforge/transformer/domain"
)

// BuildSnapshot walks workingCopyPath, classifies every file's language,
// detects hygiene flags, summarizes source files recognized by a
// tree-sitter grammar, and computes the initial health score. It never
// touches the network; Clone must have already produced the working
// copy.
func (a *Adapter) BuildSnapshot(ctx context.Context, workingCopyPath string) (*domain.Snapshot, error) {
	files, err := walkWorkingCopy(workingCopyPath)
	if err != nil {
		return nil, err
	}

	hygiene := detectHygiene(files)

	snapshot := &domain.Snapshot{
		WorkingCopyPath: workingCopyPath,
		Name:            filepath.Base(workingCopyPath),
		Files:           make([]string, 0, len(files)),
		EntryPoints:     detectEntryPoints(files),
		HasReadme:       hygiene.readme,
		HasTests:        hygiene.tests,
		HasCI:           hygiene.ci,
		HasDockerfile:   hygiene.dockerfile,
		HasLicense:      hygiene.license,
		HasEnvExample:   hygiene.envExample,
		FileSummaries:   make(map[string]string),
		Dependencies:    parseDependencies(workingCopyPath),
		IngestedAt:      time.Now(),
	}

	langCounts := make(map[string]int)
	totalLines := 0

	for _, f := range files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		snapshot.Files = append(snapshot.Files, f.relPath)
		snapshot.FileCount++

		lang, recognized := languageForFile(f.relPath)
		if !recognized {
			continue
		}
		langCounts[lang]++

		if lines, err := countLines(f.absPath); err == nil {
			totalLines += lines
		}

		if summary := summarizeSourceFile(ctx, lang, f.absPath); summary != "" {
			snapshot.FileSummaries[f.relPath] = summary
		}
	}
	snapshot.LineCount = totalLines

	if hygiene.readmePath != "" {
		snapshot.FileSummaries[hygiene.readmePath] = summarizeReadme(filepath.Join(workingCopyPath, hygiene.readmePath))
	}

	snapshot.LanguageDistrib = languageDistribution(langCounts)
	snapshot.PrimaryLanguage = primaryLanguage(langCounts)
	snapshot.InitialHealthScore = initialHealthScore(hygiene, snapshot.FileCount)

	return snapshot, nil
}

func languageDistribution(counts map[string]int) map[string]float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return nil
	}

	dist := make(map[string]float64, len(counts))
	for lang, c := range counts {
		dist[lang] = float64(c) / float64(total)
	}
	return dist
}

func primaryLanguage(counts map[string]int) string {
	best := ""
	bestCount := -1
	for lang, c := range counts {
		if c > bestCount || (c == bestCount && lang < best) {
			best, bestCount = lang, c
		}
	}
	return best
}
