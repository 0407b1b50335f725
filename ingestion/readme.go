package ingestion

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	readability "github.com/go-shiori/go-readability"
)

// maxReadmeSummaryBytes bounds the summary stored in FileSummaries;
// READMEs routinely run to several kilobytes and the summary only needs
// to orient a reviewer, not reproduce the document.
const maxReadmeSummaryBytes = 2000

// summarizeReadme turns a README file into a short plain-text summary.
// HTML READMEs are cleaned with go-readability and rendered to markdown
// with html-to-markdown before truncation; everything else (Markdown,
// plain text) is truncated directly.
func summarizeReadme(path string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}

	if isHTML(path, content) {
		if summary, ok := htmlReadmeToText(content); ok {
			return truncate(summary, maxReadmeSummaryBytes)
		}
	}
	return truncate(string(content), maxReadmeSummaryBytes)
}

func isHTML(path string, content []byte) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		return true
	}
	trimmed := bytes.TrimSpace(content)
	return bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html"))
}

func htmlReadmeToText(content []byte) (string, bool) {
	article, err := readability.FromReader(bytes.NewReader(content), nil)
	if err != nil {
		return "", false
	}

	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	markdown, err := converter.ConvertString(article.Content)
	if err != nil {
		return strings.TrimSpace(article.TextContent), true
	}
	return strings.TrimSpace(markdown), true
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return strings.TrimSpace(s[:max]) + "..."
}
