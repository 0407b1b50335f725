package ingestion

import (
	"context"
	"fmt"
	"os"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// declarationNodeTypes lists the tree-sitter node types counted as a
// "top-level declaration" per language. Anything else at the root is
// skipped (package clauses, comments, stray expression statements).
var declarationNodeTypes = map[string]map[string]bool{
	"go": {
		"function_declaration": true,
		"method_declaration":   true,
		"type_declaration":     true,
		"const_declaration":    true,
		"var_declaration":      true,
	},
	"python": {
		"function_definition": true,
		"class_definition":    true,
	},
	"typescript": {
		"function_declaration":  true,
		"class_declaration":     true,
		"interface_declaration": true,
		"export_statement":      true,
		"lexical_declaration":   true,
	},
}

func languageGrammar(lang string) (*sitter.Language, bool) {
	switch lang {
	case "go":
		return golang.GetLanguage(), true
	case "python":
		return python.GetLanguage(), true
	case "typescript":
		return typescript.GetLanguage(), true
	default:
		return nil, false
	}
}

// countTopLevelDeclarations parses source with the tree-sitter grammar
// for lang and counts root-level nodes recognized as declarations.
func countTopLevelDeclarations(ctx context.Context, lang string, source []byte) (int, error) {
	grammar, ok := languageGrammar(lang)
	if !ok {
		return 0, fmt.Errorf("no tree-sitter grammar for language %q", lang)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return 0, fmt.Errorf("parse %s source: %w", lang, err)
	}
	defer tree.Close()

	wanted := declarationNodeTypes[lang]
	root := tree.RootNode()
	count := 0
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if wanted[child.Type()] {
			count++
		}
	}
	return count, nil
}

// summarizeSourceFile returns a short human-readable summary string for
// Snapshot.FileSummaries, e.g. "12 top-level declarations (go)". Files in
// languages without a tree-sitter grammar, and files that cannot be read
// or parsed, get an empty summary; summarizeSourceFile never returns an
// error, since a summary failure should never abort ingestion.
func summarizeSourceFile(ctx context.Context, lang string, path string) string {
	if !treeSitterLanguages[lang] {
		return ""
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	if len(content) > maxCountedFileBytes {
		content = content[:maxCountedFileBytes]
	}

	count, err := countTopLevelDeclarations(ctx, lang, content)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%d top-level declarations (%s)", count, lang)
}
