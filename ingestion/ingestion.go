// Package ingestion implements the Ingestion Adapter: cloning a remote
// repository and turning the working copy into an immutable
// domain.Snapshot. It is the only component that touches the network or
// shells out to git; every downstream package (reviewer, consensus,
// pipeline) works off the Snapshot value it produces.
package ingestion

import (
	"log/slog"
	"os"
)

const defaultCloneDepth = 1

// Adapter clones repositories into a working directory and builds
// Snapshots from the resulting working copy.
type Adapter struct {
	logger     *slog.Logger
	baseDir    string
	cloneDepth int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger used for clone/ingest diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// WithBaseDir sets the directory working copies are cloned into. Each
// clone gets its own subdirectory beneath it.
func WithBaseDir(dir string) Option {
	return func(a *Adapter) { a.baseDir = dir }
}

// WithCloneDepth overrides the default shallow-clone depth (1).
func WithCloneDepth(depth int) Option {
	return func(a *Adapter) {
		if depth > 0 {
			a.cloneDepth = depth
		}
	}
}

// New creates an Adapter. With no WithBaseDir option, clones land under
// the OS temp directory.
func New(opts ...Option) *Adapter {
	a := &Adapter{
		logger:     slog.Default(),
		baseDir:    os.TempDir(),
		cloneDepth: defaultCloneDepth,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}
