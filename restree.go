// Package restree generates compile-time-checked accessors for a directory
// of resource files. It scans the directory into an ordered tree, lets a
// pipeline of middlewares reshape the tree, converts leaves into typed values
// through a loader chain, infers the tree's type shape and emits it as a Go
// type declaration guarded by an integrity marker.
package restree

import (
	"context"
	"os"
	"regexp"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/agentic-research/restree/emit"
	"github.com/agentic-research/restree/loader"
	"github.com/agentic-research/restree/pipeline"
	"github.com/agentic-research/restree/shape"
	"github.com/agentic-research/restree/tree"
)

// Config describes one generation run. Middlewares and loaders are fixed at
// construction time; there is no registration after the pipeline starts.
type Config struct {
	// FS is the filesystem holding both the resource root and the
	// destination file. Defaults to the host filesystem rooted at the
	// working directory.
	FS billy.Filesystem
	// Root is the resource directory to scan.
	Root string
	// Out is the destination path of the generated file.
	Out string
	// Package is the package clause of the generated file. Defaults to
	// "resources".
	Package string
	// TypeName names the generated declaration. Defaults to "Root".
	TypeName string
	// Preamble is emitted verbatim between the package clause and the
	// declaration, typically import statements for custom leaf types.
	Preamble string
	// Ignore filters scanned entry names. Defaults to tree.DefaultIgnore.
	Ignore *regexp.Regexp
	// Middlewares run in order, one full traversal each. A normalize-keys
	// middleware is always appended after them.
	Middlewares []pipeline.Middleware
	// Loaders form the leaf-loading chain, in order.
	Loaders []loader.Loader
	// Logger receives run diagnostics. Defaults to a stderr logger.
	Logger *log.Logger
}

// Result is what a run produced. Tree and Shape are read-only once returned.
type Result struct {
	Tree     tree.Node
	Shape    shape.Shape
	Rendered *emit.Rendered
	Warnings []loader.Warning
	// Written is false when the existing destination already carried this
	// content's marker and was left untouched.
	Written bool
}

// Manager drives the whole pipeline: scan, middlewares, loaders, shape
// inference, emission. One Manager runs one configuration; the tree built
// during a run is owned by that run alone.
type Manager struct {
	cfg Config
	log *log.Logger
}

func New(cfg Config) *Manager {
	if cfg.FS == nil {
		cfg.FS = osfs.New(".")
	}
	if cfg.Package == "" {
		cfg.Package = "resources"
	}
	if cfg.TypeName == "" {
		cfg.TypeName = "Root"
	}
	if cfg.Ignore == nil {
		cfg.Ignore = tree.DefaultIgnore
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "restree"})
	}
	return &Manager{cfg: cfg, log: logger}
}

// Render runs everything up to emission and returns the result without
// touching the destination file. Any fatal condition aborts with no partial
// output.
func (m *Manager) Render(ctx context.Context) (*Result, error) {
	ctx = log.WithContext(ctx, m.log)

	m.log.Debug("scanning resource root", "root", m.cfg.Root)
	root, err := tree.Scan(m.cfg.FS, m.cfg.Root, m.cfg.Ignore)
	if err != nil {
		return nil, err
	}

	middlewares := make([]pipeline.Middleware, 0, len(m.cfg.Middlewares)+1)
	middlewares = append(middlewares, m.cfg.Middlewares...)
	middlewares = append(middlewares, pipeline.NormalizeKeys())

	node, err := pipeline.Apply(ctx, tree.Node(root), middlewares)
	if err != nil {
		return nil, err
	}

	chain := loader.Chain{Loaders: m.cfg.Loaders}
	warnings, err := chain.Apply(ctx, node)
	if err != nil {
		return nil, err
	}

	s, err := shape.Infer(node)
	if err != nil {
		return nil, err
	}

	r, err := emit.Render(s, m.cfg.Package, m.cfg.TypeName, m.cfg.Preamble)
	if err != nil {
		return nil, err
	}

	return &Result{Tree: node, Shape: s, Rendered: r, Warnings: warnings}, nil
}

// Generate runs the full pipeline and writes the destination file unless its
// stored marker already matches the freshly rendered content. Repeated runs
// over unchanged inputs are no-ops after the first.
func (m *Manager) Generate(ctx context.Context) (*Result, error) {
	res, err := m.Render(ctx)
	if err != nil {
		return nil, err
	}
	if !emit.Stale(m.cfg.FS, m.cfg.Out, res.Rendered) {
		m.log.Info("destination is up to date", "out", m.cfg.Out, "marker", res.Rendered.Marker)
		return res, nil
	}
	if err := emit.Write(m.cfg.FS, m.cfg.Out, res.Rendered); err != nil {
		return nil, err
	}
	res.Written = true
	m.log.Info("destination regenerated", "out", m.cfg.Out, "warnings", len(res.Warnings))
	return res, nil
}

// Check reports whether the destination file is stale for the current inputs
// without writing anything.
func (m *Manager) Check(ctx context.Context) (bool, error) {
	res, err := m.Render(ctx)
	if err != nil {
		return false, err
	}
	return emit.Stale(m.cfg.FS, m.cfg.Out, res.Rendered), nil
}
