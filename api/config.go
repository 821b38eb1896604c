// Package api holds the declarative configuration of a generation run: which
// directory to scan, where the declaration goes, and which middlewares and
// loaders form the pipeline. Configs are written in HCL and translate into a
// ready-to-run Manager.
package api

import (
	"fmt"
	"regexp"

	"github.com/charmbracelet/log"
	"github.com/go-git/go-billy/v5"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/agentic-research/restree"
	"github.com/agentic-research/restree/loader"
	"github.com/agentic-research/restree/pipeline"
)

// Config mirrors the restree.Config surface in declarative form.
type Config struct {
	// Root is the resource directory to scan.
	Root string `hcl:"root"`
	// Out is the generated file's path.
	Out string `hcl:"out"`
	// Package is the generated file's package clause.
	Package string `hcl:"package"`
	// TypeName names the generated declaration. Defaults to "Root".
	TypeName string `hcl:"type_name,optional"`
	// Preamble is emitted verbatim after the package clause.
	Preamble string `hcl:"preamble,optional"`
	// Ignore overrides the default dunder-entry filter (anchored regexp).
	Ignore string `hcl:"ignore,optional"`

	Middlewares []MiddlewareConfig `hcl:"middleware,block"`
	Loaders     []LoaderConfig     `hcl:"loader,block"`
}

// MiddlewareConfig selects a stock middleware by kind: "strip_extensions" or
// "group_by", both parameterized by a pattern.
type MiddlewareConfig struct {
	Kind    string `hcl:"kind,label"`
	Pattern string `hcl:"pattern"`
}

// LoaderConfig selects a stock loader by kind: "text", "json" or "bytes". A
// fallback string, when set, substitutes for the value on load failure
// instead of aborting the run.
type LoaderConfig struct {
	Kind     string  `hcl:"kind,label"`
	Fallback *string `hcl:"fallback,optional"`
}

// Load reads an HCL config file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return &cfg, nil
}

// Manager translates the config into a runnable Manager on fs.
func (c *Config) Manager(fs billy.Filesystem, logger *log.Logger) (*restree.Manager, error) {
	var ignore *regexp.Regexp
	if c.Ignore != "" {
		re, err := regexp.Compile(c.Ignore)
		if err != nil {
			return nil, fmt.Errorf("ignore pattern: %w", err)
		}
		ignore = re
	}

	middlewares := make([]pipeline.Middleware, 0, len(c.Middlewares))
	for _, mc := range c.Middlewares {
		switch mc.Kind {
		case "strip_extensions":
			middlewares = append(middlewares, pipeline.StripExtensions(mc.Pattern))
		case "group_by":
			middlewares = append(middlewares, pipeline.GroupBy(mc.Pattern))
		default:
			return nil, fmt.Errorf("unknown middleware kind %q", mc.Kind)
		}
	}

	loaders := make([]loader.Loader, 0, len(c.Loaders))
	for _, lc := range c.Loaders {
		var l loader.Loader
		switch lc.Kind {
		case "text":
			l = loader.Text()
		case "json":
			l = loader.JSON()
		case "bytes":
			l = loader.Bytes()
		default:
			return nil, fmt.Errorf("unknown loader kind %q", lc.Kind)
		}
		if lc.Fallback != nil {
			l = l.WithFallback(*lc.Fallback)
		}
		loaders = append(loaders, l)
	}

	return restree.New(restree.Config{
		FS:          fs,
		Root:        c.Root,
		Out:         c.Out,
		Package:     c.Package,
		TypeName:    c.TypeName,
		Preamble:    c.Preamble,
		Ignore:      ignore,
		Middlewares: middlewares,
		Loaders:     loaders,
		Logger:      logger,
	}), nil
}
