// Package loader converts leaf values. Loaders run after all middlewares and
// are the only stage that reads file content: an ordered chain turns each
// leaf's file handle into a typed value, with produced values re-offered to
// the whole chain so loaders can hand off to one another.
package loader

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/davecgh/go-spew/spew"

	"github.com/agentic-research/restree/tree"
)

// Loader is one value transform in a chain. Load is only invoked when the
// guards pass: Pattern restricts file-handle inputs by extension (without the
// dot), Accepts restricts by the runtime type of the input value; a nil guard
// always passes. Load returning a nil value with a nil error declines the
// input without changing it.
//
// When Load fails and HasFallback is set, Fallback substitutes for the
// produced value and the run continues; without a fallback the failure aborts
// the whole generation run.
type Loader struct {
	Name        string
	Pattern     *regexp.Regexp
	Accepts     func(v any) bool
	Load        func(ctx context.Context, v any) (any, error)
	Fallback    any
	HasFallback bool
}

func (l Loader) applicable(v any) bool {
	if l.Pattern != nil {
		ref, ok := v.(tree.FileRef)
		if !ok {
			return false
		}
		ext := strings.TrimPrefix(path.Ext(ref.Path), ".")
		if !l.Pattern.MatchString(ext) {
			return false
		}
	}
	if l.Accepts != nil && !l.Accepts(v) {
		return false
	}
	return true
}

// WithFallback returns a copy of l that substitutes value when Load fails.
func (l Loader) WithFallback(value any) Loader {
	l.Fallback = value
	l.HasFallback = true
	return l
}

// Extension builds a loader for file handles whose extension matches
// extensions (an alternation without dots, e.g. `txt|md`).
func Extension(name, extensions string, fn func(ctx context.Context, ref tree.FileRef) (any, error)) Loader {
	return Loader{
		Name:    name,
		Pattern: regexp.MustCompile(`^(?:` + extensions + `)$`),
		Load: func(ctx context.Context, v any) (any, error) {
			return fn(ctx, v.(tree.FileRef))
		},
	}
}

// ForType builds a loader that only claims values of type T, typically the
// output of an earlier loader in the same chain.
func ForType[T any](name string, fn func(ctx context.Context, v T) (any, error)) Loader {
	return Loader{
		Name: name,
		Accepts: func(v any) bool {
			_, ok := v.(T)
			return ok
		},
		Load: func(ctx context.Context, v any) (any, error) {
			return fn(ctx, v.(T))
		},
	}
}

// Error reports a loader failure with no fallback to absorb it.
type Error struct {
	Loader   string
	Location string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("loader %s failed at %s: %v", e.Loader, e.Location, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Warning records a leaf that survived the whole chain unclaimed. Its shape
// degrades to an opaque type, which callers should know about.
type Warning struct {
	Location string
	Value    any
}

// Chain is an ordered list of loaders applied to every leaf.
type Chain struct {
	Loaders []Loader
}

// Resolve runs the chain over a single value: loaders are scanned in order,
// the first applicable one is invoked, and a produced value restarts the scan
// so that e.g. a path-to-text loader can hand off to a text-to-int loader
// further down the list. Each loader produces at most once per leaf, which
// bounds resolution and keeps a catch-all loader from reclaiming its own
// output. A scan pass with no production ends resolution; resolved reports
// whether any loader claimed the value.
func (c Chain) Resolve(ctx context.Context, loc string, v any) (out any, resolved bool, err error) {
	logger := log.FromContext(ctx)
	spent := make([]bool, len(c.Loaders))
	for {
		produced := false
		for i, l := range c.Loaders {
			if spent[i] || !l.applicable(v) {
				continue
			}
			next, err := l.Load(ctx, v)
			if err != nil {
				if !l.HasFallback {
					return nil, false, &Error{Loader: l.Name, Location: loc, Err: err}
				}
				logger.Error("loader failed, substituting fallback",
					"loader", l.Name, "location", loc, "err", err)
				next = l.Fallback
			} else if next == nil {
				continue
			}
			logger.Debug("leaf value produced",
				"loader", l.Name, "location", loc, "value", spew.Sprintf("%#v", next))
			v = next
			spent[i] = true
			resolved = true
			produced = true
			break
		}
		if !produced {
			return v, resolved, nil
		}
	}
}

// Apply resolves every leaf of the tree in depth-first order, mutating leaves
// in place. Unclaimed leaves keep their original handle and are reported as
// warnings rather than failing the run.
func (c Chain) Apply(ctx context.Context, root tree.Node) ([]Warning, error) {
	var warnings []Warning
	if err := c.apply(ctx, tree.RootLocation, root, &warnings); err != nil {
		return nil, err
	}
	return warnings, nil
}

func (c Chain) apply(ctx context.Context, loc string, n tree.Node, warnings *[]Warning) error {
	switch node := n.(type) {
	case *tree.Mapping:
		for _, key := range node.Keys() {
			child, _ := node.Get(key)
			if err := c.apply(ctx, tree.ChildLocation(loc, key), child, warnings); err != nil {
				return err
			}
		}
	case *tree.Sequence:
		for i, child := range node.Items {
			if err := c.apply(ctx, tree.IndexLocation(loc, i), child, warnings); err != nil {
				return err
			}
		}
	case *tree.Leaf:
		v, resolved, err := c.Resolve(ctx, loc, node.Value)
		if err != nil {
			return err
		}
		if !resolved {
			log.FromContext(ctx).Warn("no loader claimed leaf",
				"location", loc, "value", spew.Sprintf("%#v", node.Value))
			*warnings = append(*warnings, Warning{Location: loc, Value: node.Value})
			return nil
		}
		node.Value = v
		node.Resolved = true
	}
	return nil
}
