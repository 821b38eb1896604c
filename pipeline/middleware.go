// Package pipeline applies ordered structural transforms (middlewares) to a
// resource tree. Each middleware gets one full preorder traversal of the
// current tree and may rewrite any node it visits; the resulting tree feeds
// the next middleware in the list.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentic-research/restree/tree"
)

// Middleware is a named structural transform. Transform is called once per
// node during a preorder traversal with the node's location (for logging and
// errors, not lookups). Returning a non-nil node substitutes it at that
// position and traversal continues into the replacement's children, so new
// structure is itself subject to the same middleware on the same pass.
// Returning nil keeps the node; mutating it in place is equally legal.
// Transforms must not introduce cycles — the pipeline does not detect them.
type Middleware struct {
	Name      string
	Transform func(ctx context.Context, loc string, n tree.Node) (tree.Node, error)
}

// ConflictError reports irreconcilable keys found by a middleware, such as
// two entries grouped onto the same sequence index.
type ConflictError struct {
	Location string
	Keys     []string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting keys at %s: %s (%s)",
		e.Location, strings.Join(e.Keys, ", "), e.Reason)
}

// Apply runs each middleware over the tree in list order, one full traversal
// per middleware, and returns the final tree. The root itself may be
// replaced, including by a node of a different kind.
func Apply(ctx context.Context, root tree.Node, middlewares []Middleware) (tree.Node, error) {
	for _, mw := range middlewares {
		replaced, err := applyOne(ctx, mw, tree.RootLocation, root)
		if err != nil {
			return nil, err
		}
		root = replaced
	}
	return root, nil
}

func applyOne(ctx context.Context, mw Middleware, loc string, n tree.Node) (tree.Node, error) {
	r, err := mw.Transform(ctx, loc, n)
	if err != nil {
		return nil, fmt.Errorf("middleware %s at %s: %w", mw.Name, loc, err)
	}
	if r != nil {
		n = r
	}

	switch node := n.(type) {
	case *tree.Mapping:
		for _, key := range node.Keys() {
			child, ok := node.Get(key)
			if !ok {
				// A sibling visit removed this key.
				continue
			}
			rc, err := applyOne(ctx, mw, tree.ChildLocation(loc, key), child)
			if err != nil {
				return nil, err
			}
			if rc != child {
				node.Set(key, rc)
			}
		}
	case *tree.Sequence:
		for i, child := range node.Items {
			rc, err := applyOne(ctx, mw, tree.IndexLocation(loc, i), child)
			if err != nil {
				return nil, err
			}
			node.Items[i] = rc
		}
	case *tree.Leaf:
		// No children to recurse into.
	}
	return n, nil
}
