package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/restree/tree"
)

func leaf(v any) *tree.Leaf {
	return &tree.Leaf{Value: v, Resolved: true}
}

func mapping(pairs ...any) *tree.Mapping {
	m := tree.NewMapping()
	for i := 0; i < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1].(tree.Node))
	}
	return m
}

func TestApplyReplaceRecursesIntoReplacement(t *testing.T) {
	// One middleware with two rules: a mapping holding "seed" is replaced by
	// new structure, and the new structure's leaves are ripened. Both rules
	// must fire on the same pass for the replacement's children.
	grow := Middleware{
		Name: "grow",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			switch node := n.(type) {
			case *tree.Mapping:
				if _, ok := node.Get("seed"); ok {
					return mapping("sprout", leaf("green")), nil
				}
			case *tree.Leaf:
				if node.Value == "green" {
					return leaf("ripe"), nil
				}
			}
			return nil, nil
		},
	}

	root := mapping("plot", mapping("seed", leaf("seed")))
	out, err := Apply(context.Background(), root, []Middleware{grow})
	require.NoError(t, err)

	m := out.(*tree.Mapping)
	plot, ok := m.Get("plot")
	require.True(t, ok)
	sprout, ok := plot.(*tree.Mapping).Get("sprout")
	require.True(t, ok)
	assert.Equal(t, "ripe", sprout.(*tree.Leaf).Value)
}

func TestApplyMutateInPlace(t *testing.T) {
	upper := Middleware{
		Name: "upper",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			m, ok := n.(*tree.Mapping)
			if !ok {
				return nil, nil
			}
			for _, key := range m.Keys() {
				child, _ := m.Get(key)
				m.Delete(key)
				m.Set(strings.ToUpper(key), child)
			}
			return nil, nil
		},
	}

	root := mapping("a", leaf(1), "b", mapping("c", leaf(2)))
	out, err := Apply(context.Background(), root, []Middleware{upper})
	require.NoError(t, err)

	m := out.(*tree.Mapping)
	assert.Equal(t, []string{"A", "B"}, m.Keys())
	b, _ := m.Get("B")
	assert.Equal(t, []string{"C"}, b.(*tree.Mapping).Keys())
}

func TestApplyKindChange(t *testing.T) {
	// Replacing a branch with a leaf in situ is legal.
	flatten := Middleware{
		Name: "flatten",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			if m, ok := n.(*tree.Mapping); ok && loc != tree.RootLocation {
				return leaf(m.Len()), nil
			}
			return nil, nil
		},
	}

	root := mapping("sub", mapping("x", leaf(1), "y", leaf(2)))
	out, err := Apply(context.Background(), root, []Middleware{flatten})
	require.NoError(t, err)

	sub, _ := out.(*tree.Mapping).Get("sub")
	assert.Equal(t, 2, sub.(*tree.Leaf).Value)
}

func TestApplySequencePositions(t *testing.T) {
	bump := Middleware{
		Name: "bump",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			if l, ok := n.(*tree.Leaf); ok {
				if i, ok := l.Value.(int); ok {
					return leaf(i + 1), nil
				}
			}
			return nil, nil
		},
	}

	root := mapping("seq", &tree.Sequence{Items: []tree.Node{leaf(0), leaf(1)}})
	out, err := Apply(context.Background(), root, []Middleware{bump})
	require.NoError(t, err)

	seq, _ := out.(*tree.Mapping).Get("seq")
	items := seq.(*tree.Sequence).Items
	assert.Equal(t, 1, items[0].(*tree.Leaf).Value)
	assert.Equal(t, 2, items[1].(*tree.Leaf).Value)
}

func TestApplyErrorNamesMiddlewareAndLocation(t *testing.T) {
	boom := Middleware{
		Name: "boom",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			if _, ok := n.(*tree.Leaf); ok {
				return nil, errors.New("kaput")
			}
			return nil, nil
		},
	}

	root := mapping("inner", mapping("x", leaf(1)))
	_, err := Apply(context.Background(), root, []Middleware{boom})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "middleware boom")
	assert.Contains(t, err.Error(), "<root>.inner.x")
}

func TestApplyMiddlewareOrder(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return Middleware{
			Name: name,
			Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
				if loc == tree.RootLocation {
					order = append(order, name)
				}
				return nil, nil
			},
		}
	}

	_, err := Apply(context.Background(), mapping(), []Middleware{record("first"), record("second")})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)
}
