package shape

import (
	"github.com/agentic-research/restree/tree"
)

// Infer derives the type shape of a final tree. It is pure: the tree is read,
// never modified. Keys that cannot become exported Go field names, or that
// collide with a sibling after export, fail with NamingError.
func Infer(root tree.Node) (Shape, error) {
	return infer(tree.RootLocation, root)
}

func infer(loc string, n tree.Node) (Shape, error) {
	switch node := n.(type) {
	case *tree.Mapping:
		rec := &Record{Fields: make([]Field, 0, node.Len())}
		byName := make(map[string]string, node.Len())
		for _, key := range node.Keys() {
			name, ok := FieldName(key)
			if !ok {
				return nil, &NamingError{Location: loc, Key: key}
			}
			if prev, dup := byName[name]; dup {
				return nil, &NamingError{Location: loc, Key: key, Conflict: prev}
			}
			byName[name] = key

			child, _ := node.Get(key)
			cs, err := infer(tree.ChildLocation(loc, key), child)
			if err != nil {
				return nil, err
			}
			rec.Fields = append(rec.Fields, Field{Name: name, Key: key, Shape: cs})
		}
		return rec, nil

	case *tree.Sequence:
		tup := &Tuple{Elems: make([]Shape, len(node.Items))}
		for i, child := range node.Items {
			cs, err := infer(tree.IndexLocation(loc, i), child)
			if err != nil {
				return nil, err
			}
			tup.Elems[i] = cs
		}
		return tup, nil

	case *tree.Leaf:
		if !node.Resolved {
			return &Leaf{Type: "any", Opaque: true}, nil
		}
		return &Leaf{Type: GoType(node.Value)}, nil
	}
	// The Node interface is sealed; anything else is a programming error.
	panic("shape: unknown node kind")
}
