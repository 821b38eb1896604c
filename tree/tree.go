// Package tree defines the in-memory resource tree: an ordered recursive
// structure mirroring a directory hierarchy. Directories become mappings with
// named children, grouped entries become fixed-order sequences, and files
// become leaves that start out as unresolved file handles and end up holding
// whatever value the loader chain settles on.
package tree

import (
	"fmt"

	"github.com/go-git/go-billy/v5"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Node is one position in the resource tree. Exactly three implementations
// exist: *Mapping, *Sequence and *Leaf. The tree is finite and acyclic;
// transforms that introduce a cycle will hang traversal.
type Node interface {
	node()
}

// FileRef is the unresolved handle a scanned file leaf starts with. It keeps
// the filesystem it was found on so loaders can read content later without
// caring whether the tree came from disk or from a memory fixture.
type FileRef struct {
	FS   billy.Filesystem
	Path string
}

func (r FileRef) String() string { return r.Path }

// Leaf holds either an unresolved FileRef or the value a loader produced for
// it. Resolved flips once any loader claims the leaf.
type Leaf struct {
	Value    any
	Resolved bool
}

func (*Leaf) node() {}

// NewFileLeaf returns an unresolved leaf for a file on fs.
func NewFileLeaf(fs billy.Filesystem, path string) *Leaf {
	return &Leaf{Value: FileRef{FS: fs, Path: path}}
}

// Ref returns the leaf's file handle, if it still holds one.
func (l *Leaf) Ref() (FileRef, bool) {
	ref, ok := l.Value.(FileRef)
	return ref, ok
}

// Mapping is an ordered string-to-node mapping. Key order is insertion order
// and is the order fields appear in the generated declaration, so it must be
// deterministic for a given input.
type Mapping struct {
	om *orderedmap.OrderedMap[string, Node]
}

func (*Mapping) node() {}

func NewMapping() *Mapping {
	return &Mapping{om: orderedmap.New[string, Node]()}
}

// Set inserts or replaces the child for key, keeping the key's existing
// position when it was already present.
func (m *Mapping) Set(key string, child Node) {
	m.om.Set(key, child)
}

func (m *Mapping) Get(key string) (Node, bool) {
	return m.om.Get(key)
}

// Delete removes key and reports whether it was present.
func (m *Mapping) Delete(key string) bool {
	_, ok := m.om.Delete(key)
	return ok
}

func (m *Mapping) Len() int {
	return m.om.Len()
}

// Keys returns the mapping's keys in order. The slice is a copy; deleting or
// inserting while ranging over it is safe.
func (m *Mapping) Keys() []string {
	keys := make([]string, 0, m.om.Len())
	for pair := m.om.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Sequence is an ordered, index-addressed group of nodes, typically produced
// by a grouping middleware. Positions are fixed once created; a nil-valued
// slot is represented by an empty unresolved leaf, never by a nil Node.
type Sequence struct {
	Items []Node
}

func (*Sequence) node() {}

// RootLocation is the sentinel location string for the tree root.
const RootLocation = "<root>"

// ChildLocation names a mapping child's position for logging and errors.
func ChildLocation(parent, key string) string {
	return parent + "." + key
}

// IndexLocation names a sequence slot's position.
func IndexLocation(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}
