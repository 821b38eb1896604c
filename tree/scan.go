package tree

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/go-git/go-billy/v5"
)

// DefaultIgnore matches dunder-style entries (__pycache__, __MACOSX__, ...)
// that should never become part of the tree.
var DefaultIgnore = regexp.MustCompile(`^__.*__$`)

// Scan builds the initial tree for the directory at root: every subdirectory
// becomes a nested *Mapping, every file an unresolved *Leaf. File contents
// are not read. Entries are keyed by name and visited in lexicographic order,
// so repeated scans of the same directory produce identical trees regardless
// of the underlying listing order.
//
// ignore filters entry names (the pattern should be anchored); nil disables
// filtering. A missing or unreadable root fails with the wrapped filesystem
// error and no tree is built.
func Scan(fs billy.Filesystem, root string, ignore *regexp.Regexp) (*Mapping, error) {
	infos, err := fs.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })

	m := NewMapping()
	for _, info := range infos {
		name := info.Name()
		if ignore != nil && ignore.MatchString(name) {
			continue
		}
		full := fs.Join(root, name)
		if info.IsDir() {
			child, err := Scan(fs, full, ignore)
			if err != nil {
				return nil, err
			}
			m.Set(name, child)
		} else {
			m.Set(name, NewFileLeaf(fs, full))
		}
	}
	return m, nil
}
