package pipeline

import (
	"context"
	"regexp"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/agentic-research/restree/tree"
)

var splitExtension = regexp.MustCompile(`^(.+)\.([^.]+)$`)

// StripExtensions returns a middleware that removes matching extensions from
// mapping keys, so "intro.txt" is addressed as "intro". extensions is an
// alternation of extension names without dots, e.g. `txt|json`. When the
// stripped name is already taken the existing entry is overwritten with a
// warning; stripping is a lossy convenience, not a merge.
func StripExtensions(extensions string) Middleware {
	extRe := regexp.MustCompile(`^(?:` + extensions + `)$`)
	return Middleware{
		Name: "strip_extensions",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			m, ok := n.(*tree.Mapping)
			if !ok {
				return nil, nil
			}
			for _, key := range m.Keys() {
				parts := splitExtension.FindStringSubmatch(key)
				if parts == nil {
					continue
				}
				name, ext := parts[1], parts[2]
				if !extRe.MatchString(ext) {
					continue
				}
				if _, taken := m.Get(name); taken {
					log.FromContext(ctx).Warn("stripped key collides with existing entry, overwriting",
						"location", loc, "key", key, "name", name)
				}
				child, _ := m.Get(key)
				m.Delete(key)
				m.Set(name, child)
			}
			return nil, nil
		},
	}
}

// groupKey is one captured path segment: a field name or a sequence index.
type groupKey struct {
	name  string
	index int
	isInt bool
}

func toGroupKey(capture string) groupKey {
	if i, err := strconv.Atoi(capture); err == nil {
		return groupKey{index: i, isInt: true}
	}
	return groupKey{name: capture}
}

// groupEntry tracks a matched key's remaining capture path, its node, and the
// original key for error reporting.
type groupEntry struct {
	path   []groupKey
	node   tree.Node
	origin string
}

// GroupBy returns a middleware that collects sibling keys matching pattern
// into nested structure. The pattern's first capture is the new key; integer
// captures build sequences ordered by index, string captures build nested
// mappings. Keys "speech_0, speech_1, speech_2" with pattern `(speech)_(\d)`
// collapse into one "speech" key holding a three-element sequence. Keys not
// matching the pattern are untouched. Two keys grouped onto the same position
// fail with ConflictError, as does mixing integer and string captures at one
// level.
func GroupBy(pattern string) Middleware {
	re := regexp.MustCompile(`^(?:` + pattern + `)$`)
	return Middleware{
		Name: "group_by",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			m, ok := n.(*tree.Mapping)
			if !ok {
				return nil, nil
			}

			var entries []groupEntry
			var rest []string
			for _, key := range m.Keys() {
				sub := re.FindStringSubmatch(key)
				if sub == nil {
					rest = append(rest, key)
					continue
				}
				path := make([]groupKey, 0, len(sub)-1)
				for _, capture := range sub[1:] {
					path = append(path, toGroupKey(capture))
				}
				child, _ := m.Get(key)
				entries = append(entries, groupEntry{path: path, node: child, origin: key})
			}
			if len(entries) == 0 {
				return nil, nil
			}
			log.FromContext(ctx).Info("grouping entries", "location", loc, "count", len(entries), "pattern", pattern)

			grouped, err := reduce(loc, entries)
			if err != nil {
				return nil, err
			}
			gm, ok := grouped.(*tree.Mapping)
			if !ok {
				return nil, &ConflictError{
					Location: loc,
					Keys:     origins(entries),
					Reason:   "pattern's first capture must be a non-numeric group name",
				}
			}

			out := tree.NewMapping()
			for _, key := range gm.Keys() {
				child, _ := gm.Get(key)
				out.Set(key, child)
			}
			for _, key := range rest {
				child, _ := m.Get(key)
				out.Set(key, child)
			}
			return out, nil
		},
	}
}

func origins(entries []groupEntry) []string {
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.origin
	}
	return keys
}

// reduce folds entries sharing a capture-path prefix into a subtree: string
// segments nest mappings (first-occurrence order), integer segments build a
// sequence sized to the highest index. Unfilled sequence slots become empty
// unresolved leaves.
func reduce(loc string, entries []groupEntry) (tree.Node, error) {
	if len(entries[0].path) == 0 {
		if len(entries) > 1 {
			return nil, &ConflictError{Location: loc, Keys: origins(entries), Reason: "multiple entries for one position"}
		}
		return entries[0].node, nil
	}

	if entries[0].path[0].isInt {
		return reduceSequence(loc, entries)
	}
	return reduceMapping(loc, entries)
}

func reduceMapping(loc string, entries []groupEntry) (tree.Node, error) {
	var order []string
	buckets := make(map[string][]groupEntry)
	for _, e := range entries {
		head := e.path[0]
		if head.isInt {
			return nil, &ConflictError{Location: loc, Keys: origins(entries), Reason: "mixed integer and string captures at one level"}
		}
		if _, seen := buckets[head.name]; !seen {
			order = append(order, head.name)
		}
		buckets[head.name] = append(buckets[head.name], groupEntry{path: e.path[1:], node: e.node, origin: e.origin})
	}

	m := tree.NewMapping()
	for _, name := range order {
		child, err := reduce(tree.ChildLocation(loc, name), buckets[name])
		if err != nil {
			return nil, err
		}
		m.Set(name, child)
	}
	return m, nil
}

func reduceSequence(loc string, entries []groupEntry) (tree.Node, error) {
	high := -1
	buckets := make(map[int][]groupEntry)
	for _, e := range entries {
		head := e.path[0]
		if !head.isInt {
			return nil, &ConflictError{Location: loc, Keys: origins(entries), Reason: "mixed integer and string captures at one level"}
		}
		if head.index > high {
			high = head.index
		}
		buckets[head.index] = append(buckets[head.index], groupEntry{path: e.path[1:], node: e.node, origin: e.origin})
	}

	seq := &tree.Sequence{Items: make([]tree.Node, high+1)}
	for i := range seq.Items {
		bucket, filled := buckets[i]
		if !filled {
			// Hole in the index space; surfaces later as an unresolved leaf.
			seq.Items[i] = &tree.Leaf{}
			continue
		}
		child, err := reduce(tree.IndexLocation(loc, i), bucket)
		if err != nil {
			return nil, err
		}
		seq.Items[i] = child
	}
	return seq, nil
}

var (
	leadingUnderscores = regexp.MustCompile(`^_+`)
	invalidIdentChars  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	leadingDigit       = regexp.MustCompile(`^[0-9]`)
)

// NormalizeKey rewrites a single key toward a valid identifier: leading
// underscores are dropped, runs of other invalid characters become
// underscores, and a leading digit gains an "index_" prefix.
func NormalizeKey(key string) string {
	s := leadingUnderscores.ReplaceAllString(key, "")
	s = invalidIdentChars.ReplaceAllString(s, "_")
	if leadingDigit.MatchString(s) {
		s = "index_" + s
	}
	return s
}

// NormalizeKeys returns a middleware that applies NormalizeKey to every
// mapping key. When a normalized key would collide with a different existing
// entry the original key is left untouched with a warning; shape inference
// then rejects it with a naming error instead of silently merging two
// resources.
func NormalizeKeys() Middleware {
	return Middleware{
		Name: "normalize_keys",
		Transform: func(ctx context.Context, loc string, n tree.Node) (tree.Node, error) {
			m, ok := n.(*tree.Mapping)
			if !ok {
				return nil, nil
			}
			logger := log.FromContext(ctx)
			out := tree.NewMapping()
			changed := false
			for _, key := range m.Keys() {
				child, _ := m.Get(key)
				name := NormalizeKey(key)
				if name == key {
					out.Set(key, child)
					continue
				}
				if _, taken := out.Get(name); taken || hasLaterKey(m, key, name) {
					logger.Warn("normalized key collides with existing entry, keeping original",
						"location", loc, "key", key, "name", name)
					out.Set(key, child)
					continue
				}
				logger.Debug("renamed key", "location", loc,
					"from", key, "to", name)
				out.Set(name, child)
				changed = true
			}
			if !changed {
				return nil, nil
			}
			return out, nil
		},
	}
}

// hasLaterKey reports whether a key equal to name appears in m after key, in
// which case renaming key to name would swallow it.
func hasLaterKey(m *tree.Mapping, key, name string) bool {
	seen := false
	for _, k := range m.Keys() {
		if k == key {
			seen = true
			continue
		}
		if seen && k == name {
			return true
		}
	}
	return false
}
