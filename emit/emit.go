// Package emit renders an inferred shape as a Go type declaration and writes
// it out with an integrity marker, so later runs can tell whether the
// generated file is stale without re-reading the resource directory's
// contents.
package emit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"mvdan.cc/gofumpt/format"

	"github.com/agentic-research/restree/shape"
)

// markerPrefix heads the comment line carrying the integrity marker in a
// generated file.
const markerPrefix = "// restree:integrity "

// Rendered is the deterministic part of a generated file: the formatted
// package clause, preamble and type declaration, plus the content-derived
// marker. Timestamps live only in the written header so that an unchanged
// tree renders to an unchanged marker.
type Rendered struct {
	Body   []byte
	Marker string
}

// Render formats the shape as a type declaration in package pkg, preceded by
// the caller-supplied preamble (typically import statements for custom leaf
// types) verbatim. The result is gofumpt-formatted.
func Render(s shape.Shape, pkg, typeName, preamble string) (*Rendered, error) {
	var b bytes.Buffer
	fmt.Fprintf(&b, "package %s\n\n", pkg)
	if preamble != "" {
		b.WriteString(preamble)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "type %s %s\n", typeName, typeExpr(s))

	formatted, err := format.Source(b.Bytes(), format.Options{})
	if err != nil {
		return nil, fmt.Errorf("format generated declaration: %w", err)
	}
	return &Rendered{Body: formatted, Marker: Marker(formatted)}, nil
}

// typeExpr renders a shape as a Go type expression. Records become nested
// struct types; tuples become [N]T arrays when every position shares a type,
// positional-field structs otherwise.
func typeExpr(s shape.Shape) string {
	switch s := s.(type) {
	case *shape.Record:
		if len(s.Fields) == 0 {
			return "struct{}"
		}
		var b strings.Builder
		b.WriteString("struct {\n")
		for _, f := range s.Fields {
			fmt.Fprintf(&b, "%s %s\n", f.Name, typeExpr(f.Shape))
		}
		b.WriteString("}")
		return b.String()
	case *shape.Tuple:
		if len(s.Elems) == 0 {
			return "[0]any"
		}
		elems := make([]string, len(s.Elems))
		uniform := true
		for i, e := range s.Elems {
			elems[i] = typeExpr(e)
			if elems[i] != elems[0] {
				uniform = false
			}
		}
		if uniform {
			return fmt.Sprintf("[%d]%s", len(elems), elems[0])
		}
		var b strings.Builder
		b.WriteString("struct {\n")
		for i, e := range elems {
			fmt.Fprintf(&b, "E%d %s\n", i, e)
		}
		b.WriteString("}")
		return b.String()
	case *shape.Leaf:
		return s.Type
	}
	panic("emit: unknown shape kind")
}

// Marker derives the integrity marker for a rendered body. It is a pure
// function of the content; deciding whether to rewrite based on it is the
// caller's concern.
func Marker(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// ReadMarker returns the marker stored in an existing generated file, or ""
// when the file is missing or carries none.
func ReadMarker(fs billy.Filesystem, path string) string {
	b, err := util.ReadFile(fs, path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(b), "\n") {
		if strings.HasPrefix(line, markerPrefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, markerPrefix))
		}
		if !strings.HasPrefix(line, "//") {
			break
		}
	}
	return ""
}

// Stale reports whether the file at path must be regenerated for r: a missing
// file or a marker mismatch means stale, a matching marker means the existing
// file already holds this content.
func Stale(fs billy.Filesystem, path string, r *Rendered) bool {
	return ReadMarker(fs, path) != r.Marker
}

// Write writes the generated file atomically: the header (do-not-edit
// warning, marker, timestamp) and body go to a temp file in the destination
// directory, which is renamed over path only once fully written. A failed run
// therefore never leaves a partial destination file.
func Write(fs billy.Filesystem, path string, r *Rendered) error {
	var b bytes.Buffer
	b.WriteString("// Code generated by restree. DO NOT EDIT.\n")
	b.WriteString(markerPrefix + r.Marker + "\n")
	fmt.Fprintf(&b, "// generated at %s\n\n", time.Now().Format(time.RFC3339))
	b.Write(r.Body)

	dir := filepath.Dir(path)
	tmp, err := fs.TempFile(dir, ".restree-")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(b.Bytes()); err != nil {
		tmp.Close()
		fs.Remove(name)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(name)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := fs.Rename(name, path); err != nil {
		fs.Remove(name)
		return fmt.Errorf("rename %s to %s: %w", name, path, err)
	}
	return nil
}
