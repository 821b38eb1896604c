// Package shape projects a final resource tree into a nominal type shape:
// mappings become records with named fields, sequences become fixed-length
// tuples, and leaves carry the static Go type of their resolved value. The
// shape is built once and consumed only by the emitter.
package shape

import (
	"fmt"
	"reflect"
	"strings"
)

// Shape is a recursive type description mirroring the tree. Exactly three
// implementations exist: *Record, *Tuple and *Leaf.
type Shape interface {
	shape()
}

// Record describes a mapping: one field per key, in key order.
type Record struct {
	Fields []Field
}

func (*Record) shape() {}

// Field pairs an exported Go field name with the tree key it came from.
type Field struct {
	Name  string
	Key   string
	Shape Shape
}

// Tuple describes a sequence: a fixed number of independently typed
// positions.
type Tuple struct {
	Elems []Shape
}

func (*Tuple) shape() {}

// Leaf carries the Go type expression of a resolved value. Opaque marks a
// leaf that no loader claimed; its type degrades to any.
type Leaf struct {
	Type   string
	Opaque bool
}

func (*Leaf) shape() {}

// NamingError reports a tree key that cannot be projected into a valid
// exported Go identifier, or one that collides with a sibling after
// projection.
type NamingError struct {
	Location string
	Key      string
	Conflict string // sibling key projecting to the same field name, if any
}

func (e *NamingError) Error() string {
	if e.Conflict != "" {
		return fmt.Sprintf("key %q at %s projects to the same field as %q", e.Key, e.Location, e.Conflict)
	}
	return fmt.Sprintf("key %q at %s cannot be projected into a Go identifier", e.Key, e.Location)
}

// FieldName projects a tree key into an exported Go field name. The key must
// already be identifier-shaped (the normalize-keys middleware takes care of
// most inputs); only the first rune is adjusted for export.
func FieldName(key string) (string, bool) {
	if !identifierShaped(key) {
		return "", false
	}
	return strings.ToUpper(key[:1]) + key[1:], true
}

func identifierShaped(key string) bool {
	if key == "" {
		return false
	}
	for i, r := range key {
		switch {
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case r == '_' || r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// GoType returns the Go type expression for a runtime value, with the empty
// interface spelled as any. A nil value has no type to name and degrades to
// any.
func GoType(v any) string {
	if v == nil {
		return "any"
	}
	t := reflect.TypeOf(v).String()
	return strings.ReplaceAll(t, "interface {}", "any")
}
