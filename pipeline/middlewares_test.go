package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/restree/tree"
)

func apply(t *testing.T, root tree.Node, mw Middleware) tree.Node {
	t.Helper()
	out, err := Apply(context.Background(), root, []Middleware{mw})
	require.NoError(t, err)
	return out
}

func TestStripExtensions(t *testing.T) {
	root := mapping(
		"main.txt", leaf("m"),
		"data.json", leaf("d"),
		"cover.png", leaf("p"),
	)

	out := apply(t, root, StripExtensions(`txt|json`)).(*tree.Mapping)

	assert.Equal(t, []string{"cover.png", "main", "data"}, out.Keys())
	m, _ := out.Get("main")
	assert.Equal(t, "m", m.(*tree.Leaf).Value)
}

func TestStripExtensionsCollisionOverwrites(t *testing.T) {
	root := mapping(
		"main", leaf("bare"),
		"main.txt", leaf("txt"),
	)

	out := apply(t, root, StripExtensions(`txt`)).(*tree.Mapping)

	require.Equal(t, 1, out.Len())
	m, _ := out.Get("main")
	assert.Equal(t, "txt", m.(*tree.Leaf).Value)
}

func TestGroupBy(t *testing.T) {
	root := mapping(
		"speech_0", leaf("zero"),
		"speech_1", leaf("one"),
		"speech_2", leaf("two"),
		"main", leaf("m"),
	)

	out := apply(t, root, GroupBy(`(speech)_(\d)`)).(*tree.Mapping)

	require.Equal(t, []string{"speech", "main"}, out.Keys())

	n, _ := out.Get("speech")
	seq, ok := n.(*tree.Sequence)
	require.True(t, ok)
	require.Len(t, seq.Items, 3)
	assert.Equal(t, "zero", seq.Items[0].(*tree.Leaf).Value)
	assert.Equal(t, "one", seq.Items[1].(*tree.Leaf).Value)
	assert.Equal(t, "two", seq.Items[2].(*tree.Leaf).Value)

	m, _ := out.Get("main")
	assert.Equal(t, "m", m.(*tree.Leaf).Value)
}

func TestGroupByTwoLevels(t *testing.T) {
	root := mapping(
		"grass00", leaf("a"),
		"grass01", leaf("b"),
		"grass10", leaf("c"),
		"grass11", leaf("d"),
	)

	out := apply(t, root, GroupBy(`(grass)(\d)(\d)`)).(*tree.Mapping)

	n, _ := out.Get("grass")
	rows := n.(*tree.Sequence)
	require.Len(t, rows.Items, 2)
	row1 := rows.Items[1].(*tree.Sequence)
	require.Len(t, row1.Items, 2)
	assert.Equal(t, "d", row1.Items[1].(*tree.Leaf).Value)
}

func TestGroupByDuplicateIndexConflicts(t *testing.T) {
	root := mapping(
		"speech_1", leaf("a"),
		"speech_01", leaf("b"),
	)

	_, err := Apply(context.Background(), root, []Middleware{GroupBy(`(speech)_(\d+)`)})
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "<root>.speech[1]", conflict.Location)
	assert.ElementsMatch(t, []string{"speech_1", "speech_01"}, conflict.Keys)
}

func TestGroupByMixedKindsConflict(t *testing.T) {
	root := mapping(
		"tile_0", leaf("a"),
		"tile_top", leaf("b"),
	)

	_, err := Apply(context.Background(), root, []Middleware{GroupBy(`(tile)_(\w+)`)})
	require.Error(t, err)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestGroupByLeavesHoles(t *testing.T) {
	root := mapping(
		"speech_0", leaf("zero"),
		"speech_2", leaf("two"),
	)

	out := apply(t, root, GroupBy(`(speech)_(\d)`)).(*tree.Mapping)

	n, _ := out.Get("speech")
	seq := n.(*tree.Sequence)
	require.Len(t, seq.Items, 3)
	hole, ok := seq.Items[1].(*tree.Leaf)
	require.True(t, ok)
	assert.False(t, hole.Resolved)
	assert.Nil(t, hole.Value)
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "hello_world", NormalizeKey("hello world"))
	assert.Equal(t, "cover_png", NormalizeKey("cover.png"))
	assert.Equal(t, "x", NormalizeKey("__x"))
	assert.Equal(t, "index_2b", NormalizeKey("2b"))
}

func TestNormalizeKeys(t *testing.T) {
	root := mapping(
		"hello world", leaf(1),
		"fine", leaf(2),
	)

	out := apply(t, root, NormalizeKeys()).(*tree.Mapping)
	assert.Equal(t, []string{"hello_world", "fine"}, out.Keys())
}

func TestNormalizeKeysKeepsCollidingOriginal(t *testing.T) {
	root := mapping(
		"a b", leaf(1),
		"a_b", leaf(2),
	)

	out := apply(t, root, NormalizeKeys()).(*tree.Mapping)

	// "a b" would normalize onto the existing "a_b"; it stays as-is so shape
	// inference can reject it instead of one resource silently shadowing the
	// other.
	require.Equal(t, 2, out.Len())
	n, ok := out.Get("a b")
	require.True(t, ok)
	assert.Equal(t, 1, n.(*tree.Leaf).Value)
}
