package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/canvas/internal/document"
)

func sceneOf(ids ...string) document.Scene {
	scene := document.Scene{}
	for _, id := range ids {
		scene = append(scene, document.Element{ID: id, Width: 1, Height: 1, Style: document.Style{Opacity: 1}, Data: document.RectData{}})
	}
	return scene
}

func TestHistoryRecordUndoRedo(t *testing.T) {
	h := NewHistory(sceneOf(), 0)
	h.Record(sceneOf("a"))
	h.Record(sceneOf("a", "b"))

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 2, h.Cursor())

	scene, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, scene.IDs())

	scene, ok = h.Redo()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, scene.IDs())

	_, ok = h.Redo()
	assert.False(t, ok)
}

func TestHistoryRecordTruncatesRedo(t *testing.T) {
	h := NewHistory(sceneOf(), 0)
	h.Record(sceneOf("a"))
	h.Record(sceneOf("a", "b"))
	h.Undo()
	h.Undo()

	h.Record(sceneOf("c"))

	assert.Equal(t, 2, h.Len())
	assert.False(t, h.CanRedo())
	assert.Equal(t, []string{"c"}, h.Current().IDs())
}

func TestHistoryLimitDropsOldest(t *testing.T) {
	h := NewHistory(sceneOf(), 2)
	h.Record(sceneOf("a"))
	h.Record(sceneOf("a", "b"))

	assert.Equal(t, 2, h.Len())
	scene, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, []string{"a"}, scene.IDs())
	_, ok = h.Undo()
	assert.False(t, ok)
}

func TestHistoryEntriesAreCopies(t *testing.T) {
	live := sceneOf("a")
	h := NewHistory(sceneOf(), 0)
	h.Record(live)
	live[0].X = 42

	assert.Equal(t, 0.0, h.Current()[0].X)

	got := h.Current()
	got[0].X = 7
	assert.Equal(t, 0.0, h.Current()[0].X)
}
