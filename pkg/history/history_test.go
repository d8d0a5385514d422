package history

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
	"github.com/astromechza/rectangle-sync/pkg/replica"
)

type recorder struct {
	sent []protocol.Mutation
	err  error
}

func (r *recorder) Emit(m protocol.Mutation) error {
	r.sent = append(r.sent, m)
	return r.err
}

func r1() rect.Rectangle {
	return rect.Rectangle{ID: "r1", X: 100, Y: 100, Width: 50, Height: 50, Fill: rect.White}
}

func setup(seed ...rect.Rectangle) (*replica.Store, *recorder, *Stack) {
	store := replica.New(seed...)
	rec := &recorder{}
	return store, rec, New(store, rec)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	store, rec, stack := setup(r1())
	before, _ := store.Get("r1")

	store.Move("r1", 150, 120)
	stack.Record(Moved(before, 150, 120))
	after, _ := store.Get("r1")

	e, ok, err := stack.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ActionMove, e.Action)
	got, _ := store.Get("r1")
	assert.Equal(t, before, got)

	_, ok, err = stack.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = store.Get("r1")
	assert.Equal(t, after, got)

	assert.Equal(t, []protocol.Mutation{
		protocol.Move{ID: "r1", X: 100, Y: 100},
		protocol.Move{ID: "r1", X: 150, Y: 120},
	}, rec.sent)
}

func TestEveryActionReverses(t *testing.T) {
	base := r1()
	for name, tc := range map[string]struct {
		seed  []rect.Rectangle
		do    func(s *replica.Store)
		entry Entry
	}{
		"add": {
			do:    func(s *replica.Store) { s.Add(base) },
			entry: Added(base),
		},
		"delete": {
			seed:  []rect.Rectangle{base},
			do:    func(s *replica.Store) { s.Delete("r1") },
			entry: Deleted(base),
		},
		"resize": {
			seed:  []rect.Rectangle{base},
			do:    func(s *replica.Store) { s.Resize("r1", 10, 20, 1, 2) },
			entry: Resized(base, 10, 20, 1, 2),
		},
		"recolor": {
			seed:  []rect.Rectangle{base},
			do:    func(s *replica.Store) { s.Recolor("r1", rect.Green) },
			entry: Recolored(base, rect.Green),
		},
		"rotate": {
			seed:  []rect.Rectangle{base},
			do:    func(s *replica.Store) { s.Rotate("r1", 15) },
			entry: Rotated(base, 15),
		},
	} {
		store, _, stack := setup(tc.seed...)
		initial := store.All()
		tc.do(store)
		done := store.All()
		stack.Record(tc.entry)

		_, ok, err := stack.Undo()
		require.NoError(t, err, name)
		require.True(t, ok, name)
		assert.Equal(t, initial, store.All(), name)

		_, ok, err = stack.Redo()
		require.NoError(t, err, name)
		require.True(t, ok, name)
		assert.Equal(t, done, store.All(), name)
	}
}

func TestEmptyListsAreNoops(t *testing.T) {
	store, rec, stack := setup(r1())
	before := store.All()

	_, ok, err := stack.Undo()
	assert.False(t, ok)
	assert.NoError(t, err)
	_, ok, err = stack.Redo()
	assert.False(t, ok)
	assert.NoError(t, err)

	assert.Equal(t, before, store.All())
	assert.Empty(t, rec.sent)
}

func TestRecordClearsRedo(t *testing.T) {
	_, _, stack := setup(r1())
	stack.Record(Rotated(r1(), 15))
	_, _, _ = stack.Undo()
	undo, redo := stack.Depth()
	assert.Equal(t, 0, undo)
	assert.Equal(t, 1, redo)

	stack.Record(Recolored(r1(), rect.Red))
	undo, redo = stack.Depth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)
}

func TestReplayIsEmittedEvenWhenLocalCopyIsGone(t *testing.T) {
	store, rec, stack := setup(r1())
	stack.Record(Moved(r1(), 150, 120))
	store.Delete("r1")

	_, ok, err := stack.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, store.Has("r1"))
	assert.Equal(t, []protocol.Mutation{protocol.Move{ID: "r1", X: 100, Y: 100}}, rec.sent)
}

func TestEmitErrorStillMovesEntry(t *testing.T) {
	store, rec, stack := setup(r1())
	rec.err = errors.New("offline")
	stack.Record(Rotated(r1(), 90))
	store.Rotate("r1", 90)

	_, ok, err := stack.Undo()
	assert.True(t, ok)
	assert.Error(t, err)
	got, _ := store.Get("r1")
	assert.Equal(t, 0.0, got.Rotation)
	undo, redo := stack.Depth()
	assert.Equal(t, 0, undo)
	assert.Equal(t, 1, redo)
}

func TestForgetDropsEntriesForTarget(t *testing.T) {
	other := r1()
	other.ID = "r2"
	_, _, stack := setup(r1(), other)
	stack.Record(Rotated(r1(), 15))
	stack.Record(Rotated(other, 15))
	stack.Record(Recolored(r1(), rect.Red))
	_, _, _ = stack.Undo()

	assert.Equal(t, 2, stack.Forget("r1"))
	undo, redo := stack.Depth()
	assert.Equal(t, 1, undo)
	assert.Equal(t, 0, redo)

	e, ok, _ := stack.Undo()
	require.True(t, ok)
	assert.Equal(t, "r2", e.ID)
}

func TestReset(t *testing.T) {
	_, _, stack := setup(r1())
	stack.Record(Rotated(r1(), 15))
	stack.Record(Rotated(r1(), 30))
	_, _, _ = stack.Undo()
	stack.Reset()
	undo, redo := stack.Depth()
	assert.Zero(t, undo)
	assert.Zero(t, redo)
}

func TestUndoMoveRestoresAutoPlacement(t *testing.T) {
	placed := r1()
	placed.AddedAtOffset = true
	store, rec, stack := setup(placed)

	store.Move("r1", 150, 120)
	stack.Record(Moved(placed, 150, 120))
	got, _ := store.Get("r1")
	require.False(t, got.AddedAtOffset)

	_, ok, err := stack.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = store.Get("r1")
	assert.Equal(t, placed, got)
	assert.Equal(t, []protocol.Mutation{protocol.Move{ID: "r1", X: 100, Y: 100, AddedAtOffset: true}}, rec.sent)

	_, ok, err = stack.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	got, _ = store.Get("r1")
	assert.False(t, got.AddedAtOffset)
}
