// Package history is a linear undo/redo stack. Entries store the mutation that
// reverses them and the one that reapplies them, so a replay is applied and
// emitted exactly like a live edit.
package history

import (
	"sync"

	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
)

type Action string

const (
	ActionAdd         Action = "add"
	ActionDelete      Action = "delete"
	ActionMove        Action = "move"
	ActionResize      Action = "resize"
	ActionChangeColor Action = "changeColor"
	ActionRotate      Action = "rotate"
)

type Entry struct {
	Action   Action
	ID       string
	Previous protocol.Mutation
	Current  protocol.Mutation
}

// Applier applies a mutation locally. *replica.Store satisfies it.
type Applier interface {
	Apply(m protocol.Mutation) bool
}

// Emitter sends a mutation to the relay.
type Emitter interface {
	Emit(m protocol.Mutation) error
}

type EmitterFunc func(m protocol.Mutation) error

func (f EmitterFunc) Emit(m protocol.Mutation) error {
	return f(m)
}

type Stack struct {
	store   Applier
	emitter Emitter

	mu   sync.Mutex
	undo []Entry
	redo []Entry
}

func New(store Applier, emitter Emitter) *Stack {
	return &Stack{store: store, emitter: emitter}
}

// Record pushes e and discards anything that could have been redone.
func (s *Stack) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = append(s.undo, e)
	s.redo = nil
}

// Undo reverts the latest entry. ok is false when there was nothing to undo;
// err is the emit error, in which case the local store has still been updated.
func (s *Stack) Undo() (e Entry, ok bool, err error) {
	s.mu.Lock()
	if len(s.undo) == 0 {
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	e = s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, e)
	s.mu.Unlock()
	return e, true, s.replay(e.Previous)
}

// Redo reapplies the latest undone entry.
func (s *Stack) Redo() (e Entry, ok bool, err error) {
	s.mu.Lock()
	if len(s.redo) == 0 {
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	e = s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, e)
	s.mu.Unlock()
	return e, true, s.replay(e.Current)
}

// replay always emits, even when the local copy is already gone, so that the
// relay is the one deciding whether the target still exists.
func (s *Stack) replay(m protocol.Mutation) error {
	s.store.Apply(m)
	return s.emitter.Emit(m)
}

func (s *Stack) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undo = nil
	s.redo = nil
}

// Forget drops every entry targeting id from both lists and returns how many
// were dropped.
func (s *Stack) Forget(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	s.undo, n = without(s.undo, id)
	var m int
	s.redo, m = without(s.redo, id)
	return n + m
}

func without(entries []Entry, id string) ([]Entry, int) {
	kept := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	return kept, len(entries) - len(kept)
}

// Depth returns the length of the undo and redo lists.
func (s *Stack) Depth() (undo, redo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.undo), len(s.redo)
}

func Added(r rect.Rectangle) Entry {
	return Entry{Action: ActionAdd, ID: r.ID, Previous: protocol.Delete{ID: r.ID}, Current: protocol.Add{Rectangle: r}}
}

func Deleted(r rect.Rectangle) Entry {
	return Entry{Action: ActionDelete, ID: r.ID, Previous: protocol.Add{Rectangle: r}, Current: protocol.Delete{ID: r.ID}}
}

func Moved(before rect.Rectangle, x, y float64) Entry {
	return Entry{
		Action:   ActionMove,
		ID:       before.ID,
		Previous: protocol.Move{ID: before.ID, X: before.X, Y: before.Y, AddedAtOffset: before.AddedAtOffset},
		Current:  protocol.Move{ID: before.ID, X: x, Y: y},
	}
}

func Resized(before rect.Rectangle, width, height, x, y float64) Entry {
	return Entry{
		Action:   ActionResize,
		ID:       before.ID,
		Previous: protocol.Resize{ID: before.ID, Width: before.Width, Height: before.Height, X: before.X, Y: before.Y},
		Current:  protocol.Resize{ID: before.ID, Width: width, Height: height, X: x, Y: y},
	}
}

func Recolored(before rect.Rectangle, fill rect.Color) Entry {
	return Entry{
		Action:   ActionChangeColor,
		ID:       before.ID,
		Previous: protocol.ChangeColor{ID: before.ID, Fill: before.Fill},
		Current:  protocol.ChangeColor{ID: before.ID, Fill: fill},
	}
}

func Rotated(before rect.Rectangle, rotation float64) Entry {
	return Entry{
		Action:   ActionRotate,
		ID:       before.ID,
		Previous: protocol.Rotate{ID: before.ID, Rotation: before.Rotation},
		Current:  protocol.Rotate{ID: before.ID, Rotation: rotation},
	}
}
