// Package replica is the client side mirror of the canonical registry.
//
// Every primitive applies synchronously and is idempotent: creating an id that
// already exists, or touching an id that does not, changes nothing and emits no
// change event. That is what makes the relay's echo of a client's own edit
// harmless.
package replica

import (
	"sync"

	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// Change describes one committed mutation. ID is empty for collection-wide
// changes (init, clear).
type Change struct {
	Event protocol.Event
	ID    string
}

type Observer func(Change)

type subscription struct {
	id int
	fn Observer
}

type Store struct {
	mu  sync.RWMutex
	set *rect.Set

	obsMu     sync.Mutex
	observers []subscription
	nextObs   int
}

func New(seed ...rect.Rectangle) *Store {
	return &Store{set: rect.NewSet(seed...)}
}

// Subscribe registers fn to run after every committed change, on the goroutine
// that made it. The returned func removes the subscription.
func (s *Store) Subscribe(fn Observer) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObs
	s.nextObs++
	s.observers = append(s.observers, subscription{id: id, fn: fn})
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(c Change) {
	s.obsMu.Lock()
	subs := make([]subscription, len(s.observers))
	copy(subs, s.observers)
	s.obsMu.Unlock()
	for _, sub := range subs {
		sub.fn(c)
	}
}

// mutate runs fn under the write lock and notifies observers if it reports a
// change.
func (s *Store) mutate(c Change, fn func(set *rect.Set) bool) bool {
	s.mu.Lock()
	changed := fn(s.set)
	s.mu.Unlock()
	if changed {
		s.notify(c)
	}
	return changed
}

func (s *Store) Add(r rect.Rectangle) bool {
	return s.mutate(Change{Event: protocol.EventAdd, ID: r.ID}, func(set *rect.Set) bool {
		return set.Insert(r)
	})
}

// Update overwrites the given fields of id.
func (s *Store) Update(id string, p rect.Patch) bool {
	return s.update(protocol.EventResize, id, p)
}

func (s *Store) update(e protocol.Event, id string, p rect.Patch) bool {
	return s.mutate(Change{Event: e, ID: id}, func(set *rect.Set) bool {
		return set.Update(id, p)
	})
}

// Move repositions id. A moved rectangle is no longer considered auto-placed.
func (s *Store) Move(id string, x, y float64) bool {
	return s.update(protocol.EventMove, id, rect.Patch{X: &x, Y: &y, AddedAtOffset: rect.Ptr(false)})
}

func (s *Store) Resize(id string, width, height, x, y float64) bool {
	return s.update(protocol.EventResize, id, rect.Patch{Width: &width, Height: &height, X: &x, Y: &y})
}

func (s *Store) Recolor(id string, fill rect.Color) bool {
	return s.update(protocol.EventChangeColor, id, rect.Patch{Fill: &fill})
}

func (s *Store) Rotate(id string, rotation float64) bool {
	return s.update(protocol.EventRotate, id, rect.Patch{Rotation: &rotation})
}

func (s *Store) Delete(id string) bool {
	return s.mutate(Change{Event: protocol.EventDelete, ID: id}, func(set *rect.Set) bool {
		return set.Remove(id)
	})
}

// ReplaceAll swaps in a whole new collection and always notifies.
func (s *Store) ReplaceAll(rects []rect.Rectangle) {
	s.mutate(Change{Event: protocol.EventInit}, func(set *rect.Set) bool {
		set.Replace(rects)
		return true
	})
}

func (s *Store) Clear() {
	s.mutate(Change{Event: protocol.EventClear}, func(set *rect.Set) bool {
		set.Clear()
		return true
	})
}

// Apply applies a mutation received from the relay (or replayed from history)
// and reports whether the store changed.
func (s *Store) Apply(m protocol.Mutation) bool {
	switch m := m.(type) {
	case protocol.Init:
		s.ReplaceAll(m.Rectangles)
		return true
	case protocol.Add:
		return s.Add(m.Rectangle)
	case protocol.Move:
		p, _ := protocol.Patch(m)
		return s.update(protocol.EventMove, m.ID, p)
	case protocol.Resize:
		return s.Resize(m.ID, m.Width, m.Height, m.X, m.Y)
	case protocol.ChangeColor:
		return s.Recolor(m.ID, m.Fill)
	case protocol.Rotate:
		return s.Rotate(m.ID, m.Rotation)
	case protocol.Delete:
		return s.Delete(m.ID)
	case protocol.Clear:
		s.Clear()
		return true
	}
	return false
}

func (s *Store) Get(id string) (rect.Rectangle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Get(id)
}

func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Has(id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Len()
}

// All returns a copy of the collection in insertion order, for rendering and
// persistence.
func (s *Store) All() []rect.Rectangle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set.Snapshot()
}

// Range calls fn for each rectangle in order until fn returns false. It works
// on a copy, so fn may call back into the store.
func (s *Store) Range(fn func(rect.Rectangle) bool) {
	for _, r := range s.All() {
		if !fn(r) {
			return
		}
	}
}
