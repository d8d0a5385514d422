// Package registry holds the canonical rectangle collection and the rules that
// decide whether a mutation is applied, broadcast or refused.
package registry

import (
	"github.com/astromechza/rectangle-sync/pkg/protocol"
	"github.com/astromechza/rectangle-sync/pkg/rect"
)

// Outcome is the result of applying one mutation. Broadcast goes to every
// connection, origin included; Reply goes to the origin only.
type Outcome struct {
	Broadcast []protocol.Message
	Reply     *protocol.Failure
}

// Registry is not safe for concurrent use. The relay owns exactly one and
// touches it only from its event loop.
type Registry struct {
	set *rect.Set
}

func New(seed ...rect.Rectangle) *Registry {
	return &Registry{set: rect.NewSet(seed...)}
}

func (r *Registry) Len() int {
	return r.set.Len()
}

func (r *Registry) Get(id string) (rect.Rectangle, bool) {
	return r.set.Get(id)
}

func (r *Registry) Snapshot() []rect.Rectangle {
	return r.set.Snapshot()
}

// Apply validates m against canonical state and mutates the registry.
func (r *Registry) Apply(m protocol.Mutation) Outcome {
	switch m := m.(type) {
	case protocol.Init:
		var out Outcome
		for _, item := range m.Rectangles {
			if r.set.Insert(item) {
				stored, _ := r.set.Get(item.ID)
				out.Broadcast = append(out.Broadcast, protocol.Add{Rectangle: stored})
			}
		}
		return out
	case protocol.Add:
		if !r.set.Insert(m.Rectangle) {
			return Outcome{}
		}
		stored, _ := r.set.Get(m.Rectangle.ID)
		return Outcome{Broadcast: []protocol.Message{protocol.Add{Rectangle: stored}}}
	case protocol.Delete:
		if !r.set.Remove(m.ID) {
			return Outcome{Reply: protocol.NotFound(m)}
		}
		return Outcome{Broadcast: []protocol.Message{m}}
	case protocol.Clear:
		r.set.Clear()
		return Outcome{Broadcast: []protocol.Message{m}}
	}

	patch, ok := protocol.Patch(m)
	if !ok {
		return Outcome{}
	}
	if !r.set.Update(m.Target(), patch) {
		return Outcome{Reply: protocol.NotFound(m)}
	}
	return Outcome{Broadcast: []protocol.Message{m}}
}
