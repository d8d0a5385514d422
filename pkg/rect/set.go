package rect

// Set is an insertion-ordered collection of rectangles with unique ids. It is
// not safe for concurrent use; owners serialize access themselves.
type Set struct {
	items []Rectangle
	index map[string]int
}

func NewSet(items ...Rectangle) *Set {
	s := &Set{index: make(map[string]int)}
	for _, r := range items {
		s.Insert(r)
	}
	return s
}

func (s *Set) Len() int {
	return len(s.items)
}

func (s *Set) Has(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *Set) Get(id string) (Rectangle, bool) {
	i, ok := s.index[id]
	if !ok {
		return Rectangle{}, false
	}
	return s.items[i], true
}

// Insert appends r unless its id is already present and reports whether it did.
func (s *Set) Insert(r Rectangle) bool {
	if s.Has(r.ID) {
		return false
	}
	r.Rotation = NormalizeRotation(r.Rotation)
	s.index[r.ID] = len(s.items)
	s.items = append(s.items, r)
	return true
}

// Update overwrites the patched fields of id and reports whether id exists.
func (s *Set) Update(id string, p Patch) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items[i] = p.Apply(s.items[i])
	return true
}

func (s *Set) Remove(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	return true
}

func (s *Set) Clear() {
	s.items = nil
	s.index = make(map[string]int)
}

// Replace swaps the whole content. Duplicate ids in items keep the first one.
func (s *Set) Replace(items []Rectangle) {
	s.Clear()
	for _, r := range items {
		s.Insert(r)
	}
}

// Snapshot returns a copy of the content in insertion order.
func (s *Set) Snapshot() []Rectangle {
	out := make([]Rectangle, len(s.items))
	copy(out, s.items)
	return out
}
