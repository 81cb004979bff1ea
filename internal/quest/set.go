package quest

import "sort"

// Set is a collection of quests unique by Key. The zero value is not usable;
// create one with NewSet.
type Set map[string]*Quest

// NewSet creates a set holding the given quests.
func NewSet(quests ...*Quest) Set {
	s := make(Set, len(quests))
	for _, q := range quests {
		s.Add(q)
	}
	return s
}

// Add inserts q unless a quest with the same key is already present.
// It reports whether q was inserted.
func (s Set) Add(q *Quest) bool {
	if q == nil {
		return false
	}
	key := q.Key()
	if _, exists := s[key]; exists {
		return false
	}
	s[key] = q
	return true
}

// Get returns the quest with the given name.
func (s Set) Get(name string) (*Quest, bool) {
	q, ok := s[KeyOf(name)]
	return q, ok
}

// Contains reports whether a quest with the given name is present.
func (s Set) Contains(name string) bool {
	_, ok := s[KeyOf(name)]
	return ok
}

// Len returns the number of quests.
func (s Set) Len() int {
	return len(s)
}

// Union adds every quest of other that is not already present and returns
// the quests that were rejected as duplicates.
func (s Set) Union(other Set) []*Quest {
	var dups []*Quest
	for _, q := range other.Sorted() {
		if !s.Add(q) {
			dups = append(dups, q)
		}
	}
	return dups
}

// Names returns the quest names ordered by key.
func (s Set) Names() []string {
	sorted := s.Sorted()
	names := make([]string, len(sorted))
	for i, q := range sorted {
		names[i] = q.Name
	}
	return names
}

// Sorted returns the quests ordered by key.
func (s Set) Sorted() []*Quest {
	out := make([]*Quest, 0, len(s))
	for _, q := range s {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
