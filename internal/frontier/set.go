package frontier

// Set is a hash set. It is not safe for concurrent use.
type Set[T comparable] map[T]struct{}

// NewSet returns an empty set.
func NewSet[T comparable]() Set[T] {
	return make(Set[T])
}

// Add inserts item and reports whether it was absent.
func (s Set[T]) Add(item T) bool {
	if _, exists := s[item]; exists {
		return false
	}
	s[item] = struct{}{}
	return true
}

// Contains reports membership.
func (s Set[T]) Contains(item T) bool {
	_, exists := s[item]
	return exists
}

// Remove deletes item if present.
func (s Set[T]) Remove(item T) {
	delete(s, item)
}

// Size returns the number of members.
func (s Set[T]) Size() int {
	return len(s)
}
