package tracker

import (
	"bytes"
	"iter"
	"maps"
	"slices"

	"github.com/fredrikaverpil/bldtrack/buildop"
)

// OperationSet is an immutable snapshot of running operation identifiers.
// The zero value is an empty set.
type OperationSet struct {
	ids map[buildop.ID]struct{}
}

// Len returns the number of distinct operations in the set.
func (s OperationSet) Len() int {
	return len(s.ids)
}

// IsEmpty reports whether the set has no operations.
func (s OperationSet) IsEmpty() bool {
	return len(s.ids) == 0
}

// Contains reports whether id is in the set.
func (s OperationSet) Contains(id buildop.ID) bool {
	_, ok := s.ids[id]
	return ok
}

// All iterates over the operations in unspecified order.
func (s OperationSet) All() iter.Seq[buildop.ID] {
	return maps.Keys(s.ids)
}

// IDs returns the operations sorted by identifier.
func (s OperationSet) IDs() []buildop.ID {
	return slices.SortedFunc(s.All(), func(a, b buildop.ID) int {
		return bytes.Compare(a[:], b[:])
	})
}
