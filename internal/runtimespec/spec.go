// Package runtimespec models the set of target runtimes a chunk, module or
// connection is valid for, and conditions evaluated per runtime.
package runtimespec

import (
	"sort"
	"strings"
)

// Spec is an ordered, deduplicated set of runtime names.
//
// A nil *Spec means "unspecified": valid for every runtime. An empty Spec is
// the empty set.
type Spec struct {
	names []string
}

// New builds a Spec from the given names.
func New(names ...string) *Spec {
	s := &Spec{}
	for _, n := range names {
		s.add(n)
	}
	return s
}

func (s *Spec) add(name string) {
	i := sort.SearchStrings(s.names, name)
	if i < len(s.names) && s.names[i] == name {
		return
	}
	s.names = append(s.names, "")
	copy(s.names[i+1:], s.names[i:])
	s.names[i] = name
}

// Len returns the number of runtimes in the set.
func (s *Spec) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns a copy of the runtime names in ascending order.
func (s *Spec) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether name is in the set.
func (s *Spec) Contains(name string) bool {
	if s == nil {
		return false
	}
	i := sort.SearchStrings(s.names, name)
	return i < len(s.names) && s.names[i] == name
}

// Clone returns an independent copy. Cloning nil yields nil.
func (s *Spec) Clone() *Spec {
	if s == nil {
		return nil
	}
	return &Spec{names: s.Names()}
}

// Extend adds every runtime of other to s in place.
func (s *Spec) Extend(other *Spec) {
	if other == nil {
		return
	}
	for _, n := range other.names {
		s.add(n)
	}
}

// Union returns a new set with the runtimes of both sets.
func (s *Spec) Union(other *Spec) *Spec {
	out := New()
	out.Extend(s)
	out.Extend(other)
	return out
}

// Intersect returns a new set with the runtimes present in both sets.
func (s *Spec) Intersect(other *Spec) *Spec {
	out := New()
	if s == nil || other == nil {
		return out
	}
	for _, n := range s.names {
		if other.Contains(n) {
			out.names = append(out.names, n)
		}
	}
	return out
}

// Intersects reports whether the two sets share at least one runtime.
func (s *Spec) Intersects(other *Spec) bool {
	if s == nil || other == nil {
		return false
	}
	for _, n := range s.names {
		if other.Contains(n) {
			return true
		}
	}
	return false
}

// IsSubset reports whether every runtime of s is in other.
func (s *Spec) IsSubset(other *Spec) bool {
	if s == nil {
		return other == nil
	}
	for _, n := range s.names {
		if !other.Contains(n) {
			return false
		}
	}
	return true
}

// IsSuperset reports whether every runtime of other is in s.
func (s *Spec) IsSuperset(other *Spec) bool {
	return other.IsSubset(s)
}

// Equal reports whether both sets hold the same runtimes. Two nil specs are
// equal; nil never equals a non-nil spec.
func (s *Spec) Equal(other *Spec) bool {
	if s == nil || other == nil {
		return s == nil && other == nil
	}
	if len(s.names) != len(other.names) {
		return false
	}
	for i := range s.names {
		if s.names[i] != other.names[i] {
			return false
		}
	}
	return true
}

// Key returns a stable string usable as a map key. The unspecified runtime
// has the key "*".
func (s *Spec) Key() string {
	if s == nil {
		return "*"
	}
	return strings.Join(s.names, "\x00")
}

func (s *Spec) String() string {
	if s == nil {
		return "*"
	}
	if len(s.names) == 1 {
		return s.names[0]
	}
	return strings.Join(s.names, ",")
}

// Single returns a one-element set for each runtime in s, in order.
func (s *Spec) Single() []*Spec {
	if s == nil {
		return nil
	}
	out := make([]*Spec, 0, len(s.names))
	for _, n := range s.names {
		out = append(out, New(n))
	}
	return out
}
