// Package templates holds the runtime-swappable set of extraction patterns.
package templates

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"sync"
)

// ValidationError is returned when an imported template document is rejected.
type ValidationError struct {
	Field  string // empty when the document itself is malformed
	Index  int    // pattern index within Field, -1 if not applicable
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Field == "":
		return fmt.Sprintf("invalid template document: %s", e.Reason)
	case e.Index < 0:
		return fmt.Sprintf("invalid template field %q: %s", e.Field, e.Reason)
	default:
		return fmt.Sprintf("invalid template field %q pattern %d: %s", e.Field, e.Index, e.Reason)
	}
}

// Set is an immutable snapshot of field -> ordered patterns.
type Set struct {
	patterns map[string][]string
	compiled map[string][]*regexp.Regexp
}

// NewSet compiles every pattern case-insensitively. The first pattern that
// fails to compile is reported as a *ValidationError.
func NewSet(patterns map[string][]string) (*Set, error) {
	s := &Set{
		patterns: make(map[string][]string, len(patterns)),
		compiled: make(map[string][]*regexp.Regexp, len(patterns)),
	}
	for _, field := range slices.Sorted(maps.Keys(patterns)) {
		list := patterns[field]
		res := make([]*regexp.Regexp, 0, len(list))
		for i, p := range list {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, &ValidationError{Field: field, Index: i, Reason: err.Error()}
			}
			res = append(res, re)
		}
		s.patterns[field] = slices.Clone(list)
		s.compiled[field] = res
	}
	return s, nil
}

var defaults = sync.OnceValue(func() *Set {
	s, err := NewSet(defaultPatterns)
	if err != nil {
		panic(fmt.Sprintf("built-in templates: %v", err))
	}
	return s
})

// Defaults returns the built-in template set.
func Defaults() *Set {
	return defaults()
}

// Compiled returns the compiled patterns for field, or nil.
func (s *Set) Compiled(field string) []*regexp.Regexp {
	if s == nil {
		return nil
	}
	return s.compiled[field]
}

// Patterns returns a copy of the raw patterns for field.
func (s *Set) Patterns(field string) []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.patterns[field])
}

// Fields returns the field names in sorted order.
func (s *Set) Fields() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.patterns))
}

// Map returns a deep copy of the raw patterns.
func (s *Set) Map() map[string][]string {
	out := make(map[string][]string, len(s.patterns))
	for k, v := range s.patterns {
		out[k] = slices.Clone(v)
	}
	return out
}

// Equal reports whether two sets hold the same fields and patterns in the same order.
func (s *Set) Equal(o *Set) bool {
	if s == nil || o == nil {
		return s == o
	}
	return maps.EqualFunc(s.patterns, o.patterns, slices.Equal)
}
