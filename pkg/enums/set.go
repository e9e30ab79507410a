package enums

import (
	"fmt"
	"slices"
	"strings"
)

// valueSet is the closed list of spellings a string enum accepts.
type valueSet[T ~string] struct {
	kind   string
	values []T
}

func newSet[T ~string](kind string, values ...T) valueSet[T] {
	return valueSet[T]{kind: kind, values: values}
}

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

// parse accepts surrounding whitespace and any letter case.
func (s valueSet[T]) parse(raw string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(raw)))
	if !s.has(v) {
		return "", fmt.Errorf("invalid %s %q", s.kind, raw)
	}
	return v, nil
}

// all returns a copy callers may modify.
func (s valueSet[T]) all() []T {
	return slices.Clone(s.values)
}
