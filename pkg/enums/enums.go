// Package enums holds the string-backed enumerations persisted by the
// settlement tables. Each type reports IsValid and has a Parse function.
package enums

import (
	"fmt"
	"slices"
)

type members[T ~string] struct {
	label  string
	values []T
}

func enumOf[T ~string](label string, values ...T) members[T] {
	return members[T]{label: label, values: values}
}

func (m members[T]) has(v T) bool {
	return slices.Contains(m.values, v)
}

func (m members[T]) parse(raw string) (T, error) {
	if v := T(raw); m.has(v) {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", m.label, raw)
}
