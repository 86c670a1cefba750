package repository

import (
	"iter"
	"slices"
)

// Chunk yields consecutive sub-slices of at most size elements, keeping IN
// lists below driver parameter limits. A non-positive size yields s whole.
func Chunk[T any](s []T, size int) iter.Seq[[]T] {
	if size <= 0 {
		return func(yield func([]T) bool) {
			if len(s) > 0 {
				yield(s)
			}
		}
	}
	return slices.Chunk(s, size)
}
