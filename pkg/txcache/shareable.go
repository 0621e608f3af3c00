package txcache

import (
	"github.com/pkg/errors"
)

// ErrMutatedWhileShared is the panic value raised when a shared value is written.
var ErrMutatedWhileShared = errors.New("cannot mutate value while it is shared")

// Shareable is a single-writer container. While a shared view is handed out
// through WithShared, write access panics. The owner regains write access when
// the shared section returns.
type Shareable[T any] struct {
	value  T
	shared int
}

// NewShareable wraps v.
func NewShareable[T any](v T) *Shareable[T] {
	return &Shareable[T]{value: v}
}

// Get returns the value for reading. Allowed in both modes.
func (s *Shareable[T]) Get() T {
	return s.value
}

// Mut returns the value for writing. It panics while the value is shared.
func (s *Shareable[T]) Mut() T {
	if s.shared > 0 {
		panic(ErrMutatedWhileShared)
	}
	return s.value
}

// IsShared reports whether a shared section is active.
func (s *Shareable[T]) IsShared() bool {
	return s.shared > 0
}

// WithShared runs fn with a shared view of the value. Sections may nest.
func (s *Shareable[T]) WithShared(fn func(v T)) {
	s.shared++
	defer func() { s.shared-- }()
	fn(s.value)
}
