package timeline

import (
	"fmt"
	"slices"
)

type memStore[K comparable, M any] struct {
	envs   []Envelope[K, M]
	closed bool
}

// NewMemStore returns a transient in-memory Store implementation intended
// for tests.
func NewMemStore[K comparable, M any]() Store[K, M] {
	return &memStore[K, M]{}
}

func (s *memStore[K, M]) Save(envs []Envelope[K, M]) error {
	if s.closed {
		return fmt.Errorf("store closed")
	}
	s.envs = slices.Clone(envs)
	return nil
}

func (s *memStore[K, M]) Load() ([]Envelope[K, M], error) {
	if s.closed {
		return nil, fmt.Errorf("store closed")
	}
	return slices.Clone(s.envs), nil
}

func (s *memStore[K, M]) Close() error {
	s.closed = true
	s.envs = nil
	return nil
}
