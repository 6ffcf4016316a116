package device

import "sync"

// Scope releases every tracked tensor on Close.
// Intermediates created while serving one call are tracked so that all exit
// paths, including errors, leave the backend's live count unchanged.
type Scope struct {
	backend Backend

	mu      sync.Mutex
	tensors []Tensor
	closed  bool
}

func NewScope(b Backend) *Scope {
	return &Scope{backend: b}
}

// Track registers t for release and returns it.
// Tracking after Close releases t immediately.
func (s *Scope) Track(t Tensor) Tensor {
	if t == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.backend.PutTensor(t)
		return t
	}
	s.tensors = append(s.tensors, t)
	s.mu.Unlock()
	return t
}

// Keep detaches t so it outlives the scope. It reports whether t was tracked.
func (s *Scope) Keep(t Tensor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, tt := range s.tensors {
		if tt == t {
			s.tensors = append(s.tensors[:i], s.tensors[i+1:]...)
			return true
		}
	}
	return false
}

// Len is the number of tensors awaiting release.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tensors)
}

func (s *Scope) Close() {
	s.mu.Lock()
	tensors := s.tensors
	s.tensors = nil
	s.closed = true
	s.mu.Unlock()

	// Release in reverse allocation order.
	for i := len(tensors) - 1; i >= 0; i-- {
		s.backend.PutTensor(tensors[i])
	}
}
