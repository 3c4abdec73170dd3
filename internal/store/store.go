package store

import (
	"sync"
)

// Mutation changes a State. Apply works on a private copy; returning an
// error discards every change it made.
type Mutation interface {
	Name() string
	Apply(s *State) error
}

// Event is delivered to subscribers after a mutation succeeded.
type Event struct {
	Mutation string
	Version  uint64
}

// Store serializes mutations against a single State.
type Store struct {
	mu     sync.RWMutex
	state  *State
	subs   map[int]func(Event)
	nextID int
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState(), subs: make(map[int]func(Event))}
}

// State returns a deep copy of the current state.
func (s *Store) State() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// Version returns the number of mutations applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Version
}

// Subscribe registers fn to run after every successful mutation. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Dispatch applies m atomically and notifies subscribers.
func (s *Store) Dispatch(m Mutation) error {
	s.mu.Lock()
	next := s.state.Clone()
	if err := m.Apply(next); err != nil {
		s.mu.Unlock()
		return err
	}
	next.Version++
	s.state = next
	ev := Event{Mutation: m.Name(), Version: next.Version}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
	return nil
}

// read runs fn under the read lock without copying the state. fn must not
// retain references into s.
func (s *Store) read(fn func(st *State)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.state)
}
