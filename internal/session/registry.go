package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ID identifies a turbine for the lifetime of a run.
type ID string

func NewID() ID { return ID(uuid.NewString()) }

// Registry holds at most one session per turbine. A session is opened on the
// first Acquire for its ID and closed by Release or Close. Opening happens
// outside the lock, so a slow controller load blocks only callers asking for
// the same turbine.
type Registry struct {
	mu       sync.Mutex
	sessions map[ID]*entry
}

type entry struct {
	ready chan struct{}
	s     *Session
	err   error
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ID]*entry)}
}

// Acquire returns the session for id, calling open to create it if there is
// none yet. Concurrent callers for an id that is still opening wait for that
// open and share its outcome. A failed open leaves no entry behind.
func (r *Registry) Acquire(id ID, open func() (*Session, error)) (*Session, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{ready: make(chan struct{})}
		r.sessions[id] = e
	}
	r.mu.Unlock()

	if ok {
		<-e.ready
		return e.s, e.err
	}

	e.s, e.err = open()
	if e.err != nil {
		r.mu.Lock()
		if r.sessions[id] == e {
			delete(r.sessions, id)
		}
		r.mu.Unlock()
	}
	close(e.ready)
	return e.s, e.err
}

// Lookup returns the open session for id. Sessions still opening are not
// reported.
func (r *Registry) Lookup(id ID) (*Session, bool) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	select {
	case <-e.ready:
		return e.s, e.err == nil
	default:
		return nil, false
	}
}

// Release closes and forgets the session for id, waiting for it to finish
// opening first. Unknown IDs are ignored.
func (r *Registry) Release(id ID) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	<-e.ready
	if e.s == nil {
		return nil
	}
	return e.s.Close()
}

// Len counts sessions that are open or opening.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close releases every session in ID order and joins their errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	ids := make([]ID, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var errs []error
	for _, id := range ids {
		if err := r.Release(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
