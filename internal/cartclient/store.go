package cartclient

import (
	"sync"
	"time"
)

// State is a snapshot of the client cart mirror.
type State struct {
	Items    []Item
	Loading  bool
	Syncing  bool
	Busy     map[string]bool
	LastSync time.Time
	// Stale is set when Items came from the snapshot cache instead of the backend.
	Stale bool
}

// Action is applied to the state by Store.Dispatch.
type Action interface {
	apply(state *State)
}

// ReplaceItems swaps the mirror wholesale for authoritative data.
type ReplaceItems struct {
	Items []Item
	Stale bool
}

// LoadStarted marks a reload in progress.
type LoadStarted struct{}

// LoadFinished clears the loading flag.
type LoadFinished struct{}

// SyncStarted marks a reconciliation in progress.
type SyncStarted struct{}

// SyncFinished clears the syncing flag and records the completion time on success.
type SyncFinished struct {
	At        time.Time
	Succeeded bool
}

// MarkBusy flags or unflags a product with an outstanding mutation.
type MarkBusy struct {
	ProductID string
	Busy      bool
}

// Reset empties the mirror, as after losing the session.
type Reset struct{}

func (a ReplaceItems) apply(state *State) {
	state.Items = cloneItems(a.Items)
	state.Stale = a.Stale
}

func (LoadStarted) apply(state *State) {
	state.Loading = true
}

func (LoadFinished) apply(state *State) {
	state.Loading = false
}

func (SyncStarted) apply(state *State) {
	state.Syncing = true
}

func (a SyncFinished) apply(state *State) {
	state.Syncing = false
	if a.Succeeded {
		state.LastSync = a.At
	}
}

func (a MarkBusy) apply(state *State) {
	if a.Busy {
		state.Busy[a.ProductID] = true
		return
	}
	delete(state.Busy, a.ProductID)
}

func (Reset) apply(state *State) {
	state.Items = []Item{}
	state.Stale = false
	state.Busy = map[string]bool{}
}

// Listener observes every state change. Listeners run in dispatch order and
// must not call Dispatch.
type Listener func(State)

// Store owns the cart mirror. All changes go through Dispatch.
type Store struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	state     State
	listeners map[int]Listener
	nextID    int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		state: State{
			Items: []Item{},
			Busy:  map[string]bool{},
		},
		listeners: map[int]Listener{},
	}
}

// Dispatch applies the action and notifies listeners with the new state.
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	action.apply(&s.state)
	snapshot := s.snapshotLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
}

// State returns a deep copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a listener and returns its cancel function.
func (s *Store) Subscribe(listener Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) snapshotLocked() State {
	snapshot := s.state
	snapshot.Items = cloneItems(s.state.Items)
	snapshot.Busy = make(map[string]bool, len(s.state.Busy))
	for productID, busy := range s.state.Busy {
		snapshot.Busy[productID] = busy
	}
	return snapshot
}
