package peer

import (
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/pion/webrtc/v4"
)

// State is a peer's position in the negotiation.
type State int

const (
	StateIntroduced State = iota
	StateOfferSent
	StateOfferReceived
	StateAnswerExchanged
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIntroduced:
		return "INTRODUCED"
	case StateOfferSent:
		return "OFFER_SENT"
	case StateOfferReceived:
		return "OFFER_RECEIVED"
	case StateAnswerExchanged:
		return "ANSWER_EXCHANGED"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Negotiating reports whether an offer/answer exchange is still in flight.
func (s State) Negotiating() bool {
	return s == StateIntroduced || s == StateOfferSent || s == StateOfferReceived || s == StateAnswerExchanged
}

// Conn is what the registry needs from a peer connection.
type Conn interface {
	Close() error
}

// Entry is one remote peer's connection and negotiation state.
type Entry struct {
	PeerID string
	Name   string
	Conn   Conn
	State  State

	// Pending holds remote candidates received before the remote
	// description was applied, in arrival order.
	Pending   []webrtc.ICECandidateInit
	RemoteSet bool

	// Outbox holds local candidates gathered before our description was
	// sent to the peer.
	Outbox    []webrtc.ICECandidateInit
	LocalSent bool

	// Failed marks an entry whose negotiation errored. Only a fresh
	// introduction or offer replaces it.
	Failed bool

	// Generation identifies the connection instance; async results for an
	// older generation are discarded.
	Generation uint64
}

func (e *Entry) clone() Entry {
	c := *e
	c.Pending = slices.Clone(e.Pending)
	c.Outbox = slices.Clone(e.Outbox)
	return c
}

// Registry maps peer ids to entries. It never holds an entry for self and
// never two entries for the same peer.
type Registry struct {
	self string

	mu      sync.RWMutex
	entries map[string]*Entry
}

func NewRegistry(self string) *Registry {
	return &Registry{
		self:    self,
		entries: make(map[string]*Entry),
	}
}

// Self is the local peer id.
func (r *Registry) Self() string {
	return r.self
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Upsert stores e, replacing and releasing any existing entry for the same
// peer whose connection differs.
func (r *Registry) Upsert(e *Entry) error {
	if e.PeerID == r.self {
		return errs.NewPeerError("upsert peer", e.PeerID, errs.ErrSelfPeer)
	}

	r.mu.Lock()
	old, ok := r.entries[e.PeerID]
	r.entries[e.PeerID] = e
	r.mu.Unlock()

	if ok && old != e && old.Conn != nil && old.Conn != e.Conn {
		release(old)
	}
	return nil
}

// Claim inserts e only if no entry exists for the peer.
func (r *Registry) Claim(e *Entry) bool {
	if e.PeerID == r.self {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.PeerID]; ok {
		return false
	}
	r.entries[e.PeerID] = e
	return true
}

// Transition moves id from one state to another, failing if the entry is
// absent or not in from.
func (r *Registry) Transition(id string, from, to State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.State != from {
		return false
	}
	e.State = to
	return true
}

// Update applies fn to the entry for id if its generation matches.
func (r *Registry) Update(id string, gen uint64, fn func(*Entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.Generation != gen {
		return false
	}
	fn(e)
	return true
}

// Remove deletes the entry for id, closing its connection and discarding
// any pending candidates.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		release(e)
	}
	return ok
}

// All returns copies of every entry ordered by peer id.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CloseAll releases every entry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, e := range entries {
		release(e)
	}
}

func release(e *Entry) {
	e.State = StateClosed
	e.Pending = nil
	e.Outbox = nil
	if e.Conn == nil {
		return
	}
	if err := e.Conn.Close(); err != nil {
		slog.Debug("closing peer connection", "peer", e.PeerID, "error", err)
	}
}
