package rtc

import (
	"sort"
	"sync"
)

// RemoteStream groups the tracks one peer sent under one stream id.
type RemoteStream struct {
	PeerID   string
	StreamID string
	Tracks   []*RemoteTrack
}

// StreamSet is the set of remote streams currently received.
type StreamSet struct {
	mu      sync.RWMutex
	streams map[string]map[string]*RemoteStream // peer -> stream id -> stream
	changed func()
}

func NewStreamSet() *StreamSet {
	return &StreamSet{streams: make(map[string]map[string]*RemoteStream)}
}

// OnChange registers fn to run after every mutation.
func (s *StreamSet) OnChange(fn func()) {
	s.mu.Lock()
	s.changed = fn
	s.mu.Unlock()
}

// AddTrack records t under its peer and stream.
func (s *StreamSet) AddTrack(t *RemoteTrack) {
	s.mu.Lock()
	byID, ok := s.streams[t.PeerID]
	if !ok {
		byID = make(map[string]*RemoteStream)
		s.streams[t.PeerID] = byID
	}
	stream, ok := byID[t.StreamID]
	if !ok {
		stream = &RemoteStream{PeerID: t.PeerID, StreamID: t.StreamID}
		byID[t.StreamID] = stream
	}
	stream.Tracks = append(stream.Tracks, t)
	fn := s.changed
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// RemovePeer drops every stream from peerID.
func (s *StreamSet) RemovePeer(peerID string) {
	s.mu.Lock()
	_, ok := s.streams[peerID]
	delete(s.streams, peerID)
	fn := s.changed
	s.mu.Unlock()

	if ok && fn != nil {
		fn()
	}
}

// ForPeer returns the streams received from peerID.
func (s *StreamSet) ForPeer(peerID string) []RemoteStream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []RemoteStream
	for _, st := range s.streams[peerID] {
		out = append(out, RemoteStream{PeerID: st.PeerID, StreamID: st.StreamID, Tracks: append([]*RemoteTrack(nil), st.Tracks...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// Len is the total number of remote streams.
func (s *StreamSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, byID := range s.streams {
		n += len(byID)
	}
	return n
}
