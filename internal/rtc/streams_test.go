package rtc

import "testing"

func TestStreamSetGroupsTracksByStream(t *testing.T) {
	s := NewStreamSet()
	changes := 0
	s.OnChange(func() { changes++ })

	s.AddTrack(&RemoteTrack{PeerID: "p1", StreamID: "s1", Kind: "video"})
	s.AddTrack(&RemoteTrack{PeerID: "p1", StreamID: "s1", Kind: "audio"})
	s.AddTrack(&RemoteTrack{PeerID: "p2", StreamID: "s2", Kind: "video"})

	if s.Len() != 2 {
		t.Fatalf("Len=%d, want 2", s.Len())
	}
	p1 := s.ForPeer("p1")
	if len(p1) != 1 || len(p1[0].Tracks) != 2 {
		t.Fatalf("p1 streams=%+v, want one stream with two tracks", p1)
	}

	s.RemovePeer("p1")
	s.RemovePeer("p1")
	if s.Len() != 1 || len(s.ForPeer("p1")) != 0 {
		t.Fatalf("p1 still present after RemovePeer")
	}
	if changes != 4 {
		t.Fatalf("changes=%d, want 4", changes)
	}
}
