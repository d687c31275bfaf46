package signaling

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/Coderoom/internal/peer"
	"github.com/BioHazard786/Coderoom/internal/rtc"
	"github.com/BioHazard786/Coderoom/internal/transport"
	"github.com/pion/webrtc/v4"
)

// fakeNet hands out fakeConns and connects a pair once the offerer applies
// the answer.
type fakeNet struct {
	mu      sync.Mutex
	conns   map[[2]string]*fakeConn
	created int
	gate    chan struct{}
	fail    map[[2]string]string
}

func newFakeNet() *fakeNet {
	return &fakeNet{conns: make(map[[2]string]*fakeConn), fail: make(map[[2]string]string)}
}

// failWith makes owner's connection to peerID reject op ("offer", "answer"
// or "remote"). An empty op clears it.
func (n *fakeNet) failWith(owner, peerID, op string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if op == "" {
		delete(n.fail, [2]string{owner, peerID})
		return
	}
	n.fail[[2]string{owner, peerID}] = op
}

func (n *fakeNet) failure(owner, peerID, op string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[[2]string{owner, peerID}] == op {
		return fmt.Errorf("%s rejected by %s", op, owner)
	}
	return nil
}

func (n *fakeNet) factory(owner string) Factory {
	return func(peerID string, cb rtc.Callbacks) (PeerConn, error) {
		n.mu.Lock()
		defer n.mu.Unlock()
		fc := &fakeConn{owner: owner, peerID: peerID, cb: cb, net: n, gate: n.gate, calls: make(map[string]int)}
		n.conns[[2]string{owner, peerID}] = fc
		n.created++
		return fc, nil
	}
}

func (n *fakeNet) conn(owner, peerID string) *fakeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.conns[[2]string{owner, peerID}]
}

func (n *fakeNet) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.created
}

func (n *fakeNet) link(offerer *fakeConn) {
	answerer := n.conn(offerer.peerID, offerer.owner)
	for _, fc := range []*fakeConn{offerer, answerer} {
		if fc == nil {
			continue
		}
		fc.cb.OnState(webrtc.PeerConnectionStateConnected)
		fc.cb.OnTrack(&rtc.RemoteTrack{PeerID: fc.peerID, StreamID: "stream-" + fc.peerID, Kind: "video"})
	}
}

type fakeConn struct {
	owner, peerID string
	cb            rtc.Callbacks
	net           *fakeNet
	gate          chan struct{}

	mu     sync.Mutex
	local  *webrtc.SessionDescription
	remote *webrtc.SessionDescription
	added  []string
	early  int
	closed bool
	calls  map[string]int
}

func (f *fakeConn) call(op string) error {
	f.mu.Lock()
	f.calls[op]++
	f.mu.Unlock()
	return f.net.failure(f.owner, f.peerID, op)
}

func (f *fakeConn) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeConn) candidate() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: "candidate:" + f.owner + " 1 udp 1 10.0.0.1 5000 typ host"}
}

func (f *fakeConn) Offer() (webrtc.SessionDescription, error) {
	if err := f.call("offer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	// Gathering starts before the description reaches the peer.
	f.cb.OnCandidate(f.candidate())
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer " + f.owner + ">" + f.peerID}
	f.mu.Lock()
	f.local = &desc
	f.mu.Unlock()
	return desc, nil
}

func (f *fakeConn) Answer() (webrtc.SessionDescription, error) {
	if err := f.call("answer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	f.mu.Lock()
	if f.remote == nil {
		f.mu.Unlock()
		return webrtc.SessionDescription{}, errors.New("answer without remote offer")
	}
	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer " + f.owner + ">" + f.peerID}
	f.local = &desc
	f.mu.Unlock()
	f.cb.OnCandidate(f.candidate())
	return desc, nil
}

func (f *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if f.gate != nil {
		<-f.gate
	}
	if err := f.call("remote"); err != nil {
		return err
	}
	f.mu.Lock()
	f.remote = &desc
	f.mu.Unlock()
	if desc.Type == webrtc.SDPTypeAnswer {
		go f.net.link(f)
	}
	return nil
}

func (f *fakeConn) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil {
		f.early++
	}
	f.added = append(f.added, c.Candidate)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) snapshot() (added []string, early int, closed bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.added...), f.early, f.closed
}

type recorder struct {
	mu     sync.Mutex
	frames []*transport.Frame
}

func (r *recorder) Send(f *transport.Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
	return nil
}

func (r *recorder) signals() []transport.VideoSignal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []transport.VideoSignal
	for _, f := range r.frames {
		if f.VideoSignal != nil {
			out = append(out, *f.VideoSignal)
		}
	}
	return out
}

func (r *recorder) has(typ transport.SignalType, to string) bool {
	for _, s := range r.signals() {
		if s.Type == typ && s.To == to {
			return true
		}
	}
	return false
}

// hub relays every frame to every member, sender included, in order.
type hub struct {
	mu      sync.Mutex
	members []*member
}

type member struct {
	id      string
	ctrl    *Controller
	streams *rtc.StreamSet
	inbox   chan *transport.Frame
}

type hubSender struct {
	h  *hub
	id string
}

func (s hubSender) Send(f *transport.Frame) error {
	stamped := *f
	stamped.SenderID = s.id
	stamped.SenderName = s.id
	s.h.mu.Lock()
	defer s.h.mu.Unlock()
	for _, m := range s.h.members {
		m.inbox <- &stamped
	}
	return nil
}

func (h *hub) join(t *testing.T, net *fakeNet, id string) *member {
	t.Helper()
	m := &member{id: id, streams: rtc.NewStreamSet(), inbox: make(chan *transport.Frame, 4096)}
	m.ctrl = New(Options{
		Self:    id,
		Name:    id,
		RoomID:  "room",
		Factory: net.factory(id),
		Out:     hubSender{h: h, id: id},
		Streams: m.streams,
	})
	m.ctrl.Start()

	h.mu.Lock()
	h.members = append(h.members, m)
	h.mu.Unlock()

	go func() {
		for f := range m.inbox {
			if f.Type == transport.KindVideoSignal {
				m.ctrl.HandleFrame(f)
			}
		}
	}()
	t.Cleanup(m.ctrl.Close)
	return m
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// barrier waits until everything queued on c so far has run.
func barrier(c *Controller) {
	done := make(chan struct{})
	if c.post(func() { close(done) }) {
		<-done
	}
}

func allConnected(m *member, n int) bool {
	entries := m.ctrl.Registry().All()
	if len(entries) != n {
		return false
	}
	for _, e := range entries {
		if e.State != peer.StateConnected {
			return false
		}
	}
	return m.streams.Len() == n
}

func newTestController(t *testing.T, self string, net *fakeNet) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := New(Options{Self: self, Name: self, RoomID: "room", Factory: net.factory(self), Out: rec})
	c.Start()
	t.Cleanup(c.Close)
	return c, rec
}

func signal(s transport.VideoSignal) *transport.Frame {
	return transport.SignalFrame("room", &s)
}

func offerFrom(from, to string) *transport.Frame {
	return signal(transport.VideoSignal{
		Type: transport.SignalOffer, From: from, To: to,
		SDP: &transport.SDP{Type: "offer", SDP: "offer " + from + ">" + to},
	})
}

func introFrom(from string) *transport.Frame {
	return signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: from})
}

func answerFrom(from, to string) *transport.Frame {
	return signal(transport.VideoSignal{
		Type: transport.SignalAnswer, From: from, To: to,
		SDP: &transport.SDP{Type: "answer", SDP: "answer " + from + ">" + to},
	})
}

func candidateFrom(from, to, cand string) *transport.Frame {
	return signal(transport.VideoSignal{
		Type: transport.SignalCandidate, From: from, To: to,
		Candidate: &webrtc.ICECandidateInit{Candidate: cand},
	})
}

func TestSequentialJoinsFormFullMesh(t *testing.T) {
	net := newFakeNet()
	h := &hub{}

	ids := []string{"r1", "p1", "p2", "p3"}
	var members []*member
	for _, id := range ids {
		m := h.join(t, net, id)
		members = append(members, m)
		if err := m.ctrl.Introduce(); err != nil {
			t.Fatalf("%s introduce: %v", id, err)
		}
		want := len(members) - 1
		for _, m := range members {
			waitFor(t, fmt.Sprintf("%s connected to %d peers", m.id, want), func() bool {
				return allConnected(m, want)
			})
		}
	}

	for _, m := range members {
		if _, ok := m.ctrl.Registry().Get(m.id); ok {
			t.Fatalf("%s holds an entry for itself", m.id)
		}
		for _, other := range ids {
			if other == m.id {
				continue
			}
			if got := len(m.streams.ForPeer(other)); got != 1 {
				t.Fatalf("%s has %d streams from %s, want 1", m.id, got, other)
			}
		}
	}
}

func TestSimultaneousIntroductionsConnectOnce(t *testing.T) {
	net := newFakeNet()
	h := &hub{}
	a := h.join(t, net, "a")
	b := h.join(t, net, "b")

	var wg sync.WaitGroup
	for _, m := range []*member{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.ctrl.Introduce()
		}()
	}
	wg.Wait()

	for _, m := range []*member{a, b} {
		waitFor(t, m.id+" connected", func() bool { return allConnected(m, 1) })
	}
}

func TestGlareSmallerIDKeepsItsOffer(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "a", net)

	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "b", Username: "bob"}))
	waitFor(t, "offer to b", func() bool { return rec.has(transport.SignalOffer, "b") })
	ours := net.conn("a", "b")

	c.HandleFrame(offerFrom("b", "a"))
	barrier(c)

	e, ok := c.Registry().Get("b")
	if !ok || e.State != peer.StateOfferSent {
		t.Fatalf("entry=%+v ok=%v, want OFFER_SENT", e, ok)
	}
	if e.Name != "bob" {
		t.Fatalf("name=%q, want bob", e.Name)
	}
	if net.conn("a", "b") != ours || net.count() != 1 {
		t.Fatalf("winner replaced its connection")
	}
	if rec.has(transport.SignalAnswer, "b") {
		t.Fatalf("winner answered the losing offer")
	}
}

func TestGlareLargerIDYields(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "b", net)

	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "a"}))
	waitFor(t, "offer to a", func() bool { return rec.has(transport.SignalOffer, "a") })
	abandoned := net.conn("b", "a")

	c.HandleFrame(offerFrom("a", "b"))
	waitFor(t, "answer to a", func() bool { return rec.has(transport.SignalAnswer, "a") })

	if _, _, closed := abandoned.snapshot(); !closed {
		t.Fatalf("abandoned offer connection not closed")
	}
	if net.conn("b", "a") == abandoned {
		t.Fatalf("answer was made on the abandoned connection")
	}
	e, _ := c.Registry().Get("a")
	if e.State != peer.StateAnswerExchanged {
		t.Fatalf("state=%s, want ANSWER_EXCHANGED", e.State)
	}
	if c.Registry().Len() != 1 {
		t.Fatalf("registry holds %d entries, want 1", c.Registry().Len())
	}
}

func TestLocalCandidatesFollowDescription(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "a", net)

	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "b"}))
	waitFor(t, "offer and candidate", func() bool { return len(rec.signals()) >= 2 })

	sigs := rec.signals()
	if sigs[0].Type != transport.SignalOffer || sigs[1].Type != transport.SignalCandidate {
		t.Fatalf("sent %s then %s, want offer then candidate", sigs[0].Type, sigs[1].Type)
	}
	for _, s := range sigs {
		if s.From != "a" || s.To != "b" {
			t.Fatalf("signal %s from=%q to=%q", s.Type, s.From, s.To)
		}
	}
}

func TestRemoteCandidatesBufferedUntilDescriptionApplied(t *testing.T) {
	net := newFakeNet()
	net.gate = make(chan struct{})
	c, rec := newTestController(t, "b", net)

	c.HandleFrame(candidateFrom("a", "b", "c1"))
	c.HandleFrame(candidateFrom("a", "b", "c2"))
	c.HandleFrame(offerFrom("a", "b"))
	c.HandleFrame(candidateFrom("a", "b", "c3"))
	barrier(c)

	e, ok := c.Registry().Get("a")
	if !ok || e.State != peer.StateOfferReceived || e.RemoteSet {
		t.Fatalf("entry=%+v ok=%v, want OFFER_RECEIVED without remote", e, ok)
	}
	if len(e.Pending) != 3 {
		t.Fatalf("pending=%d, want 3", len(e.Pending))
	}

	close(net.gate)
	waitFor(t, "answer", func() bool { return rec.has(transport.SignalAnswer, "a") })

	c.HandleFrame(candidateFrom("a", "b", "c4"))
	barrier(c)

	added, early, _ := net.conn("b", "a").snapshot()
	if early != 0 {
		t.Fatalf("%d candidates applied before the remote description", early)
	}
	want := []string{"c1", "c2", "c3", "c4"}
	if fmt.Sprint(added) != fmt.Sprint(want) {
		t.Fatalf("added=%v, want %v", added, want)
	}
}

func TestIgnoresSignalsNotForUs(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "a", net)

	c.HandleFrame(offerFrom("b", "c"))
	c.HandleFrame(candidateFrom("b", "c", "x"))
	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "a"}))
	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "b", To: "c"}))
	c.HandleFrame(offerFrom("a", "a"))
	barrier(c)

	if c.Registry().Len() != 0 || net.count() != 0 {
		t.Fatalf("registry=%d conns=%d, want none", c.Registry().Len(), net.count())
	}
	if len(c.early) != 0 {
		t.Fatalf("misaddressed candidate was buffered")
	}
	if len(rec.signals()) != 0 {
		t.Fatalf("controller replied to foreign signals")
	}
}

func TestDuplicateIntroductionDuringNegotiationIgnored(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "a", net)

	intro := signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "b"})
	c.HandleFrame(intro)
	c.HandleFrame(intro)
	waitFor(t, "offer", func() bool { return rec.has(transport.SignalOffer, "b") })
	barrier(c)

	if net.count() != 1 {
		t.Fatalf("created %d connections, want 1", net.count())
	}
}

func TestUnexpectedAnswerIgnored(t *testing.T) {
	net := newFakeNet()
	c, _ := newTestController(t, "a", net)

	c.HandleFrame(signal(transport.VideoSignal{
		Type: transport.SignalAnswer, From: "b", To: "a",
		SDP: &transport.SDP{Type: "answer", SDP: "answer"},
	}))
	barrier(c)
	if c.Registry().Len() != 0 {
		t.Fatalf("answer without offer created an entry")
	}
}

func TestPeerLeftReleasesConnection(t *testing.T) {
	net := newFakeNet()
	h := &hub{}
	a := h.join(t, net, "a")
	b := h.join(t, net, "b")
	_ = a.ctrl.Introduce()
	_ = b.ctrl.Introduce()
	waitFor(t, "a connected", func() bool { return allConnected(a, 1) })

	conn := net.conn("a", "b")
	a.ctrl.HandlePresence(&transport.Frame{Type: transport.KindPresence, Event: transport.PresenceLeave, SenderID: "b"})
	barrier(a.ctrl)

	if a.ctrl.Registry().Len() != 0 {
		t.Fatalf("entry for b survived its departure")
	}
	if _, _, closed := conn.snapshot(); !closed {
		t.Fatalf("connection to b not closed")
	}
	if a.streams.Len() != 0 {
		t.Fatalf("streams from b survived its departure")
	}
}

func TestRejoinReplacesConnectedEntry(t *testing.T) {
	net := newFakeNet()
	h := &hub{}
	a := h.join(t, net, "a")
	b := h.join(t, net, "b")
	_ = b.ctrl.Introduce()
	waitFor(t, "a connected", func() bool { return allConnected(a, 1) })
	waitFor(t, "b connected", func() bool { return allConnected(b, 1) })
	first := net.conn("a", "b")

	_ = b.ctrl.Introduce()
	waitFor(t, "reconnected", func() bool {
		return net.conn("a", "b") != first && allConnected(a, 1)
	})
	if _, _, closed := first.snapshot(); !closed {
		t.Fatalf("stale connection not closed")
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "a", net)

	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "b"}))
	waitFor(t, "offer", func() bool { return rec.has(transport.SignalOffer, "b") })

	c.Close()
	c.Close()
	if c.Registry().Len() != 0 {
		t.Fatalf("registry not emptied on close")
	}
	if _, _, closed := net.conn("a", "b").snapshot(); !closed {
		t.Fatalf("connection not closed")
	}
	c.HandleFrame(signal(transport.VideoSignal{Type: transport.SignalIntroduce, From: "c"}))
	if net.count() != 1 {
		t.Fatalf("closed controller still negotiating")
	}
}

func stateOf(c *Controller, id string) (peer.Entry, bool) {
	return c.Registry().Get(id)
}

func TestRejectedRemoteOfferFailsOnlyThatPeer(t *testing.T) {
	net := newFakeNet()
	net.failWith("b", "a", "remote")
	c, rec := newTestController(t, "b", net)

	c.HandleFrame(offerFrom("a", "b"))
	c.HandleFrame(offerFrom("c", "b"))
	waitFor(t, "answer to c", func() bool { return rec.has(transport.SignalAnswer, "c") })
	waitFor(t, "a failed", func() bool {
		e, ok := stateOf(c, "a")
		return ok && e.Failed
	})

	net.conn("b", "c").cb.OnState(webrtc.PeerConnectionStateConnected)
	waitFor(t, "c connected", func() bool {
		e, _ := stateOf(c, "c")
		return e.State == peer.StateConnected
	})

	// Nothing retries on its own.
	time.Sleep(50 * time.Millisecond)
	barrier(c)

	e, _ := stateOf(c, "a")
	if e.State != peer.StateOfferReceived || e.RemoteSet {
		t.Fatalf("failed entry=%+v, want OFFER_RECEIVED without remote", e)
	}
	failed := net.conn("b", "a")
	if n := failed.count("remote"); n != 1 {
		t.Fatalf("remote description applied %d times, want 1", n)
	}
	if n := failed.count("answer"); n != 0 {
		t.Fatalf("answered a rejected offer %d times", n)
	}
	if rec.has(transport.SignalAnswer, "a") {
		t.Fatalf("sent an answer to a")
	}
	if other, _ := stateOf(c, "c"); other.Failed {
		t.Fatalf("c marked failed by a's rejection")
	}
	if net.count() != 2 {
		t.Fatalf("created %d connections, want 2", net.count())
	}
}

func TestFailedAnswerStaysFailed(t *testing.T) {
	net := newFakeNet()
	net.failWith("b", "a", "answer")
	c, rec := newTestController(t, "b", net)

	c.HandleFrame(offerFrom("a", "b"))
	waitFor(t, "a failed", func() bool {
		e, ok := stateOf(c, "a")
		return ok && e.Failed
	})
	time.Sleep(50 * time.Millisecond)
	barrier(c)

	e, _ := stateOf(c, "a")
	if e.State != peer.StateOfferReceived || !e.RemoteSet {
		t.Fatalf("entry=%+v, want OFFER_RECEIVED with remote applied", e)
	}
	if n := net.conn("b", "a").count("answer"); n != 1 {
		t.Fatalf("answer attempted %d times, want 1", n)
	}
	if len(rec.signals()) != 0 {
		t.Fatalf("sent %d signals after a failed answer", len(rec.signals()))
	}
}

func TestFailedEntryReplacedOnlyByFreshNegotiation(t *testing.T) {
	net := newFakeNet()
	net.failWith("a", "b", "offer")
	c, rec := newTestController(t, "a", net)

	c.HandleFrame(introFrom("b"))
	c.HandleFrame(introFrom("c"))
	waitFor(t, "offer to c", func() bool { return rec.has(transport.SignalOffer, "c") })
	waitFor(t, "b failed", func() bool {
		e, ok := stateOf(c, "b")
		return ok && e.Failed
	})
	failed := net.conn("a", "b")

	// A stray answer does not revive the failed entry.
	c.HandleFrame(answerFrom("b", "a"))
	barrier(c)
	if e, _ := stateOf(c, "b"); !e.Failed || e.State != peer.StateOfferSent {
		t.Fatalf("entry after stray answer=%+v", e)
	}
	if n := failed.count("remote"); n != 0 {
		t.Fatalf("applied an answer to a failed connection")
	}
	if rec.has(transport.SignalOffer, "b") {
		t.Fatalf("offer sent to b after its creation failed")
	}

	c.HandleFrame(answerFrom("c", "a"))
	waitFor(t, "c connected", func() bool {
		e, _ := stateOf(c, "c")
		return e.State == peer.StateConnected
	})

	// A transport failure on c is recorded on c alone.
	net.conn("a", "c").cb.OnState(webrtc.PeerConnectionStateFailed)
	waitFor(t, "c failed", func() bool {
		e, _ := stateOf(c, "c")
		return e.Failed
	})
	if e, _ := stateOf(c, "c"); e.State != peer.StateConnected {
		t.Fatalf("c state=%s after transport failure, want CONNECTED", e.State)
	}
	if n := failed.count("offer"); n != 1 {
		t.Fatalf("b offer attempted %d times, want 1", n)
	}

	net.failWith("a", "b", "")
	c.HandleFrame(introFrom("b"))
	waitFor(t, "offer to b", func() bool { return rec.has(transport.SignalOffer, "b") })

	fresh := net.conn("a", "b")
	if fresh == failed {
		t.Fatalf("failed connection reused")
	}
	if _, _, closed := failed.snapshot(); !closed {
		t.Fatalf("failed connection not closed")
	}
	if e, _ := stateOf(c, "b"); e.Failed || e.State != peer.StateOfferSent {
		t.Fatalf("replacement entry=%+v", e)
	}
}

func TestGlareWinnerDropsCandidatesFromAbandonedOffer(t *testing.T) {
	net := newFakeNet()
	c, rec := newTestController(t, "a", net)

	c.HandleFrame(introFrom("b"))
	waitFor(t, "offer to b", func() bool { return rec.has(transport.SignalOffer, "b") })

	c.HandleFrame(offerFrom("b", "a"))
	c.HandleFrame(candidateFrom("b", "a", "abandoned"))
	c.HandleFrame(answerFrom("b", "a"))
	c.HandleFrame(candidateFrom("b", "a", "fresh"))
	conn := net.conn("a", "b")
	waitFor(t, "fresh candidate applied", func() bool {
		added, _, _ := conn.snapshot()
		return slices.Contains(added, "fresh")
	})

	added, _, _ := conn.snapshot()
	if fmt.Sprint(added) != fmt.Sprint([]string{"fresh"}) {
		t.Fatalf("added=%v, want [fresh]", added)
	}
}

func TestEarlyCandidatesCapped(t *testing.T) {
	net := newFakeNet()
	net.gate = make(chan struct{})
	c, _ := newTestController(t, "b", net)
	t.Cleanup(func() { close(net.gate) })

	for i := 0; i < maxEarlyCandidates+6; i++ {
		c.HandleFrame(candidateFrom("a", "b", fmt.Sprintf("c%d", i)))
	}
	c.HandleFrame(offerFrom("a", "b"))
	barrier(c)

	e, ok := stateOf(c, "a")
	if !ok || len(e.Pending) != maxEarlyCandidates {
		t.Fatalf("pending=%d ok=%v, want %d", len(e.Pending), ok, maxEarlyCandidates)
	}
	if e.Pending[0].Candidate != "c0" {
		t.Fatalf("first pending=%q, want c0", e.Pending[0].Candidate)
	}
}
