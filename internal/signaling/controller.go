package signaling

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/peer"
	"github.com/BioHazard786/Coderoom/internal/rtc"
	"github.com/BioHazard786/Coderoom/internal/transport"
	"github.com/pion/webrtc/v4"
)

const (
	taskBuffer         = 1024
	maxEarlyCandidates = 64
)

// PeerConn is a single peer connection as negotiated by the controller.
type PeerConn interface {
	Offer() (webrtc.SessionDescription, error)
	Answer() (webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	Close() error
}

// Factory opens a connection to peerID whose events go to cb.
type Factory func(peerID string, cb rtc.Callbacks) (PeerConn, error)

// RTCFactory builds connections on api, sending the local stream if any.
func RTCFactory(api *rtc.API, local *rtc.LocalStream) Factory {
	return func(peerID string, cb rtc.Callbacks) (PeerConn, error) {
		p, err := api.NewPeer(peerID, local, cb)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Sender delivers outbound frames to the room channel.
type Sender interface {
	Send(*transport.Frame) error
}

// StreamSink receives remote tracks and forgets them when a peer goes away.
type StreamSink interface {
	AddTrack(*rtc.RemoteTrack)
	RemovePeer(peerID string)
}

type Options struct {
	Self     string
	Name     string
	RoomID   string
	Factory  Factory
	Out      Sender
	Streams  StreamSink
	Registry *peer.Registry

	// OnChange runs on the controller goroutine after the peer set or a
	// peer's state changes. It must not block.
	OnChange func()
}

// Controller drives the full-mesh negotiation for one room. Every signal,
// callback and async result is serialized onto a single goroutine so that
// state for a peer is claimed before any asynchronous step starts.
type Controller struct {
	self     string
	name     string
	roomID   string
	newPeer  Factory
	out      Sender
	streams  StreamSink
	registry *peer.Registry
	onChange func()

	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool

	// owned by the run goroutine
	gen   uint64
	early map[string][]webrtc.ICECandidateInit
}

func New(opts Options) *Controller {
	reg := opts.Registry
	if reg == nil {
		reg = peer.NewRegistry(opts.Self)
	}
	streams := opts.Streams
	if streams == nil {
		streams = rtc.NewStreamSet()
	}
	return &Controller{
		self:     opts.Self,
		name:     opts.Name,
		roomID:   opts.RoomID,
		newPeer:  opts.Factory,
		out:      opts.Out,
		streams:  streams,
		registry: reg,
		onChange: opts.OnChange,
		tasks:    make(chan func(), taskBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		early:    make(map[string][]webrtc.ICECandidateInit),
	}
}

// Registry exposes the peer table for display.
func (c *Controller) Registry() *peer.Registry {
	return c.registry
}

// Start launches the controller goroutine.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		go c.run()
	})
}

// Close stops the controller and releases every peer connection. Pending
// async results are discarded.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		if c.started.Load() {
			<-c.done
		}
		c.registry.CloseAll()
	})
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.tasks:
			fn()
		case <-c.quit:
			return
		}
	}
}

// post queues fn for the controller goroutine. It reports false once the
// controller is closed.
func (c *Controller) post(fn func()) bool {
	select {
	case <-c.quit:
		return false
	default:
	}
	select {
	case c.tasks <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// Introduce announces this participant to everyone already in the room.
// Existing members answer with offers.
func (c *Controller) Introduce() error {
	return c.out.Send(transport.SignalFrame(c.roomID, &transport.VideoSignal{
		Type:     transport.SignalIntroduce,
		From:     c.self,
		UserID:   c.self,
		Username: c.name,
	}))
}

// HandleFrame accepts a video-signal frame from the channel reader.
func (c *Controller) HandleFrame(f *transport.Frame) {
	if f.VideoSignal == nil {
		return
	}
	sig := *f.VideoSignal
	name := sig.Username
	if name == "" {
		name = f.SenderName
	}
	c.post(func() { c.handleSignal(&sig, name) })
}

// HandlePresence tears down peers the server reports as gone.
func (c *Controller) HandlePresence(f *transport.Frame) {
	if f.Event == transport.PresenceLeave {
		c.PeerLeft(f.SenderID)
	}
}

// PeerLeft removes id and its streams.
func (c *Controller) PeerLeft(id string) {
	if id == "" || id == c.self {
		return
	}
	c.post(func() {
		delete(c.early, id)
		removed := c.registry.Remove(id)
		c.streams.RemovePeer(id)
		if removed {
			slog.Info("peer left", "peer", id)
			c.changed()
		}
	})
}

func (c *Controller) handleSignal(s *transport.VideoSignal, name string) {
	from := s.Sender()
	if from == "" || from == c.self {
		return
	}
	if s.To != "" && s.To != c.self {
		return
	}
	if s.Type != transport.SignalIntroduce && s.To == "" {
		return
	}

	switch s.Type {
	case transport.SignalIntroduce:
		c.onIntroduce(from, name)
	case transport.SignalOffer:
		c.onOffer(from, name, s.SDP.Description(s.Type))
	case transport.SignalAnswer:
		c.onAnswer(from, s.SDP.Description(s.Type))
	case transport.SignalCandidate:
		c.onRemoteCandidate(from, *s.Candidate)
	default:
		slog.Warn("ignoring signal", "type", s.Type, "peer", from)
	}
}

// replaceable reports whether a new negotiation may discard e. Anything
// still negotiating is left alone.
func replaceable(e peer.Entry) bool {
	return e.Failed || !e.State.Negotiating()
}

func (c *Controller) discard(id string) {
	c.registry.Remove(id)
	c.streams.RemovePeer(id)
}

func (c *Controller) onIntroduce(from, name string) {
	if e, ok := c.registry.Get(from); ok {
		if !replaceable(e) {
			slog.Debug("duplicate introduction", "peer", from, "state", e.State)
			return
		}
		slog.Info("peer rejoined", "peer", from)
		c.discard(from)
	}

	entry, conn, ok := c.claim(from, name, peer.StateIntroduced)
	if !ok {
		return
	}
	c.registry.Transition(from, peer.StateIntroduced, peer.StateOfferSent)
	c.changed()

	gen := entry.Generation
	go func() {
		desc, err := conn.Offer()
		c.post(func() { c.offerCreated(from, gen, desc, err) })
	}()
}

func (c *Controller) onOffer(from, name string, desc webrtc.SessionDescription) {
	if e, ok := c.registry.Get(from); ok {
		switch {
		case e.State == peer.StateOfferSent && !e.Failed:
			if c.self < from {
				slog.Debug("glare: keeping our offer", "peer", from)
				return
			}
			slog.Debug("glare: yielding to remote offer", "peer", from)
			if name == "" {
				name = e.Name
			}
			c.discard(from)
		case replaceable(e):
			if name == "" {
				name = e.Name
			}
			c.discard(from)
		default:
			slog.Debug("duplicate offer", "peer", from, "state", e.State)
			return
		}
	}

	entry, conn, ok := c.claim(from, name, peer.StateOfferReceived)
	if !ok {
		return
	}
	c.changed()

	gen := entry.Generation
	go func() {
		err := conn.SetRemoteDescription(desc)
		c.post(func() { c.remoteApplied(from, gen, err, true) })
	}()
}

func (c *Controller) onAnswer(from string, desc webrtc.SessionDescription) {
	e, ok := c.registry.Get(from)
	if !ok || e.Failed || !c.registry.Transition(from, peer.StateOfferSent, peer.StateAnswerExchanged) {
		slog.Debug("unexpected answer", "peer", from)
		return
	}
	gen := e.Generation
	// The answerer holds its own candidates until the answer is out, so
	// anything buffered before it came from an offer it abandoned in glare.
	var stale int
	c.registry.Update(from, gen, func(e *peer.Entry) {
		stale, e.Pending = len(e.Pending), nil
	})
	if stale > 0 {
		slog.Debug("dropping candidates from abandoned offer", "peer", from, "count", stale)
	}
	c.changed()

	conn := e.Conn.(PeerConn)
	go func() {
		err := conn.SetRemoteDescription(desc)
		c.post(func() { c.remoteApplied(from, gen, err, false) })
	}()
}

func (c *Controller) onRemoteCandidate(from string, cand webrtc.ICECandidateInit) {
	e, ok := c.registry.Get(from)
	if !ok {
		if len(c.early[from]) >= maxEarlyCandidates {
			slog.Warn("dropping early candidate", "peer", from, "buffered", maxEarlyCandidates)
			return
		}
		c.early[from] = append(c.early[from], cand)
		return
	}
	if !e.RemoteSet {
		c.registry.Update(from, e.Generation, func(e *peer.Entry) {
			e.Pending = append(e.Pending, cand)
		})
		return
	}
	if err := e.Conn.(PeerConn).AddICECandidate(cand); err != nil {
		slog.Warn("adding remote candidate", "peer", from, "error", err)
	}
}

// claim creates a connection for from and records it in state before any
// async work begins.
func (c *Controller) claim(from, name string, state peer.State) (*peer.Entry, PeerConn, bool) {
	c.gen++
	gen := c.gen

	conn, err := c.newPeer(from, c.callbacks(from, gen))
	if err != nil {
		slog.Error("creating peer connection", "peer", from, "error", err)
		return nil, nil, false
	}

	entry := &peer.Entry{
		PeerID:     from,
		Name:       name,
		Conn:       conn,
		State:      state,
		Generation: gen,
		Pending:    c.early[from],
	}
	delete(c.early, from)

	if !c.registry.Claim(entry) {
		conn.Close()
		return nil, nil, false
	}
	return entry, conn, true
}

func (c *Controller) callbacks(from string, gen uint64) rtc.Callbacks {
	return rtc.Callbacks{
		OnCandidate: func(cand webrtc.ICECandidateInit) {
			c.post(func() { c.onLocalCandidate(from, gen, cand) })
		},
		OnState: func(s webrtc.PeerConnectionState) {
			c.post(func() { c.onConnState(from, gen, s) })
		},
		OnTrack: func(t *rtc.RemoteTrack) {
			c.post(func() {
				if e, ok := c.registry.Get(from); ok && e.Generation == gen {
					c.streams.AddTrack(t)
					c.changed()
				}
			})
		},
	}
}

func (c *Controller) offerCreated(from string, gen uint64, desc webrtc.SessionDescription, err error) {
	if err != nil {
		c.fail(from, gen, err)
		return
	}

	var outbox []webrtc.ICECandidateInit
	if !c.registry.Update(from, gen, func(e *peer.Entry) {
		e.LocalSent = true
		outbox, e.Outbox = e.Outbox, nil
	}) {
		slog.Debug("dropping stale offer", "peer", from)
		return
	}

	c.send(&transport.VideoSignal{Type: transport.SignalOffer, From: c.self, To: from, SDP: transport.NewSDP(desc)})
	for _, cand := range outbox {
		c.sendCandidate(from, cand)
	}
}

func (c *Controller) answerCreated(from string, gen uint64, desc webrtc.SessionDescription, err error) {
	if err != nil {
		c.fail(from, gen, err)
		return
	}

	var outbox []webrtc.ICECandidateInit
	if !c.registry.Update(from, gen, func(e *peer.Entry) {
		if e.State == peer.StateOfferReceived {
			e.State = peer.StateAnswerExchanged
		}
		e.LocalSent = true
		outbox, e.Outbox = e.Outbox, nil
	}) {
		slog.Debug("dropping stale answer", "peer", from)
		return
	}

	c.send(&transport.VideoSignal{Type: transport.SignalAnswer, From: c.self, To: from, SDP: transport.NewSDP(desc)})
	for _, cand := range outbox {
		c.sendCandidate(from, cand)
	}
	c.changed()
}

// remoteApplied flushes buffered candidates once the remote description is
// in place, in the order they arrived. The answering side then creates
// its answer.
func (c *Controller) remoteApplied(from string, gen uint64, err error, answer bool) {
	if err != nil {
		c.fail(from, gen, err)
		return
	}

	var (
		pending []webrtc.ICECandidateInit
		conn    PeerConn
	)
	if !c.registry.Update(from, gen, func(e *peer.Entry) {
		e.RemoteSet = true
		pending, e.Pending = e.Pending, nil
		conn = e.Conn.(PeerConn)
	}) {
		return
	}

	for _, cand := range pending {
		if err := conn.AddICECandidate(cand); err != nil {
			slog.Warn("adding buffered candidate", "peer", from, "error", err)
		}
	}

	if answer {
		go func() {
			desc, err := conn.Answer()
			c.post(func() { c.answerCreated(from, gen, desc, err) })
		}()
	}
}

func (c *Controller) onLocalCandidate(from string, gen uint64, cand webrtc.ICECandidateInit) {
	var now bool
	ok := c.registry.Update(from, gen, func(e *peer.Entry) {
		if e.LocalSent {
			now = true
			return
		}
		e.Outbox = append(e.Outbox, cand)
	})
	if ok && now {
		c.sendCandidate(from, cand)
	}
}

func (c *Controller) onConnState(from string, gen uint64, s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		if c.registry.Update(from, gen, func(e *peer.Entry) {
			if e.State == peer.StateAnswerExchanged {
				e.State = peer.StateConnected
			}
		}) {
			slog.Info("peer connected", "peer", from)
			c.changed()
		}
	case webrtc.PeerConnectionStateFailed:
		c.fail(from, gen, errs.NewPeerError("connect", from, errs.ErrNegotiation))
	case webrtc.PeerConnectionStateDisconnected:
		slog.Warn("peer connection interrupted", "peer", from)
	}
}

// fail marks the entry failed. It stays in place until the peer leaves or
// a fresh introduction or offer replaces it.
func (c *Controller) fail(from string, gen uint64, err error) {
	if c.registry.Update(from, gen, func(e *peer.Entry) { e.Failed = true }) {
		slog.Error("negotiation failed", "peer", from, "error", err)
		c.changed()
	}
}

func (c *Controller) send(s *transport.VideoSignal) {
	if err := c.out.Send(transport.SignalFrame(c.roomID, s)); err != nil {
		slog.Warn("sending signal", "type", s.Type, "peer", s.To, "error", err)
	}
}

func (c *Controller) sendCandidate(to string, cand webrtc.ICECandidateInit) {
	c.send(&transport.VideoSignal{Type: transport.SignalCandidate, From: c.self, To: to, Candidate: &cand})
}

func (c *Controller) changed() {
	if c.onChange != nil {
		c.onChange()
	}
}
