package rtc

import (
	"log/slog"
	"sync/atomic"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/pion/webrtc/v4"
)

// Callbacks receive peer connection events. They run on pion goroutines and
// must not block.
type Callbacks struct {
	OnCandidate func(webrtc.ICECandidateInit)
	OnState     func(webrtc.PeerConnectionState)
	OnTrack     func(*RemoteTrack)
}

// RemoteTrack is a media track received from a peer.
type RemoteTrack struct {
	PeerID   string
	StreamID string
	TrackID  string
	Kind     string
	Codec    string

	packets atomic.Uint64
	bytes   atomic.Uint64
}

// Stats returns the packets and bytes received so far.
func (t *RemoteTrack) Stats() (packets, bytes uint64) {
	return t.packets.Load(), t.bytes.Load()
}

// Peer wraps one pion peer connection to a remote participant.
type Peer struct {
	id string
	pc *webrtc.PeerConnection
}

// NewPeer creates a connection to peerID. Kinds the local stream provides
// are sent; the rest are receive-only so remote media still arrives.
func (a *API) NewPeer(peerID string, local *LocalStream, cb Callbacks) (*Peer, error) {
	pc, err := a.api.NewPeerConnection(a.config)
	if err != nil {
		return nil, errs.NewPeerError("create peer connection", peerID, err)
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if track := local.Track(kind); track != nil {
			sender, err := pc.AddTrack(track)
			if err != nil {
				pc.Close()
				return nil, errs.NewPeerError("add "+kind.String()+" track", peerID, err)
			}
			go drainRTCP(sender)
			continue
		}

		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			pc.Close()
			return nil, errs.NewPeerError("add "+kind.String()+" transceiver", peerID, err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil || cb.OnCandidate == nil {
			return
		}
		cb.OnCandidate(c.ToJSON())
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Debug("peer connection state", "peer", peerID, "state", state.String())
		if cb.OnState != nil {
			cb.OnState(state)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		remote := &RemoteTrack{
			PeerID:   peerID,
			StreamID: track.StreamID(),
			TrackID:  track.ID(),
			Kind:     track.Kind().String(),
			Codec:    track.Codec().MimeType,
		}
		if cb.OnTrack != nil {
			cb.OnTrack(remote)
		}
		go consume(track, remote)
	})

	return &Peer{id: peerID, pc: pc}, nil
}

// Offer creates an offer and applies it as the local description.
func (p *Peer) Offer() (webrtc.SessionDescription, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, errs.NewPeerError("create offer", p.id, err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, errs.NewPeerError("set local description", p.id, err)
	}
	return *p.pc.LocalDescription(), nil
}

// Answer creates an answer to the applied remote offer and applies it as
// the local description.
func (p *Peer) Answer() (webrtc.SessionDescription, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, errs.NewPeerError("create answer", p.id, err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, errs.NewPeerError("set local description", p.id, err)
	}
	return *p.pc.LocalDescription(), nil
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return errs.NewPeerError("set remote description", p.id, err)
	}
	return nil
}

func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if err := p.pc.AddICECandidate(c); err != nil {
		return errs.NewPeerError("add ICE candidate", p.id, err)
	}
	return nil
}

func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	return p.pc.ConnectionState()
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

// drainRTCP reads incoming RTCP so interceptors (NACK, reports) run.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// consume reads a remote track until it ends, counting what arrives.
// A terminal cannot render the media; the counters feed the peer list.
func consume(track *webrtc.TrackRemote, remote *RemoteTrack) {
	buf := make([]byte, 1500)
	for {
		n, _, err := track.Read(buf)
		if err != nil {
			return
		}
		remote.packets.Add(1)
		remote.bytes.Add(uint64(n))
	}
}
