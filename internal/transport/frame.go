package transport

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/pion/webrtc/v4"
)

// Kind is the top-level tag of a channel frame.
type Kind string

const (
	KindEdit        Kind = "edit"
	KindChat        Kind = "chat"
	KindVideoSignal Kind = "video-signal"
	KindPresence    Kind = "presence"
	KindRoomClosed  Kind = "room_closed"
)

// SignalType tags a video signal payload.
type SignalType string

const (
	SignalIntroduce SignalType = "video-introduce"
	SignalOffer     SignalType = "video-offer"
	SignalAnswer    SignalType = "video-answer"
	SignalCandidate SignalType = "ice-candidate"
)

// Presence events carried in Frame.Event.
const (
	PresenceJoin  = "join"
	PresenceLeave = "leave"
)

const roomClosedMarker = "Room has been closed"

// Frame is one message on the collaboration channel. Server-relayed frames
// carry the sender identity and timestamp stamped by the server.
type Frame struct {
	Type        Kind         `json:"type,omitempty"`
	Content     string       `json:"content,omitempty"`
	SenderID    string       `json:"sender_id,omitempty"`
	SenderName  string       `json:"sender_name,omitempty"`
	Timestamp   time.Time    `json:"timestamp,omitzero"`
	RoomID      string       `json:"room_id,omitempty"`
	Event       string       `json:"event,omitempty"`
	VideoSignal *VideoSignal `json:"videoSignal,omitempty"`
}

// VideoSignal is the payload of a video-signal frame.
type VideoSignal struct {
	Type      SignalType               `json:"type"`
	From      string                   `json:"from,omitempty"`
	To        string                   `json:"to,omitempty"`
	SDP       *SDP                     `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
	UserID    string                   `json:"userId,omitempty"`
	Username  string                   `json:"username,omitempty"`
}

// Sender returns the originating peer. Introductions may only carry userId.
func (s *VideoSignal) Sender() string {
	if s.From != "" {
		return s.From
	}
	return s.UserID
}

// SDP is a session description. On the wire it is either the
// {type, sdp} object or a bare SDP string.
type SDP struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

func (s *SDP) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.SDP)
	}
	type plain SDP
	return json.Unmarshal(data, (*plain)(s))
}

// Description converts to a pion session description, filling the type
// from the signal when the wire form omitted it.
func (s *SDP) Description(signal SignalType) webrtc.SessionDescription {
	desc := webrtc.SessionDescription{SDP: s.SDP, Type: webrtc.NewSDPType(s.Type)}
	if desc.Type == webrtc.SDPTypeUnknown {
		switch signal {
		case SignalOffer:
			desc.Type = webrtc.SDPTypeOffer
		case SignalAnswer:
			desc.Type = webrtc.SDPTypeAnswer
		}
	}
	return desc
}

// NewSDP wraps a pion session description for the wire.
func NewSDP(desc webrtc.SessionDescription) *SDP {
	return &SDP{Type: desc.Type.String(), SDP: desc.SDP}
}

// IsRoomClosed reports whether the frame announces that the room was closed.
// Older servers only signal this through the content text of a frame with
// some other type. Edits and chat carry user text and never count.
func (f *Frame) IsRoomClosed() bool {
	switch f.Type {
	case KindRoomClosed:
		return true
	case KindEdit, KindChat, KindVideoSignal, KindPresence:
		return false
	}
	return strings.Contains(f.Content, roomClosedMarker)
}

// Decode parses and validates a raw frame.
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errs.Wrap("decode frame", errs.ErrMalformedFrame, err.Error())
	}

	if f.Type == "" {
		if f.VideoSignal == nil {
			return nil, errs.Wrap("decode frame", errs.ErrMalformedFrame, "missing type")
		}
		f.Type = KindVideoSignal
	}

	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Frame) validate() error {
	switch f.Type {
	case KindVideoSignal:
		return f.VideoSignal.validate()
	case KindPresence:
		if f.Event != PresenceJoin && f.Event != PresenceLeave {
			return errs.Wrap("decode frame", errs.ErrMalformedFrame, "unknown presence event "+f.Event)
		}
		if f.SenderID == "" {
			return errs.Wrap("decode frame", errs.ErrMalformedFrame, "presence without sender")
		}
	}
	return nil
}

func (s *VideoSignal) validate() error {
	if s == nil {
		return errs.Wrap("decode frame", errs.ErrMalformedFrame, "video-signal without payload")
	}
	if s.Sender() == "" {
		return errs.Wrap("decode signal", errs.ErrMalformedFrame, "missing from")
	}

	switch s.Type {
	case SignalIntroduce:
		return nil
	case SignalOffer, SignalAnswer:
		if s.SDP == nil || s.SDP.SDP == "" {
			return errs.Wrap("decode signal", errs.ErrMalformedFrame, string(s.Type)+" without sdp")
		}
	case SignalCandidate:
		if s.Candidate == nil {
			return errs.Wrap("decode signal", errs.ErrMalformedFrame, "ice-candidate without candidate")
		}
	default:
		return errs.Wrap("decode signal", errs.ErrUnexpectedSignal, string(s.Type))
	}

	if s.To == "" {
		return errs.Wrap("decode signal", errs.ErrMalformedFrame, string(s.Type)+" without to")
	}
	return nil
}

// Constructors for outbound frames.

func EditFrame(roomID, content string) *Frame {
	return &Frame{Type: KindEdit, RoomID: roomID, Content: content}
}

func ChatFrame(roomID, content string) *Frame {
	return &Frame{Type: KindChat, RoomID: roomID, Content: content}
}

func SignalFrame(roomID string, s *VideoSignal) *Frame {
	return &Frame{Type: KindVideoSignal, RoomID: roomID, VideoSignal: s}
}
