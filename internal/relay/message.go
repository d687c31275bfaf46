package relay

import (
	"encoding/json"
	"time"

	"github.com/BioHazard786/Coderoom/internal/transport"
)

// message is a frame on its way through the hub.
type message struct {
	roomID string
	frame  *transport.Frame

	// client is nil for frames the relay originates.
	client *Client
}

const systemSender = "System"

// roomClosedText is what clients show when an admin closes the room.
const roomClosedText = "Room has been closed by admin. You will be logged out."

func presenceFrame(roomID, event string, c *Client) *transport.Frame {
	return &transport.Frame{
		Type:       transport.KindPresence,
		Event:      event,
		RoomID:     roomID,
		SenderID:   c.userID,
		SenderName: c.userName,
		Timestamp:  time.Now(),
	}
}

func roomClosedFrame(roomID, adminID string) *transport.Frame {
	return &transport.Frame{
		Type:       transport.KindRoomClosed,
		RoomID:     roomID,
		SenderID:   adminID,
		SenderName: systemSender,
		Content:    roomClosedText,
		Timestamp:  time.Now(),
	}
}

func encode(f *transport.Frame) ([]byte, error) {
	return json.Marshal(f)
}
