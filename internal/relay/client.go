package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/transport"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Whole-document edits ride on single frames.
	maxMessageSize = 1024 * 1024

	sendBuffer   = 256
	storeTimeout = 5 * time.Second
)

// Client is one websocket connection to a room.
type Client struct {
	hub   *Hub
	store Store
	conn  *websocket.Conn

	// id identifies the connection; a user may hold several.
	id       string
	roomID   string
	userID   string
	userName string

	// send is owned by the hub, which closes it on removal.
	send chan []byte
}

// readPump stamps each frame with the sender's identity and hands it to
// the hub. Chat lines are persisted first.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("read failed", "conn", c.id, "error", err)
			}
			return
		}

		f, err := transport.Decode(data)
		if err != nil {
			slog.Warn("dropping frame", "conn", c.id, "error", err)
			continue
		}
		if f.Type == transport.KindPresence || f.Type == transport.KindRoomClosed {
			slog.Warn("dropping client-originated frame", "conn", c.id, "type", f.Type)
			continue
		}

		f.RoomID = c.roomID
		f.SenderID = c.userID
		f.SenderName = c.userName
		f.Timestamp = time.Now()

		if f.Type == transport.KindChat {
			c.saveChat(f)
		}
		c.hub.Broadcast(c.roomID, f, c)
	}
}

func (c *Client) saveChat(f *transport.Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	err := c.store.AppendChat(ctx, &api.ChatMessage{
		RoomID:     f.RoomID,
		SenderID:   f.SenderID,
		SenderName: f.SenderName,
		Content:    f.Content,
		Timestamp:  f.Timestamp,
	})
	if err != nil {
		slog.Error("saving chat message", "room", f.RoomID, "error", err)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("write failed", "conn", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
