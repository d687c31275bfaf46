package relay

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/BioHazard786/Coderoom/internal/transport"
)

// Hub is the central brain of the relay. A single goroutine (Run) owns every
// live room and its members.
type Hub struct {
	rooms map[string]*room

	register   chan *Client
	unregister chan *Client
	broadcast  chan *message
	closeRoom  chan closeRequest
	count      chan countRequest

	quit chan struct{}
	done chan struct{}
}

type closeRequest struct {
	frame *transport.Frame
	reply chan int
}

type countRequest struct {
	roomID string
	reply  chan int
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]*room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *message),
		closeRoom:  make(chan closeRequest),
		count:      make(chan countRequest),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// generateRoomID creates a memorable room ID from four distinct word lists,
// e.g. "kitten-waffle-stardust-happy". taken reports ids already in use.
func generateRoomID(taken func(string) bool) string {
	allWords := [][]string{animals, dishes, names, randomWords, adjectives, extras}

	for {
		used := make(map[int]bool)
		words := make([]any, 0, 4)
		for len(words) < 4 {
			list := randomIndex(len(allWords))
			if used[list] {
				continue
			}
			used[list] = true
			words = append(words, allWords[list][randomIndex(len(allWords[list]))])
		}

		id := fmt.Sprintf("%s-%s-%s-%s", words...)
		if !taken(id) {
			return id
		}
	}
}

// randomIndex returns a cryptographically secure random index below max.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic(fmt.Sprintf("failed to generate random index: %v", err))
	}
	return int(n.Int64())
}

// Register adds c to its room. It reports false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast relays f to every member of roomID, the sender included.
func (h *Hub) Broadcast(roomID string, f *transport.Frame, from *Client) {
	select {
	case h.broadcast <- &message{roomID: roomID, frame: f, client: from}:
	case <-h.done:
	}
}

// CloseRoom delivers f to every member, then disconnects them all. It
// returns how many members were connected.
func (h *Hub) CloseRoom(f *transport.Frame) int {
	req := closeRequest{frame: f, reply: make(chan int, 1)}
	select {
	case h.closeRoom <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// Count returns the number of connections in roomID.
func (h *Hub) Count(roomID string) int {
	req := countRequest{roomID: roomID, reply: make(chan int, 1)}
	select {
	case h.count <- req:
		return <-req.reply
	case <-h.done:
		return 0
	}
}

// Stop ends Run and disconnects every client.
func (h *Hub) Stop() {
	select {
	case <-h.quit:
	default:
		close(h.quit)
	}
	<-h.done
}

// Run is the single goroutine that manages all rooms and clients.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			r, ok := h.rooms[client.roomID]
			if !ok {
				r = newRoom(client.roomID)
				h.rooms[r.id] = r
			}
			r.members[client] = true
			slog.Info("client joined", "room", r.id, "user", client.userID, "conn", client.id, "members", len(r.members))

			h.fanout(r, presenceFrame(r.id, transport.PresenceJoin, client), client)

		case client := <-h.unregister:
			h.leave(client)

		case msg := <-h.broadcast:
			r, ok := h.rooms[msg.roomID]
			if !ok || (msg.client != nil && !r.members[msg.client]) {
				continue
			}
			h.fanout(r, msg.frame, nil)

		case req := <-h.closeRoom:
			r, ok := h.rooms[req.frame.RoomID]
			if !ok {
				req.reply <- 0
				continue
			}
			n := len(r.members)
			h.fanout(r, req.frame, nil)
			for c := range r.members {
				close(c.send)
			}
			delete(h.rooms, r.id)
			slog.Info("room closed", "room", r.id, "members", n)
			req.reply <- n

		case req := <-h.count:
			n := 0
			if r, ok := h.rooms[req.roomID]; ok {
				n = len(r.members)
			}
			req.reply <- n

		case <-h.quit:
			for _, r := range h.rooms {
				for c := range r.members {
					close(c.send)
				}
			}
			h.rooms = make(map[string]*room)
			return
		}
	}
}

// leave removes c and tells the rest of the room.
func (h *Hub) leave(c *Client) {
	r, ok := h.rooms[c.roomID]
	if !ok || !r.members[c] {
		return
	}
	delete(r.members, c)
	close(c.send)
	slog.Info("client left", "room", r.id, "user", c.userID, "conn", c.id, "members", len(r.members))

	if r.empty() {
		delete(h.rooms, r.id)
		return
	}
	h.fanout(r, presenceFrame(r.id, transport.PresenceLeave, c), nil)
}

// fanout writes f to every member except skip. Members whose buffer is full
// are dropped.
func (h *Hub) fanout(r *room, f *transport.Frame, skip *Client) {
	data, err := encode(f)
	if err != nil {
		slog.Error("encode frame", "room", r.id, "error", err)
		return
	}

	var slow []*Client
	for c := range r.members {
		if c == skip {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		slog.Warn("dropping slow client", "room", r.id, "user", c.userID)
		h.leave(c)
	}
}
