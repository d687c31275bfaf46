package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BioHazard786/Coderoom/internal/dns"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024 // full-document edits and SDP
	sendBuffer     = 256
)

// Handler receives decoded frames on the client's reader goroutine, in
// arrival order.
type Handler func(*Frame)

// Client owns the single websocket to a room and multiplexes frames by kind.
// Handlers must be registered before Connect.
type Client struct {
	url     string
	netDial func(ctx context.Context, network, addr string) (net.Conn, error)

	conn     *websocket.Conn
	outgoing chan []byte
	quit     chan struct{}
	done     chan struct{}

	mu         sync.RWMutex
	handlers   map[Kind][]Handler
	onClosed   []Handler
	err        error
	quitOnce   sync.Once
	finishOnce sync.Once
}

// Option customizes a Client.
type Option func(*Client)

// WithNetDial replaces the DNS-fallback dialer.
func WithNetDial(dial func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(c *Client) { c.netDial = dial }
}

// NewClient creates a client for a full channel URL, token included.
func NewClient(channelURL string, opts ...Option) *Client {
	c := &Client{
		url:      channelURL,
		netDial:  dns.DialContext,
		outgoing: make(chan []byte, sendBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		handlers: make(map[Kind][]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Handle registers h for frames of kind k. Frames that announce a room
// closure go to OnRoomClosed handlers instead.
func (c *Client) Handle(k Kind, h Handler) {
	c.mu.Lock()
	c.handlers[k] = append(c.handlers[k], h)
	c.mu.Unlock()
}

// OnRoomClosed registers h for room closure frames.
func (c *Client) OnRoomClosed(h Handler) {
	c.mu.Lock()
	c.onClosed = append(c.onClosed, h)
	c.mu.Unlock()
}

// Connect dials the channel and starts the read and write pumps. A rejected
// handshake because of credentials yields errs.ErrUnauthorized.
func (c *Client) Connect(ctx context.Context) error {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 15 * time.Second,
		NetDialContext:   c.netDial,
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return errs.Wrap("connect to room", errs.ErrUnauthorized, resp.Status)
		}
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return errs.Wrap("connect to room", errs.ErrNotFound, resp.Status)
		}
		return errs.New("connect to room", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Send queues f for the write pump. It is the only way to write to the
// channel.
func (c *Client) Send(f *Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return errs.New("encode frame", err)
	}
	if c.conn == nil {
		return errs.ErrNotConnected
	}

	select {
	case <-c.done:
		return errs.ErrChannelClosed
	case <-c.quit:
		return errs.ErrChannelClosed
	default:
	}

	select {
	case c.outgoing <- data:
		return nil
	case <-c.done:
		return errs.ErrChannelClosed
	case <-c.quit:
		return errs.ErrChannelClosed
	}
}

// Done is closed once the channel has stopped reading.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err reports why the channel stopped. It is nil after a local Close.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Close sends a close frame and tears the connection down. There is no
// reconnection; callers decide what to do once Done fires.
func (c *Client) Close() {
	c.quitOnce.Do(func() { close(c.quit) })
	if c.conn == nil {
		c.finish(nil)
	}
}

// readPump reads frames and dispatches them until the connection ends.
func (c *Client) readPump() {
	var readErr error
	defer func() {
		c.conn.Close()
		c.finish(readErr)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			readErr = err
			return
		}

		f, err := Decode(data)
		if err != nil {
			slog.Warn("dropping malformed frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

// writePump writes queued frames and sends periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Error("channel write failed", "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.quit:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-c.done:
			return
		}
	}
}

func (c *Client) dispatch(f *Frame) {
	c.mu.RLock()
	var targets []Handler
	if f.IsRoomClosed() {
		targets = append(targets, c.onClosed...)
	} else {
		targets = append(targets, c.handlers[f.Type]...)
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		slog.Debug("no handler for frame", "type", f.Type)
		return
	}
	for _, h := range targets {
		h(f)
	}
}

func (c *Client) finish(err error) {
	c.finishOnce.Do(func() {
		select {
		case <-c.quit:
			err = nil
		default:
		}
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = errs.ErrChannelClosed
			} else {
				err = fmt.Errorf("%w: %w", errs.ErrChannelClosed, err)
			}
		}
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

// IsClosed reports whether err means the channel is gone.
func IsClosed(err error) bool {
	return errors.Is(err, errs.ErrChannelClosed)
}
