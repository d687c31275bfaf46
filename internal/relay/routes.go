package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// Terminal clients send no Origin; browsers are not expected here.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Options struct {
	// Secret signs and validates every token.
	Secret string

	// Store defaults to an in-memory store.
	Store Store

	// Admins are the emails that register with the admin role. When empty
	// every account is an admin.
	Admins []string
}

// Server is the development relay: REST endpoints and the collaboration
// channel.
type Server struct {
	hub    *Hub
	store  Store
	issuer *Issuer
	admins map[string]bool
	engine *gin.Engine
}

// NewServer builds the router and starts the hub.
func NewServer(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	s := &Server{
		hub:    NewHub(),
		store:  opts.Store,
		issuer: NewIssuer(opts.Secret),
		admins: make(map[string]bool),
	}
	for _, email := range opts.Admins {
		s.admins[strings.ToLower(email)] = true
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger)
	s.routes()

	go s.hub.Run()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/auth/register", s.register)
	r.POST("/auth/login", s.login)
	r.POST("/auth/refresh", s.refresh)
	r.GET("/auth/invitations", s.requireAuth, s.invitations)

	// The channel carries its token in the query string.
	r.GET("/collaboration/:room_id", s.serveWs)

	authed := r.Group("/", s.requireAuth)
	{
		authed.POST("/rooms", s.createRoom)
		authed.POST("/rooms/join", s.joinRoom)
		authed.GET("/rooms/history", s.roomHistory)
		authed.GET("/rooms/:room_id", s.roomDetails)
		authed.POST("/rooms/:room_id/invite", s.invite)
		authed.POST("/rooms/:room_id/close", s.closeRoom)

		authed.GET("/session/:room_id", s.getSession)
		authed.POST("/session/save", s.saveSession)
		authed.GET("/session/export/:room_id", s.exportSession)
		authed.POST("/session/audit", s.logAudit)
		authed.GET("/session/audit/:room_id", s.auditLogs)

		authed.GET("/chat/:room_id", s.chatHistory)
	}
}

func (s *Server) Handler() http.Handler { return s.engine }
func (s *Server) Hub() *Hub             { return s.hub }
func (s *Server) Issuer() *Issuer       { return s.issuer }
func (s *Server) Store() Store          { return s.store }

// Close disconnects every client and releases the store.
func (s *Server) Close() error {
	s.hub.Stop()
	return s.store.Close()
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("relay listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// serveWs upgrades an authorized member of an open room and starts its
// pumps.
func (s *Server) serveWs(c *gin.Context) {
	roomID := c.Param("room_id")

	claims, err := s.issuer.Parse(c.Query("token"))
	if err != nil || claims.Kind == refreshToken {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: invalid token"})
		return
	}

	room, ok := s.memberRoom(c, roomID, claims.UserID)
	if !ok {
		return
	}
	if !room.Open() {
		c.JSON(http.StatusGone, gin.H{"error": "Room is closed"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	name := claims.Username
	if name == "" {
		name = claims.UserID
	}
	client := &Client{
		hub:      s.hub,
		store:    s.store,
		conn:     conn,
		id:       uuid.NewString(),
		roomID:   roomID,
		userID:   claims.UserID,
		userName: name,
		send:     make(chan []byte, sendBuffer),
	}
	if !s.hub.Register(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// memberRoom loads roomID and checks that userID administers or joined it.
// On failure the response has been written.
func (s *Server) memberRoom(c *gin.Context, roomID, userID string) (*api.Room, bool) {
	room, err := s.store.Room(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		} else {
			s.internalError(c, "load room", err)
		}
		return nil, false
	}
	if !isMember(room, userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "You are not participant of this room"})
		return nil, false
	}
	return room, true
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	slog.Error(op, "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	slog.Debug("request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}
