package relay

import (
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	DefaultInviteLimit = 3
	InvitationTTL      = 24 * time.Hour

	statusActive = "active"
	statusClosed = "closed"
)

func isMember(r *api.Room, userID string) bool {
	return r.AdminID == userID || slices.Contains(r.Participants, userID)
}

func (s *Server) createRoom(c *gin.Context) {
	claims := claimsFrom(c)
	if claims.Role != credentials.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only admins can create rooms"})
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Room name is required"})
		return
	}

	ctx := c.Request.Context()
	id := generateRoomID(func(id string) bool {
		_, err := s.store.Room(ctx, id)
		return err == nil
	})
	room := &api.Room{
		ID:           id,
		Name:         req.Name,
		AdminID:      claims.UserID,
		CreatedAt:    time.Now(),
		InviteLimit:  DefaultInviteLimit,
		Participants: []string{},
		Status:       statusActive,
	}
	if err := s.store.PutRoom(ctx, room); err != nil {
		s.internalError(c, "create room", err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

// adminRoom loads roomID and checks that the caller administers it.
func (s *Server) adminRoom(c *gin.Context) (*api.Room, bool) {
	claims := claimsFrom(c)
	room, err := s.store.Room(c.Request.Context(), c.Param("room_id"))
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		} else {
			s.internalError(c, "load room", err)
		}
		return nil, false
	}
	if room.AdminID != claims.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only admin can manage the room"})
		return nil, false
	}
	return room, true
}

func (s *Server) invite(c *gin.Context) {
	room, ok := s.adminRoom(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	n, err := s.store.InvitationCount(ctx, room.ID)
	if err != nil {
		s.internalError(c, "count invitations", err)
		return
	}
	if n >= room.InviteLimit {
		c.JSON(http.StatusForbidden, gin.H{"error": "Invite limit reached for this room"})
		return
	}

	// The body is optional.
	var req struct {
		InvitedEmail string `json:"invited_email"`
	}
	_ = c.ShouldBindJSON(&req)

	now := time.Now()
	inv := &api.Invitation{
		ID:           uuid.NewString(),
		RoomID:       room.ID,
		Token:        uuid.NewString(),
		CreatedAt:    now,
		ExpiresAt:    now.Add(InvitationTTL),
		InvitedEmail: req.InvitedEmail,
	}
	if err := s.store.PutInvitation(ctx, inv); err != nil {
		s.internalError(c, "save invitation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": inv.Token})
}

func (s *Server) joinRoom(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	ctx := c.Request.Context()
	claims := claimsFrom(c)

	inv, err := s.store.Invitation(ctx, req.Token)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid invite token"})
		return
	}
	if time.Now().After(inv.ExpiresAt) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invitation has expired"})
		return
	}
	if inv.Used {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invitation token already used"})
		return
	}

	room, err := s.store.Room(ctx, inv.RoomID)
	if err != nil {
		s.internalError(c, "load room", err)
		return
	}
	if !room.Open() {
		c.JSON(http.StatusGone, gin.H{"error": "Room is closed"})
		return
	}
	if !isMember(room, claims.UserID) {
		room.Participants = append(room.Participants, claims.UserID)
		if err := s.store.PutRoom(ctx, room); err != nil {
			s.internalError(c, "join room", err)
			return
		}
	}

	inv.Used = true
	if err := s.store.PutInvitation(ctx, inv); err != nil {
		s.internalError(c, "update invitation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Room joined successfully", "room_id": room.ID})
}

func (s *Server) roomHistory(c *gin.Context) {
	rooms, err := s.store.RoomsFor(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		s.internalError(c, "room history", err)
		return
	}
	if rooms == nil {
		rooms = []api.Room{}
	}
	c.JSON(http.StatusOK, rooms)
}

func (s *Server) roomDetails(c *gin.Context) {
	room, ok := s.memberRoom(c, c.Param("room_id"), claimsFrom(c).UserID)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, room)
}

// closeRoom marks the room closed, then tells every connected member and
// disconnects them.
func (s *Server) closeRoom(c *gin.Context) {
	room, ok := s.adminRoom(c)
	if !ok {
		return
	}

	room.Status = statusClosed
	if err := s.store.PutRoom(c.Request.Context(), room); err != nil {
		s.internalError(c, "close room", err)
		return
	}
	s.hub.CloseRoom(roomClosedFrame(room.ID, room.AdminID))
	s.audit(room.ID, room.AdminID, "close", "Room closed by admin.")

	c.JSON(http.StatusOK, gin.H{"message": "Room Closed"})
}
