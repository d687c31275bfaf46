package relay

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (s *Server) getSession(c *gin.Context) {
	roomID := c.Param("room_id")
	if _, ok := s.memberRoom(c, roomID, claimsFrom(c).UserID); !ok {
		return
	}

	sess, err := s.store.Session(c.Request.Context(), roomID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		s.internalError(c, "load session", err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) saveSession(c *gin.Context) {
	var req struct {
		RoomID string `json:"room_id" binding:"required"`
		Code   string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "RoomID is required"})
		return
	}
	claims := claimsFrom(c)
	if _, ok := s.memberRoom(c, req.RoomID, claims.UserID); !ok {
		return
	}
	ctx := c.Request.Context()

	now := time.Now()
	sess, err := s.store.Session(ctx, req.RoomID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		sess = &api.Session{ID: uuid.NewString(), RoomID: req.RoomID, CreatedAt: now}
	case err != nil:
		s.internalError(c, "load session", err)
		return
	}
	sess.Code = req.Code
	sess.LastSaved = now
	sess.ModifiedAt = now
	sess.UpdatedBy = claims.UserID

	if err := s.store.SaveSession(ctx, sess); err != nil {
		s.internalError(c, "save session", err)
		return
	}
	s.audit(req.RoomID, claims.UserID, "auto-save", "Session auto-saved.")

	c.JSON(http.StatusOK, gin.H{"message": "Session saved successfully"})
}

func (s *Server) exportSession(c *gin.Context) {
	roomID := c.Param("room_id")
	if _, ok := s.memberRoom(c, roomID, claimsFrom(c).UserID); !ok {
		return
	}
	ctx := c.Request.Context()

	sess, err := s.store.Session(ctx, roomID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		s.internalError(c, "load session", err)
		return
	}
	logs, err := s.store.AuditLogs(ctx, roomID)
	if err != nil {
		s.internalError(c, "load audit logs", err)
		return
	}
	c.JSON(http.StatusOK, api.Export{Session: *sess, AuditLogs: nonNil(logs)})
}

func (s *Server) logAudit(c *gin.Context) {
	var req struct {
		RoomID  string `json:"room_id" binding:"required"`
		Action  string `json:"action" binding:"required"`
		Details string `json:"details"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "RoomID and Action are required"})
		return
	}
	claims := claimsFrom(c)
	if _, ok := s.memberRoom(c, req.RoomID, claims.UserID); !ok {
		return
	}

	if err := s.appendAudit(c.Request.Context(), req.RoomID, claims.UserID, req.Action, req.Details); err != nil {
		s.internalError(c, "log audit", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Audit log added"})
}

func (s *Server) auditLogs(c *gin.Context) {
	roomID := c.Param("room_id")
	if _, ok := s.memberRoom(c, roomID, claimsFrom(c).UserID); !ok {
		return
	}
	logs, err := s.store.AuditLogs(c.Request.Context(), roomID)
	if err != nil {
		s.internalError(c, "load audit logs", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(logs))
}

func (s *Server) chatHistory(c *gin.Context) {
	roomID := c.Param("room_id")
	if _, ok := s.memberRoom(c, roomID, claimsFrom(c).UserID); !ok {
		return
	}
	msgs, err := s.store.ChatHistory(c.Request.Context(), roomID)
	if err != nil {
		s.internalError(c, "load chat", err)
		return
	}
	c.JSON(http.StatusOK, nonNil(msgs))
}

func (s *Server) appendAudit(ctx context.Context, roomID, userID, action, details string) error {
	return s.store.AppendAudit(ctx, &api.AuditLog{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: time.Now(),
	})
}

// audit records an entry on behalf of the relay. Failures are only logged.
func (s *Server) audit(roomID, userID, action, details string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.appendAudit(ctx, roomID, userID, action, details); err != nil {
		slog.Error("audit log", "room", roomID, "action", action, "error", err)
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
