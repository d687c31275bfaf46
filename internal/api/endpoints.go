package api

import (
	"context"
	"net/http"
	"net/url"
)

func roomPath(prefix, roomID string) string {
	return prefix + url.PathEscape(roomID)
}

// Auth

func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var tok TokenResponse
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", in, &tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (c *Client) Register(ctx context.Context, username, email, password string) error {
	in := map[string]string{"username": username, "email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/auth/register", in, nil)
}

// Invitations lists unused invitations addressed to the logged-in user.
func (c *Client) Invitations(ctx context.Context) ([]Invitation, error) {
	var out []Invitation
	if err := c.do(ctx, http.MethodGet, "/auth/invitations", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rooms

func (c *Client) CreateRoom(ctx context.Context, name string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodPost, "/rooms", map[string]string{"name": name}, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// Invite creates an invitation token for roomID, optionally bound to email.
func (c *Client) Invite(ctx context.Context, roomID, email string) (string, error) {
	var in any
	if email != "" {
		in = map[string]string{"invited_email": email}
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, roomPath("/rooms/", roomID)+"/invite", in, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Redeem joins the room an invitation token points to and returns its id.
func (c *Client) Redeem(ctx context.Context, token string) (string, error) {
	var out messageResponse
	if err := c.do(ctx, http.MethodPost, "/rooms/join", map[string]string{"token": token}, &out); err != nil {
		return "", err
	}
	return out.RoomID, nil
}

func (c *Client) Room(ctx context.Context, roomID string) (*Room, error) {
	var room Room
	if err := c.do(ctx, http.MethodGet, roomPath("/rooms/", roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) CloseRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodPost, roomPath("/rooms/", roomID)+"/close", nil, nil)
}

// RoomHistory lists the rooms the user administers or joined.
func (c *Client) RoomHistory(ctx context.Context) ([]Room, error) {
	var out []Room
	if err := c.do(ctx, http.MethodGet, "/rooms/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Session

func (c *Client) GetSession(ctx context.Context, roomID string) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, roomPath("/session/", roomID), nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) SaveSession(ctx context.Context, roomID, code string) error {
	in := map[string]string{"room_id": roomID, "code": code}
	return c.do(ctx, http.MethodPost, "/session/save", in, nil)
}

func (c *Client) ExportSession(ctx context.Context, roomID string) (*Export, error) {
	var out Export
	if err := c.do(ctx, http.MethodGet, roomPath("/session/export/", roomID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) LogAudit(ctx context.Context, roomID, action, details string) error {
	in := map[string]string{"room_id": roomID, "action": action, "details": details}
	return c.do(ctx, http.MethodPost, "/session/audit", in, nil)
}

func (c *Client) AuditLogs(ctx context.Context, roomID string) ([]AuditLog, error) {
	var out []AuditLog
	if err := c.do(ctx, http.MethodGet, roomPath("/session/audit/", roomID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Chat

func (c *Client) ChatHistory(ctx context.Context, roomID string) ([]ChatMessage, error) {
	var out []ChatMessage
	if err := c.do(ctx, http.MethodGet, roomPath("/chat/", roomID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
