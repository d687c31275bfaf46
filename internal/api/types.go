package api

import "time"

// TokenResponse is returned by login and refresh. Refresh only carries a new
// access token.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type Session struct {
	ID         string    `json:"id,omitempty"`
	RoomID     string    `json:"room_id"`
	Code       string    `json:"code"`
	LastSaved  time.Time `json:"last_saved,omitzero"`
	UpdatedBy  string    `json:"updated_by,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

type AuditLog struct {
	ID        string    `json:"id,omitempty"`
	RoomID    string    `json:"room_id"`
	UserID    string    `json:"user_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Export is a session together with its audit trail.
type Export struct {
	Session   Session    `json:"session"`
	AuditLogs []AuditLog `json:"audit_logs"`
}

// ChatMessage is one persisted chat line.
type ChatMessage struct {
	RoomID     string    `json:"room_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	AdminID      string    `json:"admin_id"`
	CreatedAt    time.Time `json:"created_at"`
	InviteLimit  int       `json:"invite_limit"`
	Participants []string  `json:"participants"`
	Status       string    `json:"status"`
}

// Open reports whether the room still accepts participants.
func (r *Room) Open() bool {
	return r.Status != "closed"
}

type Invitation struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	Token        string    `json:"token"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
	Used         bool      `json:"used"`
	InvitedEmail string    `json:"invited_email,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
	RoomID  string `json:"room_id,omitempty"`
}
