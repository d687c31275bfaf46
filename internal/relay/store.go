package relay

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/errs"
)

// User is a registered account. Password holds the bcrypt hash.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Password  string    `json:"password"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists everything the relay serves. Lookups of missing records
// return errs.ErrNotFound.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)

	PutRoom(ctx context.Context, room *api.Room) error
	Room(ctx context.Context, id string) (*api.Room, error)
	RoomsFor(ctx context.Context, userID string) ([]api.Room, error)

	PutInvitation(ctx context.Context, inv *api.Invitation) error
	Invitation(ctx context.Context, token string) (*api.Invitation, error)
	InvitationsFor(ctx context.Context, email string) ([]api.Invitation, error)
	InvitationCount(ctx context.Context, roomID string) (int, error)

	SaveSession(ctx context.Context, s *api.Session) error
	Session(ctx context.Context, roomID string) (*api.Session, error)

	AppendAudit(ctx context.Context, a *api.AuditLog) error
	AuditLogs(ctx context.Context, roomID string) ([]api.AuditLog, error)

	AppendChat(ctx context.Context, m *api.ChatMessage) error
	ChatHistory(ctx context.Context, roomID string) ([]api.ChatMessage, error)

	Close() error
}

type memoryStore struct {
	mu       sync.RWMutex
	users    map[string]*User // by email
	userIDs  map[string]string
	rooms    map[string]api.Room
	invites  map[string]api.Invitation
	sessions map[string]api.Session
	audits   map[string][]api.AuditLog
	chats    map[string][]api.ChatMessage
}

// NewMemoryStore returns a Store that lives as long as the process.
func NewMemoryStore() Store {
	return &memoryStore{
		users:    make(map[string]*User),
		userIDs:  make(map[string]string),
		rooms:    make(map[string]api.Room),
		invites:  make(map[string]api.Invitation),
		sessions: make(map[string]api.Session),
		audits:   make(map[string][]api.AuditLog),
		chats:    make(map[string][]api.ChatMessage),
	}
}

func (m *memoryStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Email]; ok {
		return errs.Wrap("create user", errs.ErrExists, u.Email)
	}
	cp := *u
	m.users[u.Email] = &cp
	m.userIDs[u.ID] = u.Email
	return nil
}

func (m *memoryStore) UserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[email]
	if !ok {
		return nil, errs.Wrap("find user", errs.ErrNotFound, email)
	}
	cp := *u
	return &cp, nil
}

func (m *memoryStore) UserByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	email, ok := m.userIDs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, errs.Wrap("find user", errs.ErrNotFound, id)
	}
	return m.UserByEmail(ctx, email)
}

func (m *memoryStore) PutRoom(_ context.Context, room *api.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *room
	cp.Participants = slices.Clone(room.Participants)
	m.rooms[room.ID] = cp
	return nil
}

func (m *memoryStore) Room(_ context.Context, id string) (*api.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[id]
	if !ok {
		return nil, errs.Wrap("find room", errs.ErrNotFound, id)
	}
	room.Participants = slices.Clone(room.Participants)
	return &room, nil
}

func (m *memoryStore) RoomsFor(_ context.Context, userID string) ([]api.Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []api.Room
	for _, room := range m.rooms {
		if room.AdminID == userID || slices.Contains(room.Participants, userID) {
			room.Participants = slices.Clone(room.Participants)
			out = append(out, room)
		}
	}
	slices.SortFunc(out, func(a, b api.Room) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *memoryStore) PutInvitation(_ context.Context, inv *api.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invites[inv.Token] = *inv
	return nil
}

func (m *memoryStore) Invitation(_ context.Context, token string) (*api.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invites[token]
	if !ok {
		return nil, errs.New("find invitation", errs.ErrNotFound)
	}
	return &inv, nil
}

func (m *memoryStore) InvitationsFor(_ context.Context, email string) ([]api.Invitation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []api.Invitation
	for _, inv := range m.invites {
		if inv.InvitedEmail == email {
			out = append(out, inv)
		}
	}
	slices.SortFunc(out, func(a, b api.Invitation) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (m *memoryStore) InvitationCount(_ context.Context, roomID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inv := range m.invites {
		if inv.RoomID == roomID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) SaveSession(_ context.Context, s *api.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.RoomID] = *s
	return nil
}

func (m *memoryStore) Session(_ context.Context, roomID string) (*api.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[roomID]
	if !ok {
		return nil, errs.Wrap("find session", errs.ErrNotFound, roomID)
	}
	return &s, nil
}

func (m *memoryStore) AppendAudit(_ context.Context, a *api.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits[a.RoomID] = append(m.audits[a.RoomID], *a)
	return nil
}

func (m *memoryStore) AuditLogs(_ context.Context, roomID string) ([]api.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.audits[roomID]), nil
}

func (m *memoryStore) AppendChat(_ context.Context, msg *api.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[msg.RoomID] = append(m.chats[msg.RoomID], *msg)
	return nil
}

func (m *memoryStore) ChatHistory(_ context.Context, roomID string) ([]api.ChatMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.chats[roomID]), nil
}

func (m *memoryStore) Close() error { return nil }
