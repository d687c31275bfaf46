package editsync

import (
	"context"
	"errors"
	"sync"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/BioHazard786/Coderoom/internal/transport"
)

// Sender delivers outbound frames to the room channel.
type Sender interface {
	Send(*transport.Frame) error
}

// SessionService loads and persists the room's document.
type SessionService interface {
	GetSession(ctx context.Context, roomID string) (*api.Session, error)
	SaveSession(ctx context.Context, roomID, code string) error
}

// Buffer is the shared document. Every change replaces the whole content
// and the last writer wins.
type Buffer struct {
	self   string
	roomID string
	out    Sender

	mu        sync.RWMutex
	content   string
	updatedBy string
	onChange  func(content, by string)
}

func NewBuffer(self, roomID string, out Sender) *Buffer {
	return &Buffer{self: self, roomID: roomID, out: out}
}

// OnChange registers fn to run after a remote edit or a seed replaces the
// content.
func (b *Buffer) OnChange(fn func(content, by string)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

func (b *Buffer) Content() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.content
}

// UpdatedBy names who wrote the current content last.
func (b *Buffer) UpdatedBy() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updatedBy
}

// Seed replaces the content without broadcasting it.
func (b *Buffer) Seed(content, by string) {
	b.set(content, by, true)
}

// Load seeds the buffer from the stored session. A room without a session
// starts empty.
func (b *Buffer) Load(ctx context.Context, svc SessionService) error {
	s, err := svc.GetSession(ctx, b.roomID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	b.Seed(s.Code, s.UpdatedBy)
	return nil
}

// OnLocalChange records a local edit and broadcasts the full content at
// once.
func (b *Buffer) OnLocalChange(content string) error {
	b.set(content, b.self, false)
	return b.out.Send(transport.EditFrame(b.roomID, content))
}

// OnRemoteEdit applies an edit relayed from another participant. Echoes of
// our own edits are ignored.
func (b *Buffer) OnRemoteEdit(f *transport.Frame) {
	if f.SenderID == b.self {
		return
	}
	by := f.SenderName
	if by == "" {
		by = f.SenderID
	}
	b.set(f.Content, by, true)
}

func (b *Buffer) set(content, by string, notify bool) {
	b.mu.Lock()
	b.content = content
	b.updatedBy = by
	fn := b.onChange
	b.mu.Unlock()

	if notify && fn != nil {
		fn(content, by)
	}
}
