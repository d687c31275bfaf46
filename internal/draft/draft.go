package draft

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	formatVersion = 1
	kindDocument  = "document"
)

// Draft is the last document content that could not be persisted remotely.
type Draft struct {
	RoomID  string    `msgpack:"roomId"`
	Content string    `msgpack:"content"`
	SavedAt time.Time `msgpack:"savedAt"`
	Reason  string    `msgpack:"reason"`
}

// envelope is the on-disk record.
type envelope struct {
	Version int                `msgpack:"version"`
	Kind    string             `msgpack:"kind"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

func (e envelope) decode(v any) error {
	return msgpack.Unmarshal(e.Payload, v)
}

func newEnvelope(kind string, payload any) (envelope, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Version: formatVersion, Kind: kind, Payload: b}, nil
}

// Cache stores one draft per room under dir.
type Cache struct {
	dir string
}

func NewCache(dir string) *Cache {
	return &Cache{dir: dir}
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func (c *Cache) path(roomID string) string {
	return filepath.Join(c.dir, "drafts", unsafeChars.ReplaceAllString(roomID, "_")+".draft")
}

// Save writes d, replacing any earlier draft for the room.
func (c *Cache) Save(d Draft) (string, error) {
	if d.SavedAt.IsZero() {
		d.SavedAt = time.Now()
	}
	env, err := newEnvelope(kindDocument, d)
	if err != nil {
		return "", errs.New("encode draft", err)
	}
	data, err := msgpack.Marshal(env)
	if err != nil {
		return "", errs.New("encode draft", err)
	}

	path := c.path(d.RoomID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", errs.New("create draft dir", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", errs.New("write draft", err)
	}
	return path, nil
}

// Load returns the draft for roomID, or errs.ErrNotFound.
func (c *Cache) Load(roomID string) (*Draft, error) {
	data, err := os.ReadFile(c.path(roomID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.Wrap("load draft", errs.ErrNotFound, roomID)
	}
	if err != nil {
		return nil, errs.New("load draft", err)
	}

	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap("load draft", errs.ErrInvalidFile, err.Error())
	}
	if env.Kind != kindDocument || env.Version > formatVersion {
		return nil, errs.Wrap("load draft", errs.ErrInvalidFile, fmt.Sprintf("%s v%d", env.Kind, env.Version))
	}

	var d Draft
	if err := env.decode(&d); err != nil {
		return nil, errs.Wrap("load draft", errs.ErrInvalidFile, err.Error())
	}
	return &d, nil
}

// Remove deletes the draft for roomID if there is one.
func (c *Cache) Remove(roomID string) error {
	if err := os.Remove(c.path(roomID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
