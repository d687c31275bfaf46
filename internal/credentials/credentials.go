package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Tokens is what login returns and what is kept on disk.
type Tokens struct {
	Server       string `json:"server,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Identity is the session identity carried in the access token claims.
type Identity struct {
	UserID    string
	Username  string
	Email     string
	Role      string
	ExpiresAt time.Time
}

func (i *Identity) Admin() bool {
	return i.Role == RoleAdmin
}

// Expired reports whether the token had expired at now. Tokens without exp
// never expire.
func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// ParseIdentity decodes the claims of an access token without verifying its
// signature; the server verifies it on every request.
func ParseIdentity(token string) (*Identity, error) {
	if token == "" {
		return nil, errs.ErrNotLoggedIn
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errs.Wrap("parse access token", errs.ErrUnauthorized, err.Error())
	}

	id := &Identity{
		UserID:   stringClaim(claims, "user_id"),
		Username: stringClaim(claims, "username"),
		Email:    stringClaim(claims, "email"),
		Role:     stringClaim(claims, "role"),
	}
	if id.UserID == "" {
		id.UserID = stringClaim(claims, "sub")
	}
	if id.UserID == "" {
		return nil, errs.Wrap("parse access token", errs.ErrUnauthorized, "no user_id claim")
	}
	if id.Role != RoleAdmin {
		id.Role = RoleMember
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

// Store keeps tokens in a 0600 file. It satisfies api.Tokens.
type Store struct {
	path string

	mu     sync.RWMutex
	tokens Tokens
}

func DefaultPath() string {
	return filepath.Join(config.Dir(), "credentials.json")
}

// Open loads the store at path. A missing file is an empty store.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	if err := json.Unmarshal(data, &s.tokens); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken
}

func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken
}

func (s *Store) Server() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Server
}

func (s *Store) SetAccessToken(token string) error {
	s.mu.Lock()
	s.tokens.AccessToken = token
	t := s.tokens
	s.mu.Unlock()
	return s.write(t)
}

// Save replaces the stored tokens.
func (s *Store) Save(t Tokens) error {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
	return s.write(t)
}

// Clear forgets the tokens and removes the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.tokens = Tokens{}
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Identity decodes the stored access token.
func (s *Store) Identity() (*Identity, error) {
	return ParseIdentity(s.AccessToken())
}

func (s *Store) write(t Tokens) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return os.Rename(tmp, s.path)
}
