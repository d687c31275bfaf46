package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/golang-jwt/jwt/v5"
)

func mint(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("whatever"))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestParseIdentity(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   Identity
	}{
		{
			name:   "admin",
			claims: jwt.MapClaims{"user_id": "u1", "username": "alice", "role": "admin", "email": "a@x.io", "exp": exp.Unix()},
			want:   Identity{UserID: "u1", Username: "alice", Role: RoleAdmin, Email: "a@x.io", ExpiresAt: exp},
		},
		{
			name:   "user role maps to member",
			claims: jwt.MapClaims{"user_id": "u2", "username": "bob", "role": "user"},
			want:   Identity{UserID: "u2", Username: "bob", Role: RoleMember},
		},
		{
			name:   "sub fallback",
			claims: jwt.MapClaims{"sub": "u3"},
			want:   Identity{UserID: "u3", Role: RoleMember},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentity(mint(t, tt.claims))
			if err != nil {
				t.Fatalf("ParseIdentity: %v", err)
			}
			if got.UserID != tt.want.UserID || got.Username != tt.want.Username ||
				got.Role != tt.want.Role || got.Email != tt.want.Email || !got.ExpiresAt.Equal(tt.want.ExpiresAt) {
				t.Fatalf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestParseIdentityRejects(t *testing.T) {
	if _, err := ParseIdentity(""); !errors.Is(err, errs.ErrNotLoggedIn) {
		t.Fatalf("empty token err=%v, want ErrNotLoggedIn", err)
	}
	if _, err := ParseIdentity("not-a-jwt"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("garbage err=%v, want ErrUnauthorized", err)
	}
	if _, err := ParseIdentity(mint(t, jwt.MapClaims{"username": "x"})); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("no user err=%v, want ErrUnauthorized", err)
	}
}

func TestExpired(t *testing.T) {
	now := time.Now()
	if (&Identity{}).Expired(now) {
		t.Fatalf("token without exp reported expired")
	}
	if !(&Identity{ExpiresAt: now.Add(-time.Minute)}).Expired(now) {
		t.Fatalf("past exp not expired")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open missing: %v", err)
	}
	if s.AccessToken() != "" {
		t.Fatalf("fresh store has a token")
	}

	access := mint(t, jwt.MapClaims{"user_id": "u1", "username": "alice"})
	if err := s.Save(Tokens{Server: "http://localhost:8080", AccessToken: access, RefreshToken: "r"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("perm=%o, want 600", perm)
	}

	if err := s.SetAccessToken("renewed"); err != nil {
		t.Fatalf("SetAccessToken: %v", err)
	}
	again, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if again.AccessToken() != "renewed" || again.RefreshToken() != "r" || again.Server() != "http://localhost:8080" {
		t.Fatalf("reopened tokens: %q %q %q", again.AccessToken(), again.RefreshToken(), again.Server())
	}

	if err := again.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file survived Clear: %v", err)
	}
	if _, err := again.Identity(); !errors.Is(err, errs.ErrNotLoggedIn) {
		t.Fatalf("Identity after Clear err=%v", err)
	}
}
