package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/credentials"
	"github.com/BioHazard786/Coderoom/internal/errs"
)

type memTokens struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func (m *memTokens) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

func (m *memTokens) RefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh
}

func (m *memTokens) SetAccessToken(tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = tok
	return nil
}

// account registers and logs in a user, returning a client holding its
// tokens.
func account(t *testing.T, ts *httptest.Server, name, email string) (*api.Client, *credentials.Identity) {
	t.Helper()
	ctx := context.Background()
	tokens := &memTokens{}
	client := api.New(ts.URL, tokens).WithHTTPClient(ts.Client())

	if err := client.Register(ctx, name, email, "hunter2"); err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	tok, err := client.Login(ctx, email, "hunter2")
	if err != nil {
		t.Fatalf("login %s: %v", name, err)
	}
	tokens.access, tokens.refresh = tok.AccessToken, tok.RefreshToken

	id, err := credentials.ParseIdentity(tok.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	return client, id
}

func TestRoomLifecycleOverREST(t *testing.T) {
	_, ts := newTestRelay(t, Options{Admins: []string{"alice@example.com"}})
	ctx := context.Background()

	alice, aliceID := account(t, ts, "alice", "alice@example.com")
	bob, bobID := account(t, ts, "bob", "bob@example.com")
	if !aliceID.Admin() || bobID.Admin() {
		t.Fatalf("roles alice=%s bob=%s", aliceID.Role, bobID.Role)
	}
	if aliceID.Username != "alice" || aliceID.Email != "alice@example.com" {
		t.Fatalf("identity=%+v", aliceID)
	}

	if _, err := bob.CreateRoom(ctx, "nope"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("member create room err=%v", err)
	}

	room, err := alice.CreateRoom(ctx, "pairing")
	if err != nil {
		t.Fatal(err)
	}
	if room.AdminID != aliceID.UserID || !room.Open() || room.ID == "" {
		t.Fatalf("room=%+v", room)
	}

	if _, err := bob.Room(ctx, room.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("outsider room details err=%v", err)
	}

	token, err := alice.Invite(ctx, room.ID, "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}
	invs, err := bob.Invitations(ctx)
	if err != nil || len(invs) != 1 || invs[0].Token != token {
		t.Fatalf("invitations=%+v err=%v", invs, err)
	}

	joined, err := bob.Redeem(ctx, token)
	if err != nil || joined != room.ID {
		t.Fatalf("redeem=%q err=%v", joined, err)
	}
	if _, err := bob.Redeem(ctx, token); err == nil {
		t.Fatalf("token redeemed twice")
	}
	if invs, _ := bob.Invitations(ctx); len(invs) != 0 {
		t.Fatalf("used invitation still listed: %+v", invs)
	}

	details, err := bob.Room(ctx, room.ID)
	if err != nil || len(details.Participants) != 1 || details.Participants[0] != bobID.UserID {
		t.Fatalf("details=%+v err=%v", details, err)
	}
	history, err := bob.RoomHistory(ctx)
	if err != nil || len(history) != 1 {
		t.Fatalf("history=%+v err=%v", history, err)
	}

	if _, err := bob.GetSession(ctx, room.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing session err=%v", err)
	}
	if err := bob.SaveSession(ctx, room.ID, "fmt.Println(1)"); err != nil {
		t.Fatal(err)
	}
	sess, err := alice.GetSession(ctx, room.ID)
	if err != nil || sess.Code != "fmt.Println(1)" || sess.UpdatedBy != bobID.UserID {
		t.Fatalf("session=%+v err=%v", sess, err)
	}

	if err := alice.LogAudit(ctx, room.ID, "export", "exported"); err != nil {
		t.Fatal(err)
	}
	export, err := alice.ExportSession(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if export.Session.Code != "fmt.Println(1)" || len(export.AuditLogs) != 2 {
		t.Fatalf("export=%+v", export)
	}
	if export.AuditLogs[0].Action != "auto-save" || export.AuditLogs[1].Action != "export" {
		t.Fatalf("audit=%+v", export.AuditLogs)
	}

	msgs, err := bob.ChatHistory(ctx, room.ID)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("chat=%+v err=%v", msgs, err)
	}

	if err := bob.CloseRoom(ctx, room.ID); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("member close err=%v", err)
	}
	if err := alice.CloseRoom(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if details, _ := alice.Room(ctx, room.ID); details.Open() {
		t.Fatalf("room still open after close")
	}
}

func TestInviteLimit(t *testing.T) {
	_, ts := newTestRelay(t, Options{})
	ctx := context.Background()
	alice, _ := account(t, ts, "alice", "alice@example.com")

	room, err := alice.CreateRoom(ctx, "busy")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < DefaultInviteLimit; i++ {
		if _, err := alice.Invite(ctx, room.ID, ""); err != nil {
			t.Fatalf("invite %d: %v", i, err)
		}
	}
	if _, err := alice.Invite(ctx, room.ID, ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("invite past limit err=%v", err)
	}
}

func TestLoginAndRefresh(t *testing.T) {
	_, ts := newTestRelay(t, Options{})
	ctx := context.Background()

	client, _ := account(t, ts, "alice", "alice@example.com")
	if err := client.Register(ctx, "alice", "alice@example.com", "again"); err == nil {
		t.Fatalf("duplicate registration accepted")
	}
	if _, err := client.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("bad password err=%v", err)
	}

	tok, err := client.Login(ctx, "alice@example.com", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	post := func(body any) (*http.Response, api.TokenResponse) {
		data, _ := json.Marshal(body)
		resp, err := ts.Client().Post(ts.URL+"/auth/refresh", "application/json", bytes.NewReader(data))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var out api.TokenResponse
		json.NewDecoder(resp.Body).Decode(&out)
		return resp, out
	}

	resp, out := post(map[string]string{"refresh_token": tok.RefreshToken})
	if resp.StatusCode != http.StatusOK || out.AccessToken == "" || out.RefreshToken != "" {
		t.Fatalf("refresh status=%d out=%+v", resp.StatusCode, out)
	}
	id, err := credentials.ParseIdentity(out.AccessToken)
	if err != nil || id.Username != "alice" {
		t.Fatalf("refreshed identity=%+v err=%v", id, err)
	}

	// An access token is not a refresh token.
	if resp, _ := post(map[string]string{"refresh_token": tok.AccessToken}); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("access token refreshed: %d", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestRelay(t, Options{})
	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}
