package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/BioHazard786/Coderoom/internal/api"
	"github.com/BioHazard786/Coderoom/internal/errs"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "coderoom:"

// RedisOptions locates the Redis server backing the relay.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

type redisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and checks the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &redisStore{rdb: rdb}, nil
}

func key(parts ...string) string {
	k := keyPrefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *redisStore) get(ctx context.Context, k string, v any) error {
	data, err := s.rdb.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return errs.Wrap("redis get", errs.ErrNotFound, k)
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *redisStore) set(ctx context.Context, k string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, k, data, 0).Err()
}

func (s *redisStore) CreateUser(ctx context.Context, u *User) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, key("user", "email", u.Email), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errs.Wrap("create user", errs.ErrExists, u.Email)
	}
	return s.rdb.Set(ctx, key("user", "id", u.ID), u.Email, 0).Err()
}

func (s *redisStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	if err := s.get(ctx, key("user", "email", email), &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *redisStore) UserByID(ctx context.Context, id string) (*User, error) {
	email, err := s.rdb.Get(ctx, key("user", "id", id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errs.Wrap("find user", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return s.UserByEmail(ctx, email)
}

func (s *redisStore) PutRoom(ctx context.Context, room *api.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key("room", room.ID), data, 0)
		pipe.SAdd(ctx, key("rooms", room.AdminID), room.ID)
		for _, p := range room.Participants {
			pipe.SAdd(ctx, key("rooms", p), room.ID)
		}
		return nil
	})
	return err
}

func (s *redisStore) Room(ctx context.Context, id string) (*api.Room, error) {
	var room api.Room
	if err := s.get(ctx, key("room", id), &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *redisStore) RoomsFor(ctx context.Context, userID string) ([]api.Room, error) {
	ids, err := s.rdb.SMembers(ctx, key("rooms", userID)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]api.Room, 0, len(ids))
	for _, id := range ids {
		room, err := s.Room(ctx, id)
		if errors.Is(err, errs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *room)
	}
	slices.SortFunc(out, func(a, b api.Room) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *redisStore) PutInvitation(ctx context.Context, inv *api.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key("invite", inv.Token), data, 0)
		pipe.SAdd(ctx, key("invites", "room", inv.RoomID), inv.Token)
		if inv.InvitedEmail != "" {
			pipe.SAdd(ctx, key("invites", "email", inv.InvitedEmail), inv.Token)
		}
		return nil
	})
	return err
}

func (s *redisStore) Invitation(ctx context.Context, token string) (*api.Invitation, error) {
	var inv api.Invitation
	if err := s.get(ctx, key("invite", token), &inv); err != nil {
		return nil, errs.New("find invitation", errs.ErrNotFound)
	}
	return &inv, nil
}

func (s *redisStore) InvitationsFor(ctx context.Context, email string) ([]api.Invitation, error) {
	tokens, err := s.rdb.SMembers(ctx, key("invites", "email", email)).Result()
	if err != nil {
		return nil, err
	}
	var out []api.Invitation
	for _, t := range tokens {
		inv, err := s.Invitation(ctx, t)
		if err != nil {
			continue
		}
		out = append(out, *inv)
	}
	slices.SortFunc(out, func(a, b api.Invitation) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (s *redisStore) InvitationCount(ctx context.Context, roomID string) (int, error) {
	n, err := s.rdb.SCard(ctx, key("invites", "room", roomID)).Result()
	return int(n), err
}

func (s *redisStore) SaveSession(ctx context.Context, sess *api.Session) error {
	return s.set(ctx, key("session", sess.RoomID), sess)
}

func (s *redisStore) Session(ctx context.Context, roomID string) (*api.Session, error) {
	var sess api.Session
	if err := s.get(ctx, key("session", roomID), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *redisStore) AppendAudit(ctx context.Context, a *api.AuditLog) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, key("audit", a.RoomID), data).Err()
}

func (s *redisStore) AuditLogs(ctx context.Context, roomID string) ([]api.AuditLog, error) {
	return rangeJSON[api.AuditLog](ctx, s.rdb, key("audit", roomID))
}

func (s *redisStore) AppendChat(ctx context.Context, m *api.ChatMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return s.rdb.RPush(ctx, key("chat", m.RoomID), data).Err()
}

func (s *redisStore) ChatHistory(ctx context.Context, roomID string) ([]api.ChatMessage, error) {
	return rangeJSON[api.ChatMessage](ctx, s.rdb, key("chat", roomID))
}

func (s *redisStore) Close() error {
	return s.rdb.Close()
}

// rangeJSON decodes a whole Redis list of JSON documents.
func rangeJSON[T any](ctx context.Context, rdb *redis.Client, k string) ([]T, error) {
	items, err := rdb.LRange(ctx, k, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		var v T
		if err := json.Unmarshal([]byte(item), &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
