package store

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is the per-identity state persisted across requests and
// connections: display name, current game binding, and the list of game ids
// this identity must never be matched into again.
type Record struct {
	DisplayName string   `json:"display_name,omitempty"`
	GameID      string   `json:"game_id,omitempty"`
	Color       string   `json:"color,omitempty"`
	AvoidList   []string `json:"avoid_list,omitempty"`
}

// InGame reports whether the record is bound to a game.
func (r *Record) InGame() bool { return r != nil && strings.TrimSpace(r.GameID) != "" }

// Avoids reports whether gameID is on the record's avoid-list.
func (r *Record) Avoids(gameID string) bool {
	if r == nil {
		return false
	}
	for _, id := range r.AvoidList {
		if id == gameID {
			return true
		}
	}
	return false
}

// Store keeps identity records in Redis as JSON under sess:<token>.
// It is best-effort bookkeeping for reconnection continuity; live play is
// served from memory.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) key(token string) string { return "sess:" + strings.TrimSpace(token) }

// Get returns the record for token, or an empty record if none exists yet.
func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	if strings.TrimSpace(token) == "" {
		return &Record{}, nil
	}
	raw, err := s.rdb.Get(ctx, s.key(token)).Bytes()
	if err == redis.Nil {
		return &Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) save(ctx context.Context, token string, r *Record) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(token), raw, s.ttl).Err()
}

// SetName stores the display name, preserving the rest of the record.
func (s *Store) SetName(ctx context.Context, token, name string) error {
	r, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	r.DisplayName = strings.TrimSpace(name)
	return s.save(ctx, token, r)
}

// BindGame records the identity's current game and assigned color.
func (s *Store) BindGame(ctx context.Context, token, gameID, color string) error {
	r, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	r.GameID = gameID
	r.Color = color
	return s.save(ctx, token, r)
}

// ClearGame drops the game binding. When avoidID is non-empty it is appended
// to the avoid-list so matchmaking never re-offers that game.
func (s *Store) ClearGame(ctx context.Context, token, avoidID string) error {
	r, err := s.Get(ctx, token)
	if err != nil {
		return err
	}
	r.GameID = ""
	r.Color = ""
	if strings.TrimSpace(avoidID) != "" && !r.Avoids(avoidID) {
		r.AvoidList = append(r.AvoidList, avoidID)
	}
	return s.save(ctx, token, r)
}

// NewRedisClient builds a client from a redis:// URL and verifies
// connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
