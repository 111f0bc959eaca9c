package session

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront/pkg/config"
	redisclient "github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/security"
	redislib "github.com/redis/go-redis/v9"
)

const refreshTokenBytes = 32

var (
	ErrNoSession           = errors.New("no persisted session")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// Store is the key/value surface the manager persists into.
type Store interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Keyer names the key holding an installation's session.
type Keyer interface {
	SessionKey(installationID string) string
}

// Record is the persisted session of one installation.
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Manager persists the current session in Redis so a restarted process detects it.
type Manager struct {
	store Store
	keyer Keyer
	ttl   time.Duration
}

// NewManager constructs a session manager backed by Redis.
func NewManager(client *redisclient.Client, cfg config.JWTConfig) (*Manager, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return NewManagerWithStore(client, client, cfg)
}

// NewManagerWithStore builds a manager over any Store, used by tools and tests.
func NewManagerWithStore(store Store, keyer Keyer, cfg config.JWTConfig) (*Manager, error) {
	if store == nil || keyer == nil {
		return nil, fmt.Errorf("session store is required")
	}
	ttl := cfg.SessionTTL()
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	if ttl <= cfg.AccessTTL() {
		return nil, fmt.Errorf("session ttl (%s) must exceed access token ttl (%s)", ttl, cfg.AccessTTL())
	}
	return &Manager{store: store, keyer: keyer, ttl: ttl}, nil
}

// Open stores a fresh session for the installation, replacing any previous one.
func (m *Manager) Open(ctx context.Context, installationID, userID, accessToken string) (*Record, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(accessToken) == "" {
		return nil, fmt.Errorf("user id and access token are required")
	}
	refresh, err := security.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		UserID:       userID,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.save(ctx, installationID, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Current returns the persisted session or ErrNoSession.
func (m *Manager) Current(ctx context.Context, installationID string) (*Record, error) {
	raw, err := m.store.Get(ctx, m.keyer.SessionKey(installationID))
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &rec, nil
}

// Rotate validates the provided refresh token and swaps in a new access/refresh pair.
func (m *Manager) Rotate(ctx context.Context, installationID, provided, accessToken string) (*Record, error) {
	if strings.TrimSpace(provided) == "" {
		return nil, ErrInvalidRefreshToken
	}
	current, err := m.Current(ctx, installationID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(current.RefreshToken), []byte(provided)) != 1 {
		return nil, ErrInvalidRefreshToken
	}

	refresh, err := security.RandomToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}
	rotated := &Record{
		AccessToken:  accessToken,
		RefreshToken: refresh,
		UserID:       current.UserID,
		CreatedAt:    current.CreatedAt,
	}
	if err := m.save(ctx, installationID, rotated); err != nil {
		return nil, err
	}
	return rotated, nil
}

// Revoke deletes the persisted session.
func (m *Manager) Revoke(ctx context.Context, installationID string) error {
	return m.store.Del(ctx, m.keyer.SessionKey(installationID))
}

func (m *Manager) save(ctx context.Context, installationID string, rec *Record) error {
	if strings.TrimSpace(installationID) == "" {
		return fmt.Errorf("installation id is required")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return m.store.Set(ctx, m.keyer.SessionKey(installationID), string(raw), m.ttl)
}
