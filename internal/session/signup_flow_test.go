package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/profiles"
	authsession "github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/metrics"
	redisclient "github.com/angelmondragon/storefront/pkg/redis"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryKV) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redisclient.Nil
	}
	return v, nil
}

func (m *memoryKV) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryKV) SessionKey(installationID string) string { return "session:" + installationID }

func (m *memoryKV) StoreConfirmation(ctx context.Context, token, userID string, ttl time.Duration) error {
	return m.Set(ctx, "confirm:"+token, userID, ttl)
}

func (m *memoryKV) ConsumeConfirmation(ctx context.Context, token string) (string, error) {
	v, err := m.Get(ctx, "confirm:"+token)
	if err != nil {
		return "", err
	}
	return v, m.Del(ctx, "confirm:"+token)
}

type lastTokenSender struct {
	mu    sync.Mutex
	token string
}

func (s *lastTokenSender) SendConfirmation(ctx context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

type emptyProfiles struct{}

func (emptyProfiles) Find(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return nil, gorm.ErrRecordNotFound
}

type noAdmins struct{}

func (noAdmins) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) { return false, nil }

func newProvider(t *testing.T, sender identity.ConfirmationSender) *identity.Provider {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.Exec(`
CREATE TABLE auth_users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  user_metadata TEXT NOT NULL DEFAULT '{}',
  email_confirmed_at DATETIME,
  last_sign_in_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`).Error)

	kv := &memoryKV{data: map[string]string{}}
	jwtCfg := config.JWTConfig{Secret: "test-secret", Issuer: "storefront", ExpirationMinutes: 15, SessionTTLMinutes: 60}
	sessions, err := authsession.NewManagerWithStore(kv, kv, jwtCfg)
	require.NoError(t, err)

	provider, err := identity.NewProvider(identity.ProviderParams{
		Users:         identity.NewRepository(conn),
		Sessions:      sessions,
		Confirmations: kv,
		Sender:        sender,
		JWTConfig:     jwtCfg,
		PasswordConfig: config.PasswordConfig{
			ArgonMemoryKB:    64,
			ArgonTime:        1,
			ArgonParallelism: 1,
			ArgonSaltLen:     16,
			ArgonKeyLen:      32,
			MinLength:        6,
		},
		AuthConfig: config.AuthConfig{
			RequireEmailConfirmation: true,
			ConfirmationTTL:          time.Hour,
			InstallationID:           "e2e",
		},
	})
	require.NoError(t, err)
	return provider
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if hasLabel(metric, label, value) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name && pair.GetValue() == value {
			return true
		}
	}
	return false
}

func TestSignupVerifyLoginReachesAuthenticated(t *testing.T) {
	ctx := context.Background()
	sender := &lastTokenSender{}
	provider := newProvider(t, sender)
	resolver, err := profiles.NewResolver(profiles.ResolverParams{Profiles: emptyProfiles{}, Roles: noAdmins{}})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	store, err := New(Params{Auth: provider, Resolver: resolver, Metrics: metrics.NewStorefront(reg)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Start(ctx))
	waitForState(t, store, isAnonymous)

	res, err := store.Signup(ctx, "a@b.com", "password1", identity.Metadata{})
	require.NoError(t, err)
	assert.True(t, res.ConfirmationRequired)
	assert.True(t, isAnonymous(store.State()))

	_, err = store.Login(ctx, "a@b.com", "password1")
	assert.Equal(t, pkgerrors.CodeAuthentication, pkgerrors.CodeOf(err))
	assert.True(t, isAnonymous(store.State()))

	sender.mu.Lock()
	token := sender.token
	sender.mu.Unlock()
	_, err = provider.ConfirmEmail(ctx, token)
	require.NoError(t, err)

	admin, err := store.Login(ctx, "a@b.com", "password1")
	require.NoError(t, err)
	assert.False(t, admin)

	st := waitForState(t, store, authenticatedAs("a@b.com"))
	require.NotNil(t, st.Profile)
	assert.Equal(t, "a", st.Profile.Name)
	assert.GreaterOrEqual(t, counterValue(t, reg, "storefront_session_transitions_total", "phase", "authenticated"), 1.0)
	assert.Equal(t, 1.0, counterValue(t, reg, "storefront_auth_events_total", "event", "SIGNED_IN"))

	require.NoError(t, store.Logout(ctx))
	assert.True(t, isAnonymous(store.State()))

	current, err := provider.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}
