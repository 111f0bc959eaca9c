package profiles

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubProfiles struct {
	record *models.Profile
	err    error
	saved  []*models.Profile
}

func (s *stubProfiles) Find(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.record == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return s.record, nil
}

func (s *stubProfiles) Upsert(ctx context.Context, profile *models.Profile) error {
	s.saved = append(s.saved, profile)
	return s.err
}

type stubRoles struct {
	admin bool
	err   error
	delay time.Duration
}

func (s stubRoles) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.admin, s.err
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	failures []string
}

func (o *recordingObserver) ObserveResolve(outcome string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) IncRemoteFailure(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, op)
}

func strPtr(v string) *string { return &v }

func newTestUser() identity.User {
	return identity.User{ID: uuid.New(), Email: "jane.doe@example.com"}
}

func TestResolveSynthesizesMissingProfile(t *testing.T) {
	resolver, err := NewResolver(ResolverParams{Profiles: &stubProfiles{}, Roles: stubRoles{}})
	require.NoError(t, err)

	user := newTestUser()
	res, err := resolver.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "jane.doe", res.Profile.Name)
	assert.Equal(t, user.ID, res.Profile.ID)
	assert.True(t, res.Profile.Synthesized)
	assert.False(t, res.IsAdmin)
}

func TestResolvePrefersRecordOverMetadata(t *testing.T) {
	user := newTestUser()
	gender := enums.GenderFemale
	user.Metadata = identity.Metadata{Name: strPtr("Meta Name"), Phone: strPtr("111"), Gender: &gender}

	profiles := &stubProfiles{record: &models.Profile{
		ID:     user.ID,
		Name:   strPtr("Record Name"),
		Phone:  strPtr("  "),
		Gender: strPtr("other"),
	}}
	resolver, err := NewResolver(ResolverParams{Profiles: profiles, Roles: stubRoles{admin: true}})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "Record Name", res.Profile.Name)
	require.NotNil(t, res.Profile.Phone)
	assert.Equal(t, "111", *res.Profile.Phone)
	require.NotNil(t, res.Profile.Gender)
	assert.Equal(t, enums.GenderOther, *res.Profile.Gender)
	assert.False(t, res.Profile.Synthesized)
	assert.True(t, res.IsAdmin)
}

func TestResolveFallsBackToMetadataName(t *testing.T) {
	user := newTestUser()
	user.Metadata.Name = strPtr("Jane")
	resolver, err := NewResolver(ResolverParams{Profiles: &stubProfiles{}, Roles: stubRoles{}})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "Jane", res.Profile.Name)
}

func TestResolveAdminCheckFailureFailsClosed(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	observer := &recordingObserver{}

	resolver, err := NewResolver(ResolverParams{
		Profiles: &stubProfiles{},
		Roles:    stubRoles{admin: true, err: errors.New("rpc unavailable")},
		Metrics:  observer,
		Logger:   logg,
	})
	require.NoError(t, err)

	res, err := resolver.Resolve(context.Background(), newTestUser())
	require.NoError(t, err)
	assert.False(t, res.IsAdmin)
	assert.Contains(t, buf.String(), "admin check failed")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Equal(t, []string{"is_admin"}, observer.failures)
	assert.Equal(t, []string{"ok"}, observer.outcomes)
}

func TestResolveProfileReadFailureIsRemoteUnavailable(t *testing.T) {
	observer := &recordingObserver{}
	resolver, err := NewResolver(ResolverParams{
		Profiles: &stubProfiles{err: errors.New("connection reset")},
		Roles:    stubRoles{},
		Metrics:  observer,
	})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), newTestUser())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeRemoteUnavailable, pkgerrors.CodeOf(err))
	assert.Equal(t, []string{"error"}, observer.outcomes)
}

func TestResolveRunsLookupsConcurrently(t *testing.T) {
	slow := 50 * time.Millisecond
	profiles := &slowProfiles{delay: slow}
	resolver, err := NewResolver(ResolverParams{Profiles: profiles, Roles: stubRoles{delay: slow}})
	require.NoError(t, err)

	start := time.Now()
	_, err = resolver.Resolve(context.Background(), newTestUser())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*slow)
}

type slowProfiles struct {
	delay time.Duration
}

func (s *slowProfiles) Find(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	time.Sleep(s.delay)
	return nil, gorm.ErrRecordNotFound
}

func TestResolveRejectsNilIdentity(t *testing.T) {
	resolver, err := NewResolver(ResolverParams{Profiles: &stubProfiles{}, Roles: stubRoles{}})
	require.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), identity.User{})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestSaveWritesMetadataIntoRecord(t *testing.T) {
	profiles := &stubProfiles{}
	resolver, err := NewResolver(ResolverParams{Profiles: profiles, Writer: profiles, Roles: stubRoles{}})
	require.NoError(t, err)

	user := newTestUser()
	gender := enums.GenderMale
	user.Metadata = identity.Metadata{Name: strPtr("John"), Gender: &gender}
	require.NoError(t, resolver.Save(context.Background(), user))

	require.Len(t, profiles.saved, 1)
	saved := profiles.saved[0]
	assert.Equal(t, user.ID, saved.ID)
	assert.Equal(t, "John", *saved.Name)
	assert.Equal(t, "male", *saved.Gender)
	assert.Equal(t, user.Email, *saved.Email)
}

func TestNewResolverRequiresPorts(t *testing.T) {
	_, err := NewResolver(ResolverParams{Roles: stubRoles{}})
	assert.Error(t, err)
	_, err = NewResolver(ResolverParams{Profiles: &stubProfiles{}})
	assert.Error(t, err)
}
