package profiles

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProfileReader loads the remote profile record of an identity.
type ProfileReader interface {
	Find(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

// ProfileWriter persists profile edits.
type ProfileWriter interface {
	Upsert(ctx context.Context, profile *models.Profile) error
}

// RoleChecker reports whether an identity holds the admin role.
type RoleChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

type resolveObserver interface {
	ObserveResolve(outcome string, d time.Duration)
	IncRemoteFailure(op string)
}

// ResolverParams bundles the resolver collaborators. Writer and Metrics are optional.
type ResolverParams struct {
	Profiles ProfileReader
	Writer   ProfileWriter
	Roles    RoleChecker
	Metrics  resolveObserver
	Logger   *logger.Logger
}

// Resolver hydrates an authenticated identity into a display profile and admin flag.
type Resolver struct {
	profiles ProfileReader
	writer   ProfileWriter
	roles    RoleChecker
	metrics  resolveObserver
	logg     *logger.Logger
}

func NewResolver(params ResolverParams) (*Resolver, error) {
	if params.Profiles == nil {
		return nil, fmt.Errorf("profile reader is required")
	}
	if params.Roles == nil {
		return nil, fmt.Errorf("role checker is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	return &Resolver{
		profiles: params.Profiles,
		writer:   params.Writer,
		roles:    params.Roles,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// Resolve runs the profile lookup and the admin check concurrently. A missing profile record is
// synthesized from the identity; a failing admin check resolves to not-admin.
func (r *Resolver) Resolve(ctx context.Context, user identity.User) (Resolution, error) {
	if user.ID == uuid.Nil {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeValidation, "identity id is required")
	}
	start := time.Now()
	ctx = r.logg.WithUserID(ctx, user.ID.String())

	var (
		record  *models.Profile
		isAdmin bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := r.profiles.Find(gctx, user.ID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load profile")
		}
		record = found
		return nil
	})
	g.Go(func() error {
		admin, err := r.roles.IsAdmin(gctx, user.ID)
		if err != nil {
			r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "admin check failed; treating user as non-admin")
			r.failure("is_admin")
			return nil
		}
		isAdmin = admin
		return nil
	})

	if err := g.Wait(); err != nil {
		r.failure("load_profile")
		r.observe("error", start)
		return Resolution{}, err
	}

	r.observe("ok", start)
	return Resolution{Profile: merge(user, record), IsAdmin: isAdmin}, nil
}

// Save writes the identity's current metadata into its profile record.
func (r *Resolver) Save(ctx context.Context, user identity.User) error {
	if r.writer == nil {
		return nil
	}
	if err := r.writer.Upsert(ctx, recordFromUser(user)); err != nil {
		r.failure("save_profile")
		return db.Classify(err, "save profile")
	}
	return nil
}

func (r *Resolver) observe(outcome string, start time.Time) {
	if r.metrics != nil {
		r.metrics.ObserveResolve(outcome, time.Since(start))
	}
}

func (r *Resolver) failure(op string) {
	if r.metrics != nil {
		r.metrics.IncRemoteFailure(op)
	}
}
