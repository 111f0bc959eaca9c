package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pkgauth "github.com/angelmondragon/storefront/pkg/auth"
	"github.com/angelmondragon/storefront/pkg/auth/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/db/models"
	dbtypes "github.com/angelmondragon/storefront/pkg/db/types"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	redisclient "github.com/angelmondragon/storefront/pkg/redis"
	"github.com/angelmondragon/storefront/pkg/security"
	"github.com/angelmondragon/storefront/pkg/validate"
	"github.com/google/uuid"
)

const (
	invalidCredentialsMessage = "invalid login credentials"
	confirmationTokenBytes    = 24
	loginWindow               = time.Minute
)

type userRepository interface {
	Create(ctx context.Context, user *models.AuthUser) error
	FindByEmail(ctx context.Context, email string) (*models.AuthUser, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.AuthUser, error)
	UpdateMetadata(ctx context.Context, id uuid.UUID, metadata models.UserMetadata) error
	MarkConfirmed(ctx context.Context, id uuid.UUID, at time.Time) error
	TouchSignIn(ctx context.Context, id uuid.UUID, at time.Time) error
}

type sessionManager interface {
	Open(ctx context.Context, installationID, userID, accessToken string) (*session.Record, error)
	Current(ctx context.Context, installationID string) (*session.Record, error)
	Rotate(ctx context.Context, installationID, provided, accessToken string) (*session.Record, error)
	Revoke(ctx context.Context, installationID string) error
}

type confirmationStore interface {
	StoreConfirmation(ctx context.Context, token, userID string, ttl time.Duration) error
	ConsumeConfirmation(ctx context.Context, token string) (string, error)
}

type loginLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// ProviderParams bundles the dependencies of the identity provider.
type ProviderParams struct {
	Users          userRepository
	Sessions       sessionManager
	Confirmations  confirmationStore
	Sender         ConfirmationSender
	Limiter        loginLimiter
	JWTConfig      config.JWTConfig
	PasswordConfig config.PasswordConfig
	AuthConfig     config.AuthConfig
	Logger         *logger.Logger
	Now            func() time.Time
}

// Provider is the hosted-auth collaborator: accounts, sessions, confirmation and the change feed.
type Provider struct {
	users         userRepository
	sessions      sessionManager
	confirmations confirmationStore
	sender        ConfirmationSender
	limiter       loginLimiter
	jwtCfg        config.JWTConfig
	passwordCfg   config.PasswordConfig
	authCfg       config.AuthConfig
	logg          *logger.Logger
	now           func() time.Time

	mu        sync.Mutex
	listeners map[uint64]func(AuthChange)
	nextID    uint64
}

func NewProvider(params ProviderParams) (*Provider, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	if params.Confirmations == nil {
		return nil, fmt.Errorf("confirmation store is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.Sender == nil {
		params.Sender = LogSender{Logg: params.Logger}
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if strings.TrimSpace(params.AuthConfig.InstallationID) == "" {
		params.AuthConfig.InstallationID = "local"
	}
	return &Provider{
		users:         params.Users,
		sessions:      params.Sessions,
		confirmations: params.Confirmations,
		sender:        params.Sender,
		limiter:       params.Limiter,
		jwtCfg:        params.JWTConfig,
		passwordCfg:   params.PasswordConfig,
		authCfg:       params.AuthConfig,
		logg:          params.Logger,
		now:           params.Now,
		listeners:     make(map[uint64]func(AuthChange)),
	}, nil
}

type signUpInput struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required"`
	Metadata Metadata `json:"metadata"`
}

// SignUp registers an account. When confirmation is required no session is created.
func (p *Provider) SignUp(ctx context.Context, email, password string, metadata Metadata) (*SignUpResult, error) {
	input := signUpInput{Email: normalizeEmail(email), Password: password, Metadata: metadata}
	if err := validate.Struct(input); err != nil {
		return nil, err
	}
	if err := security.CheckPasswordPolicy(password, p.passwordCfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "password rejected").
			WithDetails(map[string]string{"password": err.Error()})
	}

	hash, err := security.HashPassword(password, p.passwordCfg)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	record := &models.AuthUser{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: hash,
		Metadata:     dbtypes.NewJSON(metadataToModel(metadata)),
	}
	requireConfirm := p.authCfg.RequireEmailConfirmation
	if !requireConfirm {
		confirmed := p.now().UTC()
		record.EmailConfirmedAt = &confirmed
	}

	if err := p.users.Create(ctx, record); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "user already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "create user")
	}

	result := &SignUpResult{User: userFromModel(record), ConfirmationRequired: requireConfirm}
	logCtx := p.logg.WithUserID(ctx, record.ID.String())

	if requireConfirm {
		token, err := security.RandomToken(confirmationTokenBytes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate confirmation token")
		}
		if err := p.confirmations.StoreConfirmation(ctx, token, record.ID.String(), p.authCfg.ConfirmationTTL); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "store confirmation")
		}
		if err := p.sender.SendConfirmation(ctx, record.Email, token); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "send confirmation")
		}
		p.logg.Info(logCtx, "user registered, confirmation pending")
		return result, nil
	}

	sess, err := p.openSession(ctx, record)
	if err != nil {
		return nil, err
	}
	result.Session = sess
	p.logg.Info(logCtx, "user registered and signed in")
	p.emit(enums.AuthEventSignedIn, sess)
	return result, nil
}

// ConfirmEmail completes verification for the account bound to token.
func (p *Provider) ConfirmEmail(ctx context.Context, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation token is required")
	}
	userID, err := p.confirmations.ConsumeConfirmation(ctx, token)
	if err != nil {
		if errors.Is(err, redisclient.Nil) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "confirmation token is invalid or expired")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "consume confirmation")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "confirmation bound to malformed user id")
	}
	if err := p.users.MarkConfirmed(ctx, id, p.now().UTC()); err != nil {
		return nil, db.Classify(err, "confirm email")
	}
	record, err := p.users.FindByID(ctx, id)
	if err != nil {
		return nil, db.Classify(err, "load confirmed user")
	}
	user := userFromModel(record)
	p.logg.Info(p.logg.WithUserID(ctx, id.String()), "email confirmed")
	return &user, nil
}

// SignInWithPassword checks credentials and opens a session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, invalidCredentialsMessage)
	}

	if p.limiter != nil && p.authCfg.LoginAttemptsPerMinute > 0 {
		allowed, _, err := p.limiter.FixedWindowAllow(ctx, "login:"+normalized, p.authCfg.LoginAttemptsPerMinute, loginWindow)
		if err != nil {
			p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "login rate limiter unavailable")
		} else if !allowed {
			return nil, pkgerrors.New(pkgerrors.CodeRateLimited, "too many login attempts")
		}
	}

	record, err := p.users.FindByEmail(ctx, normalized)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeAuthentication, invalidCredentialsMessage)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "lookup user")
	}

	valid, err := security.VerifyPassword(password, record.PasswordHash)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify password")
	}
	if !valid {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, invalidCredentialsMessage)
	}
	if record.EmailConfirmedAt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "email not confirmed")
	}

	now := p.now().UTC()
	if err := p.users.TouchSignIn(ctx, record.ID, now); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "record sign in")
	}
	record.LastSignInAt = &now

	sess, err := p.openSession(ctx, record)
	if err != nil {
		return nil, err
	}
	p.logg.Info(p.logg.WithUserID(ctx, record.ID.String()), "user signed in")
	p.emit(enums.AuthEventSignedIn, sess)
	return sess, nil
}

// SignOut revokes the persisted session and notifies listeners.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := p.sessions.Revoke(ctx, p.authCfg.InstallationID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "revoke session")
	}
	p.emit(enums.AuthEventSignedOut, nil)
	return nil
}

// GetSession returns the persisted session, refreshing an expired access token. A nil session
// with a nil error means nobody is signed in.
func (p *Provider) GetSession(ctx context.Context) (*Session, error) {
	rec, err := p.sessions.Current(ctx, p.authCfg.InstallationID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load session")
	}

	claims, err := pkgauth.ParseSessionTokenAllowExpired(p.jwtCfg, rec.AccessToken)
	if err != nil {
		p.logg.Warn(p.logg.WithField(ctx, "error", err.Error()), "discarding unreadable session")
		_ = p.sessions.Revoke(ctx, p.authCfg.InstallationID)
		return nil, nil
	}

	record, err := p.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if db.IsNotFound(err) {
			_ = p.sessions.Revoke(ctx, p.authCfg.InstallationID)
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load session user")
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	if !expires.IsZero() && !expires.After(p.now()) {
		return p.refresh(ctx, record, rec.RefreshToken)
	}
	return p.toSession(rec, record, expires), nil
}

// RefreshSession rotates the current session tokens.
func (p *Provider) RefreshSession(ctx context.Context) (*Session, error) {
	rec, err := p.sessions.Current(ctx, p.authCfg.InstallationID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "no active session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "load session")
	}
	userID, err := uuid.Parse(rec.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "session bound to malformed user id")
	}
	record, err := p.users.FindByID(ctx, userID)
	if err != nil {
		return nil, db.Classify(err, "load session user")
	}
	return p.refresh(ctx, record, rec.RefreshToken)
}

// UpdateUserMetadata merges metadata into the signed-in user's record.
func (p *Provider) UpdateUserMetadata(ctx context.Context, metadata Metadata) (*User, error) {
	if err := validate.Struct(metadata); err != nil {
		return nil, err
	}
	sess, err := p.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, pkgerrors.New(pkgerrors.CodeAuthentication, "no active session")
	}

	merged := sess.User.Metadata.Merge(metadata)
	if err := p.users.UpdateMetadata(ctx, sess.User.ID, metadataToModel(merged)); err != nil {
		return nil, db.Classify(err, "update user metadata")
	}
	sess.User.Metadata = merged
	p.emit(enums.AuthEventUserUpdated, sess)
	user := sess.User
	return &user, nil
}

// OnAuthStateChange registers fn for every change notification. Listeners run synchronously on
// the goroutine that caused the change and must not block.
func (p *Provider) OnAuthStateChange(fn func(AuthChange)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.listeners, id)
			p.mu.Unlock()
		})
	}
}

func (p *Provider) emit(event enums.AuthEvent, sess *Session) {
	p.mu.Lock()
	fns := make([]func(AuthChange), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		change := AuthChange{Event: event}
		if sess != nil {
			cp := *sess
			change.Session = &cp
		}
		fn(change)
	}
}

func (p *Provider) openSession(ctx context.Context, record *models.AuthUser) (*Session, error) {
	now := p.now().UTC()
	token, err := pkgauth.MintSessionToken(p.jwtCfg, now, pkgauth.SessionTokenPayload{
		UserID: record.ID,
		Email:  record.Email,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session token")
	}
	rec, err := p.sessions.Open(ctx, p.authCfg.InstallationID, record.ID.String(), token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "persist session")
	}
	return p.toSession(rec, record, now.Add(p.jwtCfg.AccessTTL())), nil
}

func (p *Provider) refresh(ctx context.Context, record *models.AuthUser, refreshToken string) (*Session, error) {
	now := p.now().UTC()
	token, err := pkgauth.MintSessionToken(p.jwtCfg, now, pkgauth.SessionTokenPayload{
		UserID: record.ID,
		Email:  record.Email,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint session token")
	}
	rec, err := p.sessions.Rotate(ctx, p.authCfg.InstallationID, refreshToken, token)
	if err != nil {
		if errors.Is(err, session.ErrInvalidRefreshToken) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeAuthentication, err, "session expired")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, "rotate session")
	}
	sess := p.toSession(rec, record, now.Add(p.jwtCfg.AccessTTL()))
	p.emit(enums.AuthEventTokenRefreshed, sess)
	return sess, nil
}

func (p *Provider) toSession(rec *session.Record, record *models.AuthUser, expires time.Time) *Session {
	return &Session{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		ExpiresAt:    expires,
		User:         userFromModel(record),
	}
}
