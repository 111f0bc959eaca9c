package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/storefront/internal/identity"
	"github.com/angelmondragon/storefront/internal/profiles"
	"github.com/angelmondragon/storefront/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront/pkg/errors"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/notify"
	"go.uber.org/multierr"
)

const (
	inboxSize             = 64
	defaultResolveTimeout = 10 * time.Second
	closeTimeout          = 5 * time.Second
)

var (
	ErrAlreadyStarted = errors.New("session store already started")
	ErrClosed         = errors.New("session store closed")
)

// AuthClient is the hosted auth collaborator the store drives.
type AuthClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	SignUp(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.SignUpResult, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*identity.Session, error)
	OnAuthStateChange(fn func(identity.AuthChange)) func()
	UpdateUserMetadata(ctx context.Context, metadata identity.Metadata) (*identity.User, error)
}

// ProfileResolver hydrates identities and persists profile edits.
type ProfileResolver interface {
	Resolve(ctx context.Context, user identity.User) (profiles.Resolution, error)
	Save(ctx context.Context, user identity.User) error
}

type transitionObserver interface {
	IncAuthEvent(event string)
	IncSessionTransition(phase string)
}

// Params bundles the store collaborators. Notifier, Metrics and Logger are optional.
type Params struct {
	Auth           AuthClient
	Resolver       ProfileResolver
	Notifier       notify.Notifier
	Metrics        transitionObserver
	Logger         *logger.Logger
	ResolveTimeout time.Duration
}

type source int

const (
	sourceInitial source = iota
	sourceChange
)

type changeMsg struct {
	change identity.AuthChange
}

type resultMsg struct {
	source source
	epoch  uint64
	user   *identity.User
	res    profiles.Resolution
	err    error
}

type logoutMsg struct {
	done chan struct{}
}

// Store is the single holder of the signed-in identity. All state changes happen on one loop
// goroutine; auth notifications and resolver results reach it as messages.
type Store struct {
	auth           AuthClient
	resolver       ProfileResolver
	notifier       notify.Notifier
	metrics        transitionObserver
	logg           *logger.Logger
	resolveTimeout time.Duration

	mu    sync.RWMutex
	state State

	subsMu     sync.Mutex
	subs       map[uint64]chan State
	nextSub    uint64
	subsClosed bool

	lifecycle   sync.Mutex
	started     bool
	closed      bool
	running     atomic.Bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	inbox       chan any
	done        chan struct{}
	loopDone    chan struct{}
	workers     sync.WaitGroup

	panicsMu sync.Mutex
	panics   []error

	// loop-owned
	epoch         uint64
	barrier       uint64
	changeApplied bool
	pending       map[uint64]int

	// afterResult observes every resolver result handled by the loop.
	afterResult func(src source, applied bool)
}

func New(params Params) (*Store, error) {
	if params.Auth == nil {
		return nil, fmt.Errorf("auth client is required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if params.Notifier == nil {
		params.Notifier = notify.Discard{}
	}
	if params.Logger == nil {
		params.Logger = logger.Nop()
	}
	if params.ResolveTimeout <= 0 {
		params.ResolveTimeout = defaultResolveTimeout
	}
	return &Store{
		auth:           params.Auth,
		resolver:       params.Resolver,
		notifier:       params.Notifier,
		metrics:        params.Metrics,
		logg:           params.Logger,
		resolveTimeout: params.ResolveTimeout,
		state:          unresolvedState(),
		subs:           make(map[uint64]chan State),
		inbox:          make(chan any, inboxSize),
		done:           make(chan struct{}),
		loopDone:       make(chan struct{}),
		pending:        make(map[uint64]int),
	}, nil
}

// Start subscribes to the auth change feed and issues the initial session check. ctx bounds the
// store's background work.
func (s *Store) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true

	s.ctx, s.cancel = context.WithCancel(s.logg.WithComponent(ctx, "session_store"))
	s.pending[0] = 1
	s.running.Store(true)
	s.unsubscribe = s.auth.OnAuthStateChange(s.onAuthChange)

	go s.loop()
	s.workers.Add(1)
	go s.initialCheck()
	return nil
}

// Close unsubscribes from the auth feed, stops the loop and discards results still in flight.
func (s *Store) Close() error {
	s.lifecycle.Lock()
	if s.closed {
		s.lifecycle.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.lifecycle.Unlock()

	if !started {
		s.closeSubscribers()
		return nil
	}

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.running.Store(false)
	s.cancel()
	close(s.done)
	<-s.loopDone

	waitErr := s.waitWorkers(closeTimeout)
	s.closeSubscribers()

	s.panicsMu.Lock()
	errs := append([]error{waitErr}, s.panics...)
	s.panicsMu.Unlock()
	return multierr.Combine(errs...)
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe returns a channel carrying the latest state, starting with the current one. Slow
// readers only ever see the newest snapshot. The returned func closes the channel.
func (s *Store) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.subsMu.Lock()
	if s.subsClosed {
		s.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	ch <- s.State()
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Login forwards credentials and, on success, resolves the role right away so callers can route
// admins without waiting for the state transition.
func (s *Store) Login(ctx context.Context, email, password string) (bool, error) {
	sess, err := s.auth.SignInWithPassword(ctx, email, password)
	if err != nil {
		err = remoteError(err, "sign in")
		s.notifyFailure(ctx, "Sign in failed", err)
		return false, err
	}

	res, err := s.resolver.Resolve(ctx, sess.User)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "role resolution after sign in failed")
		return false, nil
	}
	s.notifier.Notify(ctx, notify.Success("Signed in", "Welcome back, "+res.Profile.Name))
	return res.IsAdmin, nil
}

// Signup registers an account with profile fields carried as metadata. The store does not assume a
// session exists afterwards; the auth feed reports one when the backend opens it.
func (s *Store) Signup(ctx context.Context, email, password string, metadata identity.Metadata) (*identity.SignUpResult, error) {
	res, err := s.auth.SignUp(ctx, email, password, metadata)
	if err != nil {
		err = remoteError(err, "sign up")
		s.notifyFailure(ctx, "Sign up failed", err)
		return nil, err
	}
	if res.ConfirmationRequired {
		s.notifier.Notify(ctx, notify.Info("Check your email", "Confirm your address to finish signing up."))
	} else {
		s.notifier.Notify(ctx, notify.Success("Account created", "You are now signed in."))
	}
	return res, nil
}

// Logout asks the backend to end the session and always moves the store to Anonymous. The remote
// error, if any, is returned after the local transition.
func (s *Store) Logout(ctx context.Context) error {
	remoteErr := s.auth.SignOut(ctx)

	done := make(chan struct{})
	if s.post(logoutMsg{done: done}) {
		select {
		case <-done:
		case <-s.done:
			s.set(anonymousState())
		}
	} else {
		s.set(anonymousState())
	}

	if remoteErr != nil {
		err := remoteError(remoteErr, "sign out")
		s.logg.Error(ctx, "remote sign out failed", err)
		s.notifyFailure(ctx, "Sign out failed", err)
		return err
	}
	s.notifier.Notify(ctx, notify.Info("Signed out", "See you soon."))
	return nil
}

// UpdateProfile writes metadata to the identity and its profile record. The USER_UPDATED
// notification re-resolves the state.
func (s *Store) UpdateProfile(ctx context.Context, metadata identity.Metadata) error {
	if !s.State().Authenticated() {
		return pkgerrors.New(pkgerrors.CodeAuthentication, "sign in to update your profile")
	}
	user, err := s.auth.UpdateUserMetadata(ctx, metadata)
	if err != nil {
		err = remoteError(err, "update profile")
		s.notifyFailure(ctx, "Profile update failed", err)
		return err
	}
	if err := s.resolver.Save(ctx, *user); err != nil {
		err = remoteError(err, "save profile")
		s.notifyFailure(ctx, "Profile update failed", err)
		return err
	}
	s.notifier.Notify(ctx, notify.Success("Profile updated", "Your changes were saved."))
	return nil
}

func (s *Store) onAuthChange(change identity.AuthChange) {
	s.post(changeMsg{change: change})
}

func (s *Store) post(msg any) bool {
	if !s.running.Load() {
		return false
	}
	select {
	case s.inbox <- msg:
		return true
	case <-s.done:
		return false
	}
}

func (s *Store) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.inbox:
			switch m := msg.(type) {
			case changeMsg:
				s.handleChange(m.change)
			case resultMsg:
				s.handleResult(m)
			case logoutMsg:
				s.epoch++
				s.barrier = s.epoch
				s.changeApplied = true
				s.set(anonymousState())
				close(m.done)
			}
		}
	}
}

func (s *Store) handleChange(change identity.AuthChange) {
	if s.metrics != nil {
		s.metrics.IncAuthEvent(change.Event.String())
	}
	s.epoch++
	ctx := s.logg.WithField(s.ctx, "auth_event", change.Event.String())

	if change.Event == enums.AuthEventSignedOut || change.Session == nil {
		s.barrier = s.epoch
		s.changeApplied = true
		s.logg.Debug(ctx, "auth change without user")
		s.set(anonymousState())
		return
	}

	user := change.Session.User
	s.pending[s.epoch]++
	next := s.State()
	if next.User != nil && next.User.ID != user.ID {
		// A different identity keeps nothing of the previous one while it resolves.
		incoming := user
		next = State{Phase: PhaseAuthenticated, User: &incoming}
	}
	next.Loading = true
	s.set(next)

	s.workers.Add(1)
	go s.resolveUser(sourceChange, s.epoch, user)
}

func (s *Store) handleResult(msg resultMsg) {
	if s.pending[msg.epoch] > 1 {
		s.pending[msg.epoch]--
	} else {
		delete(s.pending, msg.epoch)
	}

	stale := msg.epoch < s.barrier || (msg.source == sourceInitial && s.changeApplied)
	if s.afterResult != nil {
		defer s.afterResult(msg.source, !stale)
	}
	if stale {
		if cur := s.State(); cur.Loading != s.loading() {
			cur.Loading = s.loading()
			s.set(cur)
		}
		return
	}
	if msg.source == sourceChange {
		s.changeApplied = true
	}

	ctx := s.ctx
	if msg.user == nil {
		if msg.err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", msg.err.Error()), "initial session check failed")
		}
		next := anonymousState()
		next.Loading = s.loading()
		s.set(next)
		return
	}

	next := State{Phase: PhaseAuthenticated, User: msg.user, Loading: s.loading()}
	if msg.err != nil {
		ctx = s.logg.WithUserID(ctx, msg.user.ID.String())
		s.logg.Error(ctx, "profile resolution failed", msg.err)
		s.notifier.Notify(ctx, notify.Error("Profile unavailable", "We could not load your profile."))
	} else {
		profile := msg.res.Profile
		next.Profile = &profile
		next.IsAdmin = msg.res.IsAdmin
	}
	s.set(next)
}

// loading reports whether a resolution that could still be applied is in flight.
func (s *Store) loading() bool {
	for epoch, n := range s.pending {
		if n <= 0 || epoch < s.barrier {
			continue
		}
		if epoch == 0 && s.changeApplied {
			continue
		}
		return true
	}
	return false
}

func (s *Store) initialCheck() {
	sess, err := s.currentSession()
	if err != nil || sess == nil {
		defer s.workers.Done()
		s.post(resultMsg{source: sourceInitial, err: err})
		return
	}
	s.resolveUser(sourceInitial, 0, sess.User)
}

func (s *Store) currentSession() (sess *identity.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			sess, err = nil, s.recordPanic("initial session check", r)
		}
	}()
	ctx, cancel := context.WithTimeout(s.ctx, s.resolveTimeout)
	defer cancel()
	return s.auth.GetSession(ctx)
}

func (s *Store) resolveUser(src source, epoch uint64, user identity.User) {
	msg := resultMsg{source: src, epoch: epoch, user: &user}
	defer s.workers.Done()
	defer func() {
		if r := recover(); r != nil {
			msg.err = s.recordPanic("profile resolver", r)
		}
		s.post(msg)
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.resolveTimeout)
	defer cancel()
	msg.res, msg.err = s.resolver.Resolve(ctx, user)
}

func (s *Store) set(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev.Phase != next.Phase {
		if s.metrics != nil {
			s.metrics.IncSessionTransition(next.Phase.String())
		}
		if s.ctx != nil {
			s.logg.Info(s.logg.WithField(s.ctx, "phase", next.Phase.String()), "session phase changed")
		}
	}
	s.publish(next)
}

func (s *Store) publish(st State) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- st:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}

func (s *Store) closeSubscribers() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	s.subsClosed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) waitWorkers(timeout time.Duration) error {
	finished := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("session store: workers still running after %s", timeout)
	}
}

func (s *Store) recordPanic(op string, r any) error {
	err := fmt.Errorf("%s panicked: %v", op, r)
	s.panicsMu.Lock()
	s.panics = append(s.panics, err)
	s.panicsMu.Unlock()
	s.logg.Error(s.ctx, "recovered panic in session store worker", err)
	return err
}

func (s *Store) notifyFailure(ctx context.Context, title string, err error) {
	body := err.Error()
	if typed := pkgerrors.As(err); typed != nil {
		body = typed.Message()
	}
	s.notifier.Notify(ctx, notify.Error(title, body))
}

// remoteError keeps typed errors and classifies anything else as a backend failure.
func remoteError(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeRemoteUnavailable, err, op+" failed")
}
