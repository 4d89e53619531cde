// Package session owns the signed-in state of the client.
//
// A Manager starts in Restoring, settles in Anonymous or Authenticated once
// Restore finishes, and afterwards moves between those two only through its
// methods. The refresh and access credentials themselves never pass through
// here; they live in the cookie jar.
package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/go-authgate/climate-cli/api"
	"github.com/go-authgate/climate-cli/apierr"
	"github.com/go-authgate/climate-cli/store"
	"github.com/go-authgate/climate-cli/transport"
)

// State of the session.
type State int

const (
	Restoring State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Restoring:
		return "restoring"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

var (
	// ErrSessionNotConfirmed is returned when login succeeded at the HTTP level
	// but the server neither issued an access token nor described the user.
	ErrSessionNotConfirmed = &apierr.Error{
		Kind:    apierr.KindServer,
		Message: "the server did not confirm the session",
	}
	// ErrRefreshDenied is returned when a refresh was answered without a grant.
	ErrRefreshDenied = &apierr.Error{
		Kind:    apierr.KindAuth,
		Message: "your session has expired, please log in again",
	}
	// ErrSessionSuperseded is returned when the session changed (for example a
	// logout) while the operation was waiting for the server. Its result was
	// discarded.
	ErrSessionSuperseded = errors.New("session changed while the request was in flight")
)

// AuthAPI is the subset of the API client used for session transitions.
type AuthAPI interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResponse, error)
	Logout(ctx context.Context) (string, error)
	Register(ctx context.Context, form api.SignupForm) (*api.AuthResponse, error)
}

// TokenRefresher performs a single refresh call.
type TokenRefresher interface {
	Refresh(ctx context.Context) (api.Grant, error)
}

// ErrorSink is the global error channel.
type ErrorSink interface {
	Set(msg string)
	Clear()
}

// Snapshot is a consistent view of the session.
type Snapshot struct {
	State       State
	Username    string
	AuthLoading bool
}

// Manager is the session state machine. It is safe for concurrent use.
type Manager struct {
	api       AuthAPI
	refresher TokenRefresher
	marker    store.Store
	errs      ErrorSink
	logger    *zap.Logger

	mu       sync.Mutex
	state    State
	username string
	// epoch advances on every applied transition; results computed against
	// an older epoch are dropped.
	epoch uint64

	restoreOnce sync.Once
	restoreErr  error
	ready       chan struct{}

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// New returns a Manager in the Restoring state.
func New(authAPI AuthAPI, refresher TokenRefresher, marker store.Store, errs ErrorSink, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		api:       authAPI,
		refresher: refresher,
		marker:    marker,
		errs:      errs,
		logger:    logger.With(zap.String("component", "session")),
		state:     Restoring,
		ready:     make(chan struct{}),
		subs:      make(map[int]func(Snapshot)),
	}
}

// Ready is closed once restore has finished, successfully or not.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// WaitReady blocks until Ready is closed or ctx is done.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AuthLoading reports whether restore is still running. No access decision
// may be taken while it is true.
func (m *Manager) AuthLoading() bool {
	select {
	case <-m.ready:
		return false
	default:
		return true
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentUsername returns the signed-in username, or "" when anonymous.
func (m *Manager) CurrentUsername() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.username
}

// Snapshot returns state, username and loading flag together.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:       m.state,
		Username:    m.username,
		AuthLoading: m.AuthLoading(),
	}
}

// Subscribe registers fn to be called after every transition.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.subs, id)
		m.subMu.Unlock()
	}
}

func (m *Manager) notify() {
	snap := m.Snapshot()

	m.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

func (m *Manager) currentEpoch() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch
}

// authenticate moves to Authenticated if nothing changed since epoch.
func (m *Manager) authenticate(epoch uint64, username string) bool {
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return false
	}
	m.state = Authenticated
	m.username = username
	m.epoch++
	m.marker.Save(username)
	m.mu.Unlock()

	m.logger.Info("signed in", zap.String("username", username))
	m.notify()
	return true
}

// clearSession drops the local session unconditionally.
func (m *Manager) clearSession(reason string) {
	m.mu.Lock()
	prev := m.username
	m.state = Anonymous
	m.username = ""
	m.epoch++
	m.marker.Clear()
	m.mu.Unlock()

	m.logger.Info("signed out", zap.String("username", prev), zap.String("reason", reason))
	m.notify()
}

// reportGlobal pushes connectivity and server failures to the banner. Input
// errors stay with the caller.
func (m *Manager) reportGlobal(err error) {
	if apierr.IsGlobal(err) {
		m.errs.Set(apierr.Message(err))
	}
}

// Restore decides the initial state from the saved username and a refresh.
// Only the first call does any work; later calls return its result.
func (m *Manager) Restore(ctx context.Context) error {
	m.restoreOnce.Do(func() {
		m.restoreErr = m.restore(ctx)
	})
	return m.restoreErr
}

func (m *Manager) restore(ctx context.Context) error {
	defer m.finishRestore()

	saved, ok := m.marker.Read()
	if !ok {
		m.logger.Debug("no saved username, starting anonymous")
		return nil
	}

	epoch := m.currentEpoch()
	grant, err := m.refresher.Refresh(ctx)
	if err == nil && !grant.AccessGranted {
		err = ErrRefreshDenied
	}
	if err != nil {
		m.logger.Warn("automatic login failed", zap.String("username", saved), zap.Error(err))
		// an interrupted restore says nothing about the session
		if ctx.Err() == nil {
			m.mu.Lock()
			if m.epoch == epoch {
				m.marker.Clear()
			}
			m.mu.Unlock()
		}
		return err
	}

	if !m.authenticate(epoch, saved) {
		return ErrSessionSuperseded
	}
	return nil
}

func (m *Manager) finishRestore() {
	m.mu.Lock()
	if m.state == Restoring {
		m.state = Anonymous
	}
	close(m.ready)
	m.mu.Unlock()

	m.notify()
}

// Login signs in with creds. Missing fields are rejected before any request.
func (m *Manager) Login(ctx context.Context, creds api.Credentials) error {
	if creds.Username == "" || creds.Password == "" {
		return apierr.Validation("username and password are required")
	}

	epoch := m.currentEpoch()
	resp, err := m.api.Login(ctx, creds)
	if err == nil && !resp.Confirmed() {
		err = ErrSessionNotConfirmed
	}
	if err != nil {
		m.logger.Warn("login failed", zap.String("username", creds.Username), zap.Error(err))
		m.reportGlobal(err)
		return err
	}

	if !m.authenticate(epoch, creds.Username) {
		m.logger.Info("discarding login response after session change",
			zap.String("username", creds.Username))
		return ErrSessionSuperseded
	}
	m.errs.Clear()
	return nil
}

// Logout ends the session. Local state is cleared even when the server call
// fails; that failure is still returned.
func (m *Manager) Logout(ctx context.Context) error {
	defer m.clearSession("logout")

	// a 401 here means the session is already gone; no point refreshing it
	if _, err := m.api.Logout(transport.WithoutAuthRetry(ctx)); err != nil {
		m.logger.Warn("logout request failed", zap.Error(err))
		m.reportGlobal(err)
		return err
	}
	m.errs.Clear()
	return nil
}

// Signup registers an account and then logs in with it.
func (m *Manager) Signup(ctx context.Context, form api.SignupForm) error {
	if form.Username == "" || form.Email == "" || form.Password1 == "" || form.Password2 == "" {
		return apierr.Validation("all fields are required")
	}
	if form.Password1 != form.Password2 {
		return apierr.Validation("passwords do not match")
	}

	if _, err := m.api.Register(ctx, form); err != nil {
		m.logger.Warn("registration failed", zap.String("username", form.Username), zap.Error(err))
		m.reportGlobal(err)
		return err
	}

	return m.Login(ctx, api.Credentials{Username: form.Username, Password: form.Password1})
}

// RefreshAccessToken renews the access cookie. When that fails the server
// side session is gone, so the client logs out and returns the refresh error.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	grant, err := m.refresher.Refresh(ctx)
	if err == nil && !grant.AccessGranted {
		err = ErrRefreshDenied
	}
	if err == nil {
		m.logger.Debug("access token refreshed")
		return nil
	}

	m.logger.Warn("access token refresh failed, logging out", zap.Error(err))
	if logoutErr := m.Logout(ctx); logoutErr != nil {
		m.logger.Debug("logout after failed refresh also failed", zap.Error(logoutErr))
	}
	return err
}
