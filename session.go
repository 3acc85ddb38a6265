package archive

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// TransitionListener observes session transitions. Listeners run after the
// transition's effects have completed and must not block.
type TransitionListener func(from, to Snapshot)

// SessionManager owns the one client session. It is the single writer of
// session state and of the TokenStore; everything else reads snapshots.
type SessionManager struct {
	mu         sync.Mutex
	api        AuthAPI
	tokens     TokenStore
	state      Snapshot
	generation uint64

	logger        Logger
	listeners     []TransitionListener
	teardown      func()
	refreshLeeway time.Duration
}

// NewSessionManager returns a manager in StatusUnknown; call Bootstrap to
// settle the initial state from the persisted token.
func NewSessionManager(api AuthAPI, tokens TokenStore) *SessionManager {
	return &SessionManager{
		api:           api,
		tokens:        tokens,
		state:         Snapshot{Status: StatusUnknown},
		logger:        defLogger{},
		refreshLeeway: 30 * time.Second,
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithRealtimeTeardown sets the hook run when a transition tears down the
// realtime channel (logout). Typically realtime.Channel.Disconnect.
func (m *SessionManager) WithRealtimeTeardown(fn func()) *SessionManager {
	m.teardown = fn
	return m
}

// WithRefreshLeeway sets how close to expiry a persisted token must be for
// Bootstrap to refresh it instead of verifying it.
func (m *SessionManager) WithRefreshLeeway(d time.Duration) *SessionManager {
	if d > 0 {
		m.refreshLeeway = d
	}
	return m
}

// OnTransition registers a listener for session transitions. The UI uses
// this to fall back to the login view when the session goes anonymous.
func (m *SessionManager) OnTransition(fn TransitionListener) *SessionManager {
	if fn != nil {
		m.mu.Lock()
		m.listeners = append(m.listeners, fn)
		m.mu.Unlock()
	}
	return m
}

// Snapshot returns a copy of the current session state.
func (m *SessionManager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Status: m.state.Status, User: m.state.User.Clone(), Token: m.state.Token}
}

// Status is a convenience accessor for Snapshot().Status.
func (m *SessionManager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Status
}

// CurrentUser returns the authenticated user, or nil.
func (m *SessionManager) CurrentUser() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.User.Clone()
}

// Bootstrap settles the initial session from the persisted token: verify it
// (refreshing first when it is about to expire), or go straight to
// anonymous when no token was stored. It is a no-op unless the session is
// still StatusUnknown.
//
// A rejected token ends anonymous with the store cleared and returns nil;
// only transport failures return an error (the session still ends
// anonymous so the UI is never stuck on the unknown state).
func (m *SessionManager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status != StatusUnknown {
		m.mu.Unlock()
		m.logger.Debug("bootstrap skipped, session already settled: %s", m.state.Status)
		return nil
	}

	token, ok := m.tokens.Get()
	if !ok {
		rec, err := m.applyLocked(EventAuthFailed{})
		m.mu.Unlock()
		if err != nil {
			return err
		}
		m.dispatch(rec)
		return nil
	}

	gen := m.generation
	began, err := m.applyLocked(EventAuthBegan{})
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.dispatch(began)

	user, token, verifyErr := m.verifyOrRefresh(ctx, token)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Debug("bootstrap result discarded, session torn down while in flight")
		return nil
	}

	if verifyErr != nil {
		rec, applyErr := m.applyLocked(EventAuthFailed{})
		m.mu.Unlock()
		if applyErr != nil {
			return applyErr
		}
		m.dispatch(rec)
		if IsTransportError(verifyErr) {
			return verifyErr
		}
		m.logger.Info("bootstrap token rejected, session is anonymous")
		return nil
	}

	rec, applyErr := m.applyLocked(EventAuthSucceeded{User: user, Token: token})
	m.mu.Unlock()
	if applyErr != nil {
		return applyErr
	}
	m.dispatch(rec)
	return nil
}

// verifyOrRefresh validates a persisted token with the API, renewing it
// first when the local expiry peek says a verify is doomed.
func (m *SessionManager) verifyOrRefresh(ctx context.Context, token string) (*User, string, error) {
	if TokenNeedsRefresh(token, m.refreshLeeway) {
		m.logger.Debug("persisted token near expiry, refreshing before verify")
		renewed, err := m.api.Refresh(ctx, token)
		if err != nil {
			return nil, "", err
		}
		token = renewed
	}

	user, err := m.api.Verify(ctx, token)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Login authenticates with the archive. Credential rejections come back as
// a LoginResult with Success false and the server's Persian message; only
// transport failures return an error. Either failure leaves the session
// anonymous.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	m.mu.Lock()
	gen := m.generation
	began, err := m.applyLocked(EventAuthBegan{})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	m.dispatch(began)

	result, loginErr := m.api.Login(ctx, email, password)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Debug("login result discarded, session torn down while in flight")
		return nil, ErrNotAuthenticated
	}

	if loginErr != nil {
		rec, applyErr := m.applyLocked(EventAuthFailed{})
		m.mu.Unlock()
		if applyErr != nil {
			return nil, applyErr
		}
		m.dispatch(rec)
		return nil, loginErr
	}

	if !result.Success {
		rec, applyErr := m.applyLocked(EventAuthFailed{})
		m.mu.Unlock()
		if applyErr != nil {
			return nil, applyErr
		}
		m.dispatch(rec)
		return result, nil
	}

	if result.User == nil || result.Token == "" {
		rec, applyErr := m.applyLocked(EventAuthFailed{})
		m.mu.Unlock()
		if applyErr != nil {
			return nil, applyErr
		}
		m.dispatch(rec)
		return nil, goerrors.New("login response missing user or token", goerrors.CategoryOperation).
			WithTextCode(textCodeTransportError)
	}

	rec, applyErr := m.applyLocked(EventAuthSucceeded{User: result.User, Token: result.Token})
	m.mu.Unlock()
	if applyErr != nil {
		return nil, applyErr
	}
	m.dispatch(rec)
	return result, nil
}

// Register creates an account without authenticating it. The requested
// role is always downgraded to RoleViewer so self-registration cannot
// escalate privileges, whatever the caller asked for.
func (m *SessionManager) Register(ctx context.Context, data RegisterData) (*OutcomeResult, error) {
	if data.Role != RoleViewer {
		m.logger.Debug("register downgrading requested role %q to %q", data.Role, RoleViewer)
	}
	data.Role = RoleViewer
	return m.api.Register(ctx, data)
}

// Logout tears the session down. The token store is cleared and the
// realtime channel closed before the network logout call, so the client is
// unauthenticated even if that call fails. Calling Logout on an anonymous
// session is a no-op.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Status == StatusAnonymous {
		m.mu.Unlock()
		return nil
	}

	token := m.state.Token
	m.generation++
	rec, err := m.applyLocked(EventLoggedOut{})
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.dispatch(rec)

	if token != "" {
		// Best effort: the server invalidates its session record, but the
		// client is already logged out either way.
		if err := m.api.Logout(ctx, token); err != nil {
			m.logger.Warn("server logout failed: %v", err)
		}
	}
	return nil
}

// UpdateUser persists a profile change and merges the result into the
// session's user record. The token is untouched. It is a no-op when the
// session is not authenticated.
func (m *SessionManager) UpdateUser(ctx context.Context, update ProfileUpdate) error {
	m.mu.Lock()
	if !m.state.Authenticated() {
		m.mu.Unlock()
		return nil
	}
	token := m.state.Token
	gen := m.generation
	current := m.state.User.Clone()
	m.mu.Unlock()

	updated, err := m.api.UpdateProfile(ctx, token, update)
	if err != nil {
		return err
	}
	if updated == nil {
		updated = mergeProfile(current, update)
	}

	m.mu.Lock()
	if m.generation != gen || !m.state.Authenticated() {
		m.mu.Unlock()
		return nil
	}
	rec, applyErr := m.applyLocked(EventUserUpdated{User: updated})
	m.mu.Unlock()
	if applyErr != nil {
		return applyErr
	}
	m.dispatch(rec)
	return nil
}

// RefreshToken renews the bearer token through the refresh endpoint. It is
// invoked by the Dispatcher on a 401; the Dispatcher coalesces concurrent
// callers so at most one refresh is in flight. A refresh that settles
// after Logout is discarded: the session stays anonymous.
func (m *SessionManager) RefreshToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.state.Status != StatusAuthenticated {
		m.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	token := m.state.Token
	user := m.state.User.Clone()
	gen := m.generation
	began, err := m.applyLocked(EventAuthBegan{})
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	m.dispatch(began)

	renewed, refreshErr := m.api.Refresh(ctx, token)

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.logger.Debug("refresh result discarded, session torn down while in flight")
		return "", ErrNotAuthenticated
	}

	if refreshErr != nil {
		rec, applyErr := m.applyLocked(EventAuthFailed{})
		m.mu.Unlock()
		if applyErr != nil {
			return "", applyErr
		}
		m.dispatch(rec)
		if IsTransportError(refreshErr) {
			return "", refreshErr
		}
		return "", ErrRefreshFailed
	}

	rec, applyErr := m.applyLocked(EventAuthSucceeded{User: user, Token: renewed})
	m.mu.Unlock()
	if applyErr != nil {
		return "", applyErr
	}
	m.dispatch(rec)
	return renewed, nil
}

type transitionRecord struct {
	from     Snapshot
	to       Snapshot
	teardown bool
}

// applyLocked runs one transition and its synchronous effects. Callers
// must hold m.mu; the returned record is dispatched after unlocking.
func (m *SessionManager) applyLocked(event Event) (transitionRecord, error) {
	next, effects, err := Transition(m.state, event)
	if err != nil {
		return transitionRecord{}, err
	}

	rec := transitionRecord{from: m.state, to: next}
	for _, effect := range effects {
		switch effect.Kind {
		case EffectPersistToken:
			if err := m.tokens.Set(effect.Token); err != nil {
				m.logger.Error("failed to persist token: %v", err)
			}
		case EffectClearToken:
			if err := m.tokens.Clear(); err != nil {
				m.logger.Error("failed to clear token store: %v", err)
			}
		case EffectTeardownRealtime:
			rec.teardown = true
		}
	}

	m.state = next
	return rec, nil
}

// dispatch runs deferred effects and listeners without holding the lock so
// they may read session state.
func (m *SessionManager) dispatch(rec transitionRecord) {
	if rec.teardown && m.teardown != nil {
		m.teardown()
	}

	m.mu.Lock()
	listeners := make([]TransitionListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	for _, listener := range listeners {
		listener(rec.from, rec.to)
	}
}

func mergeProfile(user *User, update ProfileUpdate) *User {
	merged := user.Clone()
	if merged == nil {
		return nil
	}
	if update.Name != nil {
		merged.Name = *update.Name
	}
	if update.Email != nil {
		merged.Email = *update.Email
	}
	return merged
}
