package archive

import (
	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_SESSION_TRANSITION"

// ErrInvalidTransition is returned when an event arrives in a status that
// cannot accept it, e.g. an auth outcome with no attempt in flight.
var ErrInvalidTransition = goerrors.New("invalid session state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// Status is the authentication state of the client session.
type Status string

const (
	// StatusUnknown is the initial status, before Bootstrap has settled.
	StatusUnknown Status = "unknown"
	// StatusAuthenticating covers any in-flight login, verify, or refresh.
	StatusAuthenticating Status = "authenticating"
	StatusAuthenticated  Status = "authenticated"
	// StatusAnonymous means there is confirmed no valid session.
	StatusAnonymous Status = "anonymous"
)

// Snapshot is an immutable view of the session. The invariant holds for
// every reachable snapshot: User and Token are both set exactly when
// Status is StatusAuthenticated.
type Snapshot struct {
	Status Status
	User   *User
	Token  string
}

// Authenticated reports whether the snapshot carries a live session.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil && s.Token != ""
}

// EffectKind names a side effect the caller must perform after applying a
// transition. Keeping effects as data keeps Transition pure.
type EffectKind string

const (
	// EffectPersistToken mirrors the new token into the TokenStore.
	EffectPersistToken EffectKind = "persist_token"
	// EffectClearToken removes the persisted token.
	EffectClearToken EffectKind = "clear_token"
	// EffectTeardownRealtime closes the realtime channel.
	EffectTeardownRealtime EffectKind = "teardown_realtime"
)

type Effect struct {
	Kind  EffectKind
	Token string
}

// Event drives a session transition.
type Event interface {
	eventName() string
}

// EventAuthBegan marks the start of a login, bootstrap verify, or refresh.
type EventAuthBegan struct{}

// EventAuthSucceeded carries the outcome of a successful authentication.
type EventAuthSucceeded struct {
	User  *User
	Token string
}

// EventAuthFailed marks a settled attempt with no session: bad credentials,
// rejected token, or a transport failure during authentication.
type EventAuthFailed struct{}

// EventLoggedOut is an explicit logout. Applying it to an already anonymous
// session is a no-op.
type EventLoggedOut struct{}

// EventUserUpdated replaces the user record of an authenticated session.
// The token is untouched.
type EventUserUpdated struct {
	User *User
}

func (EventAuthBegan) eventName() string     { return "auth_began" }
func (EventAuthSucceeded) eventName() string { return "auth_succeeded" }
func (EventAuthFailed) eventName() string    { return "auth_failed" }
func (EventLoggedOut) eventName() string     { return "logged_out" }
func (EventUserUpdated) eventName() string   { return "user_updated" }

// Transition computes the next session snapshot for an event plus the side
// effects the caller must run. It performs no I/O.
func Transition(current Snapshot, event Event) (Snapshot, []Effect, error) {
	switch ev := event.(type) {
	case EventAuthBegan:
		// Valid from every status: login restarts an anonymous session,
		// refresh suspends an authenticated one.
		return Snapshot{Status: StatusAuthenticating}, nil, nil

	case EventAuthSucceeded:
		if current.Status != StatusAuthenticating {
			return current, nil, invalidTransition(current.Status, event)
		}
		if ev.User == nil || ev.Token == "" {
			return current, nil, ErrInvalidTransition.WithMetadata(map[string]any{
				"event":  event.eventName(),
				"reason": "user and token must both be present",
			})
		}
		next := Snapshot{Status: StatusAuthenticated, User: ev.User.Clone(), Token: ev.Token}
		return next, []Effect{{Kind: EffectPersistToken, Token: ev.Token}}, nil

	case EventAuthFailed:
		// StatusUnknown is accepted so bootstrap can settle to anonymous
		// without an attempt when no token was persisted.
		if current.Status != StatusAuthenticating && current.Status != StatusUnknown {
			return current, nil, invalidTransition(current.Status, event)
		}
		return Snapshot{Status: StatusAnonymous}, []Effect{{Kind: EffectClearToken}}, nil

	case EventLoggedOut:
		if current.Status == StatusAnonymous {
			return current, nil, nil
		}
		next := Snapshot{Status: StatusAnonymous}
		return next, []Effect{{Kind: EffectClearToken}, {Kind: EffectTeardownRealtime}}, nil

	case EventUserUpdated:
		if current.Status != StatusAuthenticated {
			return current, nil, nil
		}
		if ev.User == nil {
			return current, nil, nil
		}
		next := Snapshot{Status: StatusAuthenticated, User: ev.User.Clone(), Token: current.Token}
		return next, nil, nil

	default:
		return current, nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "unrecognized event",
		})
	}
}

func invalidTransition(from Status, event Event) error {
	return ErrInvalidTransition.WithMetadata(map[string]any{
		"from":  from,
		"event": event.eventName(),
	})
}
