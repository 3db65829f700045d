// Package session holds the logged-in actor, the active view and every domain
// collection the views render.
//
// All collections live in one Data value that is only ever replaced under the
// State lock. Every identity or view transition clears Data and bumps the
// generation, which invalidates tokens handed out before the transition. Poll
// results carry the token they were fetched under and are dropped by Apply when
// it is no longer current.
package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"hpcmarket/pkg/api"
)

var (
	// ErrNotLoggedIn is returned by transitions that need a session.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrViewNotAllowed is returned when a view does not exist for the role.
	ErrViewNotAllowed = errors.New("view not available for role")

	// ErrInvalidActor is returned for non-positive actor ids.
	ErrInvalidActor = errors.New("actor id must be a positive integer")
)

// Authenticator registers actors with the backend.
type Authenticator interface {
	Login(ctx context.Context, id int64, userType string) (*api.LoginResponse, error)
	ProviderLogout(ctx context.Context, providerID int64) error
}

// Token identifies the context a fetch was issued under.
type Token struct {
	Generation uint64
	ActorID    int64
	Role       Role
	View       View
	Scope      int64
}

// Snapshot is a read-only copy of the state for rendering.
type Snapshot struct {
	Token    Token
	LoggedIn bool
	Data     Data
}

// State is the session container.
type State struct {
	auth Authenticator

	mu         sync.Mutex
	role       Role
	actorID    int64
	loggedIn   bool
	view       View
	scope      int64
	generation uint64
	data       Data

	changes chan struct{}
}

// New creates a logged-out state for role.
func New(role Role, auth Authenticator) *State {
	return &State{
		auth:    auth,
		role:    role,
		view:    ViewLogin,
		data:    newData(role),
		changes: make(chan struct{}, 1),
	}
}

// Changes signals after any observable change. Signals coalesce.
func (s *State) Changes() <-chan struct{} {
	return s.changes
}

func (s *State) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
		// Already a render pending
	}
}

// Login registers actorID with the backend and, on success, atomically clears
// every collection, sets the identity and selects the role's default view.
// On failure nothing changes.
func (s *State) Login(ctx context.Context, actorID int64) error {
	if actorID <= 0 {
		return ErrInvalidActor
	}
	if _, err := s.auth.Login(ctx, actorID, string(s.role)); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	s.mu.Lock()
	s.data = newData(s.role)
	s.actorID = actorID
	s.loggedIn = true
	s.view = s.role.DefaultView()
	s.scope = 0
	s.generation++
	s.mu.Unlock()

	s.notify()
	return nil
}

// Logout clears identity and every collection and returns to the login view.
// A provider is then marked unavailable on the backend; that call happens
// after the local clear and its error is returned for display only.
func (s *State) Logout(ctx context.Context) error {
	s.mu.Lock()
	if !s.loggedIn {
		s.mu.Unlock()
		return nil
	}
	actorID := s.actorID
	s.data = newData(s.role)
	s.actorID = 0
	s.loggedIn = false
	s.view = ViewLogin
	s.scope = 0
	s.generation++
	s.mu.Unlock()

	s.notify()

	if s.role == RoleProvider {
		if err := s.auth.ProviderLogout(ctx, actorID); err != nil {
			return fmt.Errorf("provider logout notification failed: %w", err)
		}
	}
	return nil
}

// Navigate switches to view with an optional scope (the request id of the bids
// view). Data is cleared, then init may seed the fresh value.
func (s *State) Navigate(view View, scope int64, init func(*Data)) error {
	s.mu.Lock()
	if view != ViewLogin && !s.loggedIn {
		s.mu.Unlock()
		return ErrNotLoggedIn
	}
	if !s.role.Allows(view) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrViewNotAllowed, view)
	}
	s.data = newData(s.role)
	if init != nil {
		init(&s.data)
	}
	s.view = view
	s.scope = scope
	s.generation++
	s.mu.Unlock()

	s.notify()
	return nil
}

// Reset is the single clear-all transition. Identity and view are kept; the
// generation moves so in-flight results for the old data are discarded.
func (s *State) Reset() {
	s.mu.Lock()
	s.data = newData(s.role)
	s.generation++
	s.mu.Unlock()

	s.notify()
}

// Token returns the current token.
func (s *State) Token() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenLocked()
}

func (s *State) tokenLocked() Token {
	return Token{
		Generation: s.generation,
		ActorID:    s.actorID,
		Role:       s.role,
		View:       s.view,
		Scope:      s.scope,
	}
}

// Valid reports whether token is still current.
func (s *State) Valid(token Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token == s.tokenLocked()
}

// Apply replaces Data with the result of fn iff token is still current.
// fn must assign new slices rather than modify the ones it finds. Subscribers
// are notified only when the data actually changed.
func (s *State) Apply(token Token, fn func(*Data)) bool {
	s.mu.Lock()
	if token != s.tokenLocked() {
		s.mu.Unlock()
		return false
	}
	next := s.data
	fn(&next)
	changed := !reflect.DeepEqual(next, s.data)
	s.data = next
	s.mu.Unlock()

	if changed {
		s.notify()
	}
	return true
}

// Update applies fn to the current data. Used for user-initiated changes such
// as banners and form edits.
func (s *State) Update(fn func(*Data)) {
	s.Apply(s.Token(), fn)
}

// Snapshot returns the current state for rendering.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Token:    s.tokenLocked(),
		LoggedIn: s.loggedIn,
		Data:     s.data,
	}
}

// Role returns the role the state was created for.
func (s *State) Role() Role {
	return s.role
}

// ActorID returns the logged-in actor, or ErrNotLoggedIn.
func (s *State) ActorID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loggedIn {
		return 0, ErrNotLoggedIn
	}
	return s.actorID, nil
}
