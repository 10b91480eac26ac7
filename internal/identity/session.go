package identity

import (
	"context"
	"sync"

	"github.com/anonto42/lovesignal/backend/internal/store"
)

// Session holds the current identity of one client and notifies listeners when it changes.
type Session struct {
	provider Provider

	mu        sync.Mutex
	current   *Credentials
	listeners map[int]func(*Credentials)
	nextID    int
}

func NewSession(provider Provider) *Session {
	return &Session{
		provider:  provider,
		listeners: make(map[int]func(*Credentials)),
	}
}

// Current returns the signed-in identity, if any.
func (s *Session) Current() (Credentials, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Credentials{}, false
	}
	return *s.current, true
}

func (s *Session) SignUp(ctx context.Context, email, password string) (Credentials, error) {
	creds, err := s.provider.SignUp(ctx, email, password)
	if err != nil {
		return Credentials{}, err
	}
	s.set(&creds)
	return creds, nil
}

func (s *Session) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	creds, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return Credentials{}, err
	}
	s.set(&creds)
	return creds, nil
}

func (s *Session) SignInAnonymously(ctx context.Context) (Credentials, error) {
	creds, err := s.provider.SignInAnonymously(ctx)
	if err != nil {
		return Credentials{}, err
	}
	s.set(&creds)
	return creds, nil
}

// EnsureSignedIn returns the current identity, signing in anonymously when there is none.
func (s *Session) EnsureSignedIn(ctx context.Context) (Credentials, error) {
	if creds, ok := s.Current(); ok {
		return creds, nil
	}
	return s.SignInAnonymously(ctx)
}

// SignOut revokes the current identity's tokens and clears the session. Signing out of an
// empty session is a no-op.
func (s *Session) SignOut(ctx context.Context) error {
	creds, ok := s.Current()
	if !ok {
		return nil
	}
	if err := s.provider.SignOut(ctx, creds.IdentityID); err != nil {
		return err
	}
	s.set(nil)
	return nil
}

// OnAuthStateChange calls fn with the current identity, nil when signed out, right away
// and then after every change until the returned handle is unsubscribed.
func (s *Session) OnAuthStateChange(fn func(*Credentials)) store.Subscription {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	current := copyCredentials(s.current)
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return store.SubscriptionFunc(func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	})
}

func (s *Session) set(creds *Credentials) {
	s.mu.Lock()
	s.current = copyCredentials(creds)
	listeners := make([]func(*Credentials), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(copyCredentials(creds))
	}
}

func copyCredentials(c *Credentials) *Credentials {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}
