// Package session is the single source of truth for "who is logged in",
// independent of which login strategy produced the credential.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/types"
)

type State int

const (
	LoggedOut State = iota
	Authenticating
	LoggedIn
)

func (s State) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case LoggedIn:
		return "logged-in"
	default:
		return "logged-out"
	}
}

// LoginAPI is the chat-protocol login surface: the password grant talks to
// the homeserver directly, the SSO token grant goes through the proxy.
type LoginAPI interface {
	LoginPassword(ctx context.Context, username, password string) (types.Credential, error)
	LoginToken(ctx context.Context, ssoToken string) (types.Credential, error)
}

// Provider is the embedded-wallet auth provider. It runs the out-of-band
// verification state machines itself; these calls return once verification
// completed and a credential can be derived.
type Provider interface {
	LoginWithMagicLink(ctx context.Context, email string) (types.Credential, error)
	LoginWithEmailOTP(ctx context.Context, email string) (types.Credential, error)
	OAuthRedirectURL(provider, redirectURI string) string
	Logout(ctx context.Context, accessToken string) error
}

// CredentialStore is the durable storage adapter.
type CredentialStore interface {
	Save(cred types.Credential) error
	Load() *types.Credential
	Clear() error
}

// RemoteLogout invalidates a credential server-side. Failure is logged, never
// surfaced; local state clears regardless.
type RemoteLogout interface {
	Logout(ctx context.Context, cred types.Credential) error
}

type Store struct {
	api      LoginAPI
	provider Provider
	creds    CredentialStore
	remote   RemoteLogout

	mu    sync.Mutex
	state State
	cred  types.Credential
}

func NewStore(api LoginAPI, provider Provider, creds CredentialStore, remote RemoteLogout) *Store {
	return &Store{api: api, provider: provider, creds: creds, remote: remote}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Credential returns the active credential, or false when logged out.
func (s *Store) Credential() (types.Credential, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != LoggedIn {
		return types.Credential{}, false
	}
	return s.cred, true
}

// LoginWithPassword exchanges username/password for a credential. The store
// returns to LoggedOut on any failure; nothing is retried.
func (s *Store) LoginWithPassword(ctx context.Context, username, password string) error {
	return s.runLogin(func() (types.Credential, error) {
		return s.api.LoginPassword(ctx, username, password)
	})
}

// LoginWithToken exchanges a one-time SSO token via the backend proxy. On
// failure the caller is expected to send the user back to the login entry.
func (s *Store) LoginWithToken(ctx context.Context, ssoToken string) error {
	return s.runLogin(func() (types.Credential, error) {
		return s.api.LoginToken(ctx, ssoToken)
	})
}

// LoginWithMagicLink delegates to the wallet provider's out-of-band flow.
func (s *Store) LoginWithMagicLink(ctx context.Context, email string) error {
	return s.runLogin(func() (types.Credential, error) {
		return s.provider.LoginWithMagicLink(ctx, email)
	})
}

// LoginWithEmailOTP delegates to the wallet provider's one-time-code flow.
func (s *Store) LoginWithEmailOTP(ctx context.Context, email string) error {
	return s.runLogin(func() (types.Credential, error) {
		return s.provider.LoginWithEmailOTP(ctx, email)
	})
}

// GoogleLoginURL starts the redirect-style OAuth flow. Completion never
// arrives as a return value: the provider redirects back to the callback
// route, whose token is then fed to LoginWithToken.
func (s *Store) GoogleLoginURL(redirectURI string) string {
	return s.provider.OAuthRedirectURL("google", redirectURI)
}

func (s *Store) runLogin(strategy func() (types.Credential, error)) error {
	s.mu.Lock()
	if s.state == Authenticating {
		s.mu.Unlock()
		return apperr.Validation("login already in progress")
	}
	s.state = Authenticating
	s.mu.Unlock()

	cred, err := strategy()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = LoggedOut
		s.cred = types.Credential{}
		return err
	}
	if !cred.Valid() {
		s.state = LoggedOut
		s.cred = types.Credential{}
		return apperr.Auth("", "login produced an incomplete credential")
	}

	s.state = LoggedIn
	s.cred = cred
	if saveErr := s.creds.Save(cred); saveErr != nil {
		log.Error().Err(saveErr).Msg("failed to persist credential")
	}
	return nil
}

// RestoreSession loads a previously persisted credential. The credential is
// not validated against the backend; an expired token surfaces only on the
// first rejected call.
func (s *Store) RestoreSession() bool {
	cred := s.creds.Load()
	if cred == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = LoggedIn
	s.cred = *cred
	return true
}

// Logout clears the in-memory credential and durable storage unconditionally.
// Remote logout failures are logged, not surfaced.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	cred := s.cred
	s.state = LoggedOut
	s.cred = types.Credential{}
	s.mu.Unlock()

	if err := s.creds.Clear(); err != nil {
		log.Error().Err(err).Msg("failed to clear stored credential")
	}

	if !cred.Valid() {
		return
	}
	if s.remote != nil {
		if err := s.remote.Logout(ctx, cred); err != nil {
			log.Error().Err(err).Msg("remote logout failed")
		}
	}
	if s.provider != nil {
		if err := s.provider.Logout(ctx, cred.AccessToken); err != nil {
			log.Error().Err(err).Msg("wallet provider logout failed")
		}
	}
}

// ForceLogoutOnAuthError clears the session when a backend call was rejected
// for credential reasons. Stale tokens are not refreshed; the first rejection
// logs the user out. Reports whether a logout happened.
func (s *Store) ForceLogoutOnAuthError(ctx context.Context, err error) bool {
	if !apperr.IsAuth(err) {
		return false
	}
	if s.State() != LoggedIn {
		return false
	}
	log.Warn().Err(err).Msg("credential rejected by backend, logging out")
	s.Logout(ctx)
	return true
}
