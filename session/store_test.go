package session

import (
	"context"
	"errors"
	"testing"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/types"
)

type fakeLoginAPI struct {
	cred types.Credential
	err  error
}

func (f *fakeLoginAPI) LoginPassword(_ context.Context, _, _ string) (types.Credential, error) {
	return f.cred, f.err
}

func (f *fakeLoginAPI) LoginToken(_ context.Context, _ string) (types.Credential, error) {
	return f.cred, f.err
}

type fakeProvider struct {
	cred      types.Credential
	err       error
	logoutErr error
}

func (f *fakeProvider) LoginWithMagicLink(_ context.Context, _ string) (types.Credential, error) {
	return f.cred, f.err
}

func (f *fakeProvider) LoginWithEmailOTP(_ context.Context, _ string) (types.Credential, error) {
	return f.cred, f.err
}

func (f *fakeProvider) OAuthRedirectURL(provider, redirectURI string) string {
	return "https://auth.example.com/oauth2/" + provider + "?redirect_uri=" + redirectURI
}

func (f *fakeProvider) Logout(_ context.Context, _ string) error {
	return f.logoutErr
}

type memStore struct {
	cred *types.Credential
}

func (m *memStore) Save(cred types.Credential) error {
	m.cred = &cred
	return nil
}

func (m *memStore) Load() *types.Credential {
	return m.cred
}

func (m *memStore) Clear() error {
	m.cred = nil
	return nil
}

type fakeRemote struct {
	called bool
	err    error
}

func (f *fakeRemote) Logout(_ context.Context, _ types.Credential) error {
	f.called = true
	return f.err
}

var aliceCred = types.Credential{AccessToken: "tok1", UserID: "@alice:example.org"}

func TestLoginWithPasswordSuccessPersists(t *testing.T) {
	creds := &memStore{}
	store := NewStore(&fakeLoginAPI{cred: aliceCred}, &fakeProvider{}, creds, nil)

	if err := store.LoginWithPassword(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if store.State() != LoggedIn {
		t.Fatalf("expected LoggedIn, got %v", store.State())
	}
	got, ok := store.Credential()
	if !ok || got != aliceCred {
		t.Fatalf("expected credential %+v, got %+v", aliceCred, got)
	}

	// A fresh restore from the same storage reproduces the credential.
	fresh := NewStore(&fakeLoginAPI{}, &fakeProvider{}, creds, nil)
	if !fresh.RestoreSession() {
		t.Fatalf("expected restore to succeed")
	}
	restored, ok := fresh.Credential()
	if !ok || restored != aliceCred {
		t.Fatalf("expected restored credential %+v, got %+v", aliceCred, restored)
	}
}

func TestLoginWithPasswordRejected(t *testing.T) {
	creds := &memStore{}
	api := &fakeLoginAPI{err: apperr.Auth("M_FORBIDDEN", "Invalid password")}
	store := NewStore(api, &fakeProvider{}, creds, nil)

	err := store.LoginWithPassword(context.Background(), "alice", "wrong")
	if err == nil {
		t.Fatalf("expected login to fail")
	}
	if !apperr.IsAuth(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if store.State() != LoggedOut {
		t.Fatalf("expected LoggedOut after rejection, got %v", store.State())
	}
	if creds.cred != nil {
		t.Fatalf("expected nothing persisted, got %+v", creds.cred)
	}
}

func TestLoginIncompleteCredentialTreatedAsLoggedOut(t *testing.T) {
	api := &fakeLoginAPI{cred: types.Credential{AccessToken: "tok-only"}}
	store := NewStore(api, &fakeProvider{}, &memStore{}, nil)

	if err := store.LoginWithPassword(context.Background(), "alice", "secret"); err == nil {
		t.Fatalf("expected partial credential to fail login")
	}
	if store.State() != LoggedOut {
		t.Fatalf("expected LoggedOut, got %v", store.State())
	}
}

func TestRestoreSessionEmptyStorage(t *testing.T) {
	store := NewStore(&fakeLoginAPI{}, &fakeProvider{}, &memStore{}, nil)
	if store.RestoreSession() {
		t.Fatalf("expected restore to report no session")
	}
	if store.State() != LoggedOut {
		t.Fatalf("expected LoggedOut, got %v", store.State())
	}
}

func TestLogoutClearsEvenWhenRemoteFails(t *testing.T) {
	creds := &memStore{}
	remote := &fakeRemote{err: errors.New("boom")}
	provider := &fakeProvider{cred: aliceCred, logoutErr: errors.New("provider down")}
	store := NewStore(&fakeLoginAPI{cred: aliceCred}, provider, creds, remote)

	if err := store.LoginWithPassword(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	store.Logout(context.Background())

	if !remote.called {
		t.Fatalf("expected remote logout to be attempted")
	}
	if store.State() != LoggedOut {
		t.Fatalf("expected LoggedOut after logout, got %v", store.State())
	}
	if creds.cred != nil {
		t.Fatalf("expected storage cleared, got %+v", creds.cred)
	}
}

func TestMagicLinkLogin(t *testing.T) {
	provider := &fakeProvider{cred: aliceCred}
	store := NewStore(&fakeLoginAPI{}, provider, &memStore{}, nil)

	if err := store.LoginWithMagicLink(context.Background(), "alice@example.org"); err != nil {
		t.Fatalf("magic link login: %v", err)
	}
	if store.State() != LoggedIn {
		t.Fatalf("expected LoggedIn, got %v", store.State())
	}
}

func TestGoogleLoginURL(t *testing.T) {
	store := NewStore(&fakeLoginAPI{}, &fakeProvider{}, &memStore{}, nil)
	url := store.GoogleLoginURL("http://localhost/callback")
	if url != "https://auth.example.com/oauth2/google?redirect_uri=http://localhost/callback" {
		t.Fatalf("unexpected redirect URL %q", url)
	}
	// Starting a redirect does not change state; completion arrives later
	// via the callback token.
	if store.State() != LoggedOut {
		t.Fatalf("expected LoggedOut while redirect is pending, got %v", store.State())
	}
}

func TestForceLogoutOnAuthError(t *testing.T) {
	creds := &memStore{}
	store := NewStore(&fakeLoginAPI{cred: aliceCred}, &fakeProvider{}, creds, nil)
	if err := store.LoginWithPassword(context.Background(), "alice", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if store.ForceLogoutOnAuthError(context.Background(), errors.New("not auth")) {
		t.Fatalf("expected non-auth error to be ignored")
	}
	if store.State() != LoggedIn {
		t.Fatalf("expected to stay LoggedIn, got %v", store.State())
	}

	if !store.ForceLogoutOnAuthError(context.Background(), apperr.Auth("M_UNKNOWN_TOKEN", "expired")) {
		t.Fatalf("expected auth error to force logout")
	}
	if store.State() != LoggedOut || creds.cred != nil {
		t.Fatalf("expected cleared session after rejected token")
	}
}
