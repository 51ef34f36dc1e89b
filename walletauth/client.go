// Package walletauth talks to the embedded-wallet provider: email-based
// login, OAuth redirects, user metadata, and remote transaction signing.
// The provider owns key custody and the out-of-band verification state
// machines; this client only calls in and waits.
package walletauth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/types"
)

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey, HTTP: &http.Client{}}
}

type loginRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	IDToken string `json:"idToken"`
	UserID  string `json:"userId"`
	Error   string `json:"error"`
}

// UserMetadata is the provider-side identity, including the custodial
// wallet's public address.
type UserMetadata struct {
	Email         string `json:"email"`
	PublicAddress string `json:"publicAddress"`
}

// LoginWithMagicLink starts the provider's magic-link flow and blocks until
// the user completed it out-of-band. The returned credential carries the
// provider ID token as the bearer.
func (c *Client) LoginWithMagicLink(ctx context.Context, email string) (types.Credential, error) {
	return c.login(ctx, "/v1/auth/magic_link", email)
}

// LoginWithEmailOTP starts the provider's one-time-code flow.
func (c *Client) LoginWithEmailOTP(ctx context.Context, email string) (types.Credential, error) {
	return c.login(ctx, "/v1/auth/email_otp", email)
}

func (c *Client) login(ctx context.Context, path, email string) (types.Credential, error) {
	if email == "" {
		return types.Credential{}, apperr.Validation("email is required")
	}

	var resp loginResponse
	if err := c.post(ctx, path, loginRequest{Email: email}, &resp); err != nil {
		return types.Credential{}, err
	}

	cred := types.Credential{AccessToken: resp.IDToken, UserID: resp.UserID}
	if !cred.Valid() {
		return types.Credential{}, apperr.Auth("", "provider returned incomplete credential")
	}
	return cred, nil
}

// OAuthRedirectURL builds the full-page redirect entry point for a provider
// (e.g. "google"). Completion is observed only on the callback route.
func (c *Client) OAuthRedirectURL(provider, redirectURI string) string {
	query := url.Values{}
	query.Set("provider", provider)
	query.Set("redirect_uri", redirectURI)
	query.Set("api_key", c.APIKey)
	return c.BaseURL + "/v1/oauth2/authorize?" + query.Encode()
}

// Metadata fetches the user's provider profile, including the wallet public
// address.
func (c *Client) Metadata(ctx context.Context, accessToken string) (UserMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/user/metadata", nil)
	if err != nil {
		return UserMetadata{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return UserMetadata{}, apperr.Network("wallet provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return UserMetadata{}, apperr.Auth("", "provider session expired")
	}
	if resp.StatusCode != http.StatusOK {
		return UserMetadata{}, apperr.Network("metadata fetch failed", nil)
	}

	var meta UserMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return UserMetadata{}, apperr.Network("malformed metadata response", err)
	}
	return meta, nil
}

// Logout invalidates the provider session.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/user/logout", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Network("wallet provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperr.Network("provider logout failed", nil)
	}
	return nil
}

// TransferIntent describes a transfer for the provider to sign with the
// custodial key. Amounts are in base units (lamports / token units).
type TransferIntent struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Amount    uint64 `json:"amount"`
	TokenMint string `json:"tokenMint,omitempty"`
	Decimals  uint8  `json:"decimals,omitempty"`
}

type signResponse struct {
	SignedTransaction string `json:"signedTransaction"` // base64
	Error             string `json:"error"`
}

// SignTransfer asks the provider to build and sign the transfer, returning
// the base64 transaction ready for submission.
func (c *Client) SignTransfer(ctx context.Context, accessToken string, intent TransferIntent) (string, error) {
	body, err := json.Marshal(intent)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/solana/sign_transfer", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", apperr.Network("wallet provider unreachable", err)
	}
	defer resp.Body.Close()

	var signResp signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signResp); err != nil {
		return "", apperr.Network("malformed signing response", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return "", apperr.Auth("", "provider session expired")
	}
	if resp.StatusCode != http.StatusOK || signResp.SignedTransaction == "" {
		message := signResp.Error
		if message == "" {
			message = "transaction signing failed"
		}
		return "", apperr.Network(message, nil)
	}
	return signResp.SignedTransaction, nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Network("wallet provider unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperr.Auth("", "provider rejected the login")
	}
	if resp.StatusCode != http.StatusOK {
		return apperr.Network("wallet provider request failed", nil)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
