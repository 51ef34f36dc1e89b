// Package homeserver is the chat-protocol client: login, continuous /sync,
// room and member snapshots, and message sending. It owns no UI state; the
// room view consumes it through subscription handles.
package homeserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/types"
)

const clientAPIPrefix = "/_matrix/client/v3"

// Connector performs credential-less calls (the login grants) and opens
// authenticated connections. The SSO token grant goes through the backend
// proxy because browsers cannot call the public homeserver directly.
type Connector struct {
	HomeserverURL string
	ProxyURL      string
	HTTP          *http.Client
	SyncTimeout   time.Duration
}

func NewConnector(homeserverURL, proxyURL string) *Connector {
	return &Connector{
		HomeserverURL: homeserverURL,
		ProxyURL:      proxyURL,
		HTTP:          &http.Client{},
		SyncTimeout:   30 * time.Second,
	}
}

// LoginPassword exchanges a username/password pair for a credential.
// A rejected pair surfaces as an auth error carrying the protocol errcode.
func (c *Connector) LoginPassword(ctx context.Context, username, password string) (types.Credential, error) {
	return c.login(ctx, loginRequest{Type: "m.login.password", User: username, Password: password})
}

// LoginToken exchanges a one-time SSO login token via the backend proxy.
func (c *Connector) LoginToken(ctx context.Context, ssoToken string) (types.Credential, error) {
	body, err := json.Marshal(loginRequest{Type: "m.login.token", Token: ssoToken})
	if err != nil {
		return types.Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ProxyURL+"/api/matrix-login", bytes.NewReader(body))
	if err != nil {
		return types.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return types.Credential{}, apperr.Network("login proxy unreachable", err)
	}
	defer resp.Body.Close()

	var proxyResp proxyLoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&proxyResp); err != nil {
		return types.Credential{}, apperr.Network("malformed login proxy response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Credential{}, apperr.Auth("", proxyResp.Error)
	}

	cred := types.Credential{AccessToken: proxyResp.MatrixAccessToken, UserID: proxyResp.UserID}
	if !cred.Valid() {
		return types.Credential{}, apperr.Auth("", "login proxy returned incomplete credential")
	}
	return cred, nil
}

func (c *Connector) login(ctx context.Context, reqBody loginRequest) (types.Credential, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return types.Credential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.HomeserverURL+clientAPIPrefix+"/login", bytes.NewReader(body))
	if err != nil {
		return types.Credential{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return types.Credential{}, apperr.Network("homeserver unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.Credential{}, decodeError(resp)
	}

	var loginResp loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return types.Credential{}, apperr.Network("malformed login response", err)
	}

	cred := types.Credential{AccessToken: loginResp.AccessToken, UserID: loginResp.UserID}
	if !cred.Valid() {
		return types.Credential{}, apperr.Auth("", "homeserver returned incomplete credential")
	}
	return cred, nil
}

// Connect binds a credential to a new client. The client does nothing until
// Start is called.
func (c *Connector) Connect(cred types.Credential) *Client {
	timeout := c.SyncTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:     c.HomeserverURL + clientAPIPrefix,
		http:        c.HTTP,
		cred:        cred,
		syncTimeout: timeout,
		rooms:       make(map[string]types.Room),
		subs:        make(map[uint64]*subscriber),
	}
}

// decodeError maps a non-200 homeserver response to the error taxonomy.
// Credential problems (401/403) become auth errors so callers can force a
// logout; everything else is a network-class failure.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var matrixErr matrixError
	_ = json.Unmarshal(raw, &matrixErr)

	message := matrixErr.Err
	if message == "" {
		message = fmt.Sprintf("homeserver returned status %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperr.Auth(matrixErr.ErrCode, message)
	}
	return apperr.Network(message, nil)
}
