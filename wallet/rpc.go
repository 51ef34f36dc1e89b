// Package wallet is the Solana-side client: balance, faucet airdrops,
// transaction submission/confirmation, and history. Transaction signing
// stays with the wallet provider; this package only validates, submits,
// and watches.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/vdumbrav/matrix-solana-client/apperr"
)

// LamportsPerSOL converts between display units and base units.
const LamportsPerSOL = 1_000_000_000

type Client struct {
	RPCURL string
	WSURL  string
	HTTP   *http.Client
}

func NewClient(rpcURL, wsURL string) *Client {
	return &Client{RPCURL: rpcURL, WSURL: wsURL, HTTP: &http.Client{}}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Balance returns the account balance in lamports.
func (c *Client) Balance(ctx context.Context, address string) (uint64, error) {
	if err := ValidatePublicKey(address); err != nil {
		return 0, err
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{address}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// RequestAirdrop asks the devnet faucet for lamports and returns the
// airdrop's transaction signature.
func (c *Client) RequestAirdrop(ctx context.Context, address string, lamports uint64) (string, error) {
	if err := ValidatePublicKey(address); err != nil {
		return "", err
	}

	var signature string
	if err := c.call(ctx, "requestAirdrop", []interface{}{address, lamports}, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// SendTransaction submits a base64-encoded signed transaction.
func (c *Client) SendTransaction(ctx context.Context, signedTxBase64 string) (string, error) {
	params := []interface{}{signedTxBase64, map[string]string{"encoding": "base64"}}

	var signature string
	if err := c.call(ctx, "sendTransaction", params, &signature); err != nil {
		return "", err
	}
	return signature, nil
}

// SignatureInfo is one entry of an address's transaction history.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// SignaturesForAddress lists recent transaction signatures, newest first.
func (c *Client) SignaturesForAddress(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	if err := ValidatePublicKey(address); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	var infos []SignatureInfo
	params := []interface{}{address, map[string]int{"limit": limit}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

// TokenDecimals fetches an SPL mint's decimal count via its supply record.
func (c *Client) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	if err := ValidatePublicKey(mint); err != nil {
		return 0, err
	}

	var result struct {
		Value struct {
			Decimals uint8 `json:"decimals"`
		} `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &result); err != nil {
		return 0, err
	}
	return result.Value.Decimals, nil
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RPCURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Network("rpc endpoint unreachable", err)
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return apperr.Network("malformed rpc response", err)
	}
	if rpcResp.Error != nil {
		return apperr.Network(rpcResp.Error.Message, nil)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}
