package wallet

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vdumbrav/matrix-solana-client/apperr"
)

const confirmReadTimeout = 90 * time.Second

type wsNotification struct {
	Method string `json:"method"`
	Params struct {
		Result struct {
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params"`
}

// ConfirmSignature subscribes to the signature over the websocket RPC and
// blocks until the cluster finalizes it. A transaction that finalized with
// an error is reported as a network-class failure.
func (c *Client) ConfirmSignature(ctx context.Context, signature string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.WSURL, nil)
	if err != nil {
		return apperr.Network("websocket rpc unreachable", err)
	}
	defer conn.Close()

	subscribe := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params:  []interface{}{signature, map[string]string{"commitment": "finalized"}},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		return apperr.Network("signature subscribe failed", err)
	}

	deadline := time.Now().Add(confirmReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	_ = conn.SetReadDeadline(deadline)

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			return apperr.Network("confirmation stream closed", err)
		}

		var note wsNotification
		if err := json.Unmarshal(msgBytes, &note); err != nil {
			continue
		}
		if note.Method != "signatureNotification" {
			continue // subscription ack or unrelated frame
		}
		if errPayload := note.Params.Result.Value.Err; len(errPayload) > 0 && string(errPayload) != "null" {
			return apperr.Network("transaction failed on-chain: "+string(errPayload), nil)
		}
		return nil
	}
}
