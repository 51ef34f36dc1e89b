package homeserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/types"
)

// Client is an authenticated homeserver connection. Room snapshots are kept
// current by the sync loop; everything else is a direct call.
type Client struct {
	baseURL     string
	http        *http.Client
	cred        types.Credential
	syncTimeout time.Duration

	mu      sync.Mutex
	rooms   map[string]types.Room
	subs    map[uint64]*subscriber
	subSeq  uint64
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func (c *Client) Credential() types.Credential {
	return c.cred
}

// Rooms returns the cached joined-room snapshot, sorted for stable display.
func (c *Client) Rooms() []types.Room {
	c.mu.Lock()
	defer c.mu.Unlock()

	rooms := make([]types.Room, 0, len(c.rooms))
	for _, room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}

// Members fetches the joined members of a room.
func (c *Client) Members(ctx context.Context, roomID string) ([]types.Member, error) {
	var resp joinedMembersResponse
	if err := c.get(ctx, "/rooms/"+url.PathEscape(roomID)+"/joined_members", &resp); err != nil {
		return nil, err
	}

	members := make([]types.Member, 0, len(resp.Joined))
	for userID, m := range resp.Joined {
		members = append(members, types.Member{UserID: userID, DisplayName: m.DisplayName})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members, nil
}

// Timeline fetches the most recent messages of a room, oldest first.
func (c *Client) Timeline(ctx context.Context, roomID string, limit int) ([]types.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	path := fmt.Sprintf("/rooms/%s/messages?dir=b&limit=%d", url.PathEscape(roomID), limit)

	var resp messagesResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	// dir=b returns newest first.
	var messages []types.Message
	for i := len(resp.Chunk) - 1; i >= 0; i-- {
		if msg, ok := toMessage(resp.Chunk[i]); ok {
			messages = append(messages, msg)
		}
	}
	return messages, nil
}

// SendText posts a text message to a room. The transaction ID makes a resend
// of the same request idempotent on the server side.
func (c *Client) SendText(ctx context.Context, roomID, body string) (string, error) {
	path := fmt.Sprintf("/rooms/%s/send/m.room.message/%s", url.PathEscape(roomID), uuid.NewString())
	payload := map[string]string{"msgtype": "m.text", "body": body}

	var resp sendResponse
	if err := c.do(ctx, http.MethodPut, path, payload, &resp); err != nil {
		return "", err
	}
	return resp.EventID, nil
}

// Logout invalidates the access token on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/logout", struct{}{}, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var reqBody *bytes.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Network("homeserver unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Network("malformed homeserver response", err)
	}
	return nil
}

func toMessage(ev timelineEvent) (types.Message, bool) {
	if ev.Type != "m.room.message" {
		return types.Message{}, false
	}
	return types.Message{
		EventID:   ev.EventID,
		Sender:    ev.Sender,
		Body:      ev.Content.Body,
		Timestamp: ev.OriginServerTS,
	}, true
}
