package homeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/types"
)

const syncRetryDelay = 2 * time.Second

// Start launches the continuous sync loop: one initial snapshot, then
// incremental long-poll cycles. Calling Start on a running client is a no-op.
func (c *Client) Start() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.started = true
	c.cancel = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	go func() {
		defer close(done)
		c.runSyncLoop(ctx)
	}()
}

// Close stops the sync loop and waits for it to exit. The access token is not
// invalidated; that is Logout's job.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.notifySyncState(types.SyncStopped)
}

func (c *Client) runSyncLoop(ctx context.Context) {
	since := ""
	prepared := false
	inError := false

	for {
		resp, err := c.sync(ctx, since)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// A failed cycle leaves the last-known snapshot visible. Log,
			// flag the state once, and retry after a short delay.
			log.Error().Err(err).Msg("sync cycle failed")
			if !inError {
				inError = true
				c.notifySyncState(types.SyncError)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(syncRetryDelay):
			}
			continue
		}

		if inError {
			inError = false
			c.notifySyncState(types.SyncSyncing)
		}

		c.applySync(resp)
		since = resp.NextBatch

		if !prepared {
			prepared = true
			c.notifySyncState(types.SyncPrepared)
		}
	}
}

func (c *Client) sync(ctx context.Context, since string) (*syncResponse, error) {
	query := url.Values{}
	query.Set("timeout", fmt.Sprintf("%d", c.syncTimeout.Milliseconds()))
	if since != "" {
		query.Set("since", since)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sync?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.Network("sync request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var syncResp syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&syncResp); err != nil {
		return nil, apperr.Network("malformed sync response", err)
	}
	return &syncResp, nil
}

// applySync folds one sync response into the room snapshot and fans out
// timeline events to subscribers.
func (c *Client) applySync(resp *syncResponse) {
	roomsChanged := false

	c.mu.Lock()
	for roomID, joined := range resp.Rooms.Join {
		room, known := c.rooms[roomID]
		if !known {
			room = types.Room{ID: roomID, Membership: "join"}
			roomsChanged = true
		}
		for _, state := range joined.State.Events {
			if state.Type == "m.room.name" && state.Content.Name != room.Name {
				room.Name = state.Content.Name
				roomsChanged = true
			}
		}
		c.rooms[roomID] = room
	}
	for roomID := range resp.Rooms.Leave {
		if _, known := c.rooms[roomID]; known {
			delete(c.rooms, roomID)
			roomsChanged = true
		}
	}
	c.mu.Unlock()

	if roomsChanged {
		c.notifyRoomList()
	}

	for roomID, joined := range resp.Rooms.Join {
		for _, ev := range joined.Timeline.Events {
			if msg, ok := toMessage(ev); ok {
				c.notifyTimeline(roomID, msg)
			}
		}
	}
}
