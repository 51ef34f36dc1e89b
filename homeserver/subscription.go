package homeserver

import "github.com/vdumbrav/matrix-solana-client/types"

// Subscription is the handle returned by every On* call. Each handle has
// exactly one Close; closing twice is harmless. Holding the handle is the
// only way to detach, which keeps teardown explicit rather than relying on
// callers remembering which callback they registered.
type Subscription struct {
	close func()
}

func (s *Subscription) Close() {
	if s == nil || s.close == nil {
		return
	}
	s.close()
	s.close = nil
}

type subscriberKind int

const (
	subSyncState subscriberKind = iota
	subRoomList
	subTimeline
)

type subscriber struct {
	kind      subscriberKind
	roomID    string // timeline subscribers only
	onState   func(types.SyncState)
	onRooms   func()
	onMessage func(types.Message)
}

// OnSyncState fires on connection lifecycle changes (PREPARED, ERROR, ...).
func (c *Client) OnSyncState(fn func(types.SyncState)) *Subscription {
	return c.subscribe(&subscriber{kind: subSyncState, onState: fn})
}

// OnRoomList fires whenever the joined-room set changes.
func (c *Client) OnRoomList(fn func()) *Subscription {
	return c.subscribe(&subscriber{kind: subRoomList, onRooms: fn})
}

// OnTimeline fires for each new message event in the given room.
func (c *Client) OnTimeline(roomID string, fn func(types.Message)) *Subscription {
	return c.subscribe(&subscriber{kind: subTimeline, roomID: roomID, onMessage: fn})
}

func (c *Client) subscribe(sub *subscriber) *Subscription {
	c.mu.Lock()
	c.subSeq++
	id := c.subSeq
	c.subs[id] = sub
	c.mu.Unlock()

	return &Subscription{close: func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}}
}

func (c *Client) notifySyncState(state types.SyncState) {
	for _, sub := range c.snapshotSubs(subSyncState, "") {
		sub.onState(state)
	}
}

func (c *Client) notifyRoomList() {
	for _, sub := range c.snapshotSubs(subRoomList, "") {
		sub.onRooms()
	}
}

func (c *Client) notifyTimeline(roomID string, msg types.Message) {
	for _, sub := range c.snapshotSubs(subTimeline, roomID) {
		sub.onMessage(msg)
	}
}

// snapshotSubs copies matching subscribers so callbacks run outside the lock.
func (c *Client) snapshotSubs(kind subscriberKind, roomID string) []*subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []*subscriber
	for _, sub := range c.subs {
		if sub.kind != kind {
			continue
		}
		if kind == subTimeline && sub.roomID != roomID {
			continue
		}
		matched = append(matched, sub)
	}
	return matched
}
