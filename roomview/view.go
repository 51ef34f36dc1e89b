// Package roomview mirrors backend room/timeline state for display. It owns
// no authoritative data: rooms come from the connection's snapshot, messages
// arrive through timeline subscriptions, and everything local is cleared or
// discarded the moment it stops matching the selected room.
package roomview

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vdumbrav/matrix-solana-client/types"
)

const defaultTimelineLimit = 50

// Subscription is a live event registration with exactly one disposal call.
type Subscription interface {
	Close()
}

// Conn is the backend connection surface the view consumes.
type Conn interface {
	Start()
	Close()
	Rooms() []types.Room
	Members(ctx context.Context, roomID string) ([]types.Member, error)
	Timeline(ctx context.Context, roomID string, limit int) ([]types.Message, error)
	SendText(ctx context.Context, roomID, body string) (string, error)
	OnSyncState(fn func(types.SyncState)) Subscription
	OnRoomList(fn func()) Subscription
	OnTimeline(roomID string, fn func(types.Message)) Subscription
}

// Connector opens a connection for a credential.
type Connector interface {
	Connect(cred types.Credential) (Conn, error)
}

type View struct {
	connector     Connector
	timelineLimit int

	mu       sync.Mutex
	conn     Conn
	cred     types.Credential
	started  bool
	roomID   string
	rooms    []types.Room
	members  []types.Member
	messages []types.Message
	seen     map[string]struct{}
	fetchGen uint64
	connSubs []Subscription
	roomSub  Subscription
}

func New(connector Connector) *View {
	return &View{connector: connector, timelineLimit: defaultTimelineLimit}
}

// Start opens a connection for the credential and begins synchronization.
// Calling Start again with the same credential is a no-op; a different
// credential tears the old connection down first.
func (v *View) Start(cred types.Credential) error {
	v.mu.Lock()
	if v.started && v.cred == cred {
		v.mu.Unlock()
		return nil
	}
	v.mu.Unlock()

	v.Stop()

	conn, err := v.connector.Connect(cred)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.conn = conn
	v.cred = cred
	v.started = true
	stateSub := conn.OnSyncState(func(state types.SyncState) {
		if state == types.SyncPrepared {
			v.refreshRooms()
		}
	})
	roomsSub := conn.OnRoomList(v.refreshRooms)
	v.connSubs = []Subscription{stateSub, roomsSub}
	v.mu.Unlock()

	conn.Start()
	return nil
}

// Stop closes every subscription and the connection. Required before Start
// with a new credential and on teardown; otherwise handlers leak and stack
// up across start/stop cycles.
func (v *View) Stop() {
	v.mu.Lock()
	if !v.started {
		v.mu.Unlock()
		return
	}
	conn := v.conn
	connSubs := v.connSubs
	roomSub := v.roomSub

	v.started = false
	v.conn = nil
	v.cred = types.Credential{}
	v.connSubs = nil
	v.roomSub = nil
	v.roomID = ""
	v.rooms = nil
	v.members = nil
	v.messages = nil
	v.seen = nil
	v.fetchGen++ // in-flight fetches for the old connection get discarded
	v.mu.Unlock()

	for _, sub := range connSubs {
		sub.Close()
	}
	if roomSub != nil {
		roomSub.Close()
	}
	conn.Close()
}

// SelectRoom switches the active room. The message list clears immediately;
// member and timeline reloads run in the background and are discarded if the
// selection changed again before they resolved. An empty roomID deselects
// and disables the input.
func (v *View) SelectRoom(roomID string) {
	v.mu.Lock()
	if !v.started {
		v.mu.Unlock()
		return
	}
	v.fetchGen++
	gen := v.fetchGen

	if v.roomSub != nil {
		v.roomSub.Close()
		v.roomSub = nil
	}

	v.roomID = roomID
	v.messages = nil
	v.members = nil
	v.seen = make(map[string]struct{})
	conn := v.conn

	if roomID == "" {
		v.mu.Unlock()
		return
	}

	v.roomSub = conn.OnTimeline(roomID, func(msg types.Message) {
		v.appendLive(gen, msg)
	})
	v.mu.Unlock()

	go v.loadRoom(conn, gen, roomID)
}

// loadRoom fetches members and recent history for a freshly selected room.
// Results landing after another SelectRoom are dropped; a failed fetch
// leaves the corresponding list empty, retried only by reselecting.
func (v *View) loadRoom(conn Conn, gen uint64, roomID string) {
	ctx := context.Background()
	members, membersErr := conn.Members(ctx, roomID)
	timeline, timelineErr := conn.Timeline(ctx, roomID, v.timelineLimit)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.fetchGen {
		return // stale: the user already moved on
	}

	if membersErr != nil {
		log.Error().Err(membersErr).Str("room", roomID).Msg("member fetch failed")
	} else {
		v.members = members
	}

	if timelineErr != nil {
		log.Error().Err(timelineErr).Str("room", roomID).Msg("timeline fetch failed")
		return
	}
	for _, msg := range timeline {
		v.appendLocked(msg)
	}
}

func (v *View) appendLive(gen uint64, msg types.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.fetchGen {
		return
	}
	v.appendLocked(msg)
}

// appendLocked is the single append path; duplicates are dropped by event ID
// so a re-delivered event never shows twice.
func (v *View) appendLocked(msg types.Message) {
	if msg.EventID == "" {
		return
	}
	if _, dup := v.seen[msg.EventID]; dup {
		return
	}
	v.seen[msg.EventID] = struct{}{}
	v.messages = append(v.messages, msg)
}

// SendMessage submits text to the active room. Blank text or no selection is
// a no-op with no backend call. There is no optimistic echo: the message
// shows up when its timeline event arrives back through the subscription.
// On failure the caller keeps the input as-is; nothing retries.
func (v *View) SendMessage(ctx context.Context, text string) error {
	v.mu.Lock()
	conn := v.conn
	roomID := v.roomID
	started := v.started
	v.mu.Unlock()

	if strings.TrimSpace(text) == "" || roomID == "" || !started {
		return nil
	}

	if _, err := conn.SendText(ctx, roomID, text); err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("message send failed")
		return err
	}
	return nil
}

func (v *View) refreshRooms() {
	v.mu.Lock()
	conn := v.conn
	v.mu.Unlock()
	if conn == nil {
		return
	}

	rooms := conn.Rooms()
	v.mu.Lock()
	if v.conn == conn {
		v.rooms = rooms
	}
	v.mu.Unlock()
}

func (v *View) Rooms() []types.Room {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.Room(nil), v.rooms...)
}

func (v *View) Members() []types.Member {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.Member(nil), v.members...)
}

func (v *View) Messages() []types.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.Message(nil), v.messages...)
}

func (v *View) ActiveRoom() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roomID
}

// InputEnabled reports whether the message input is active: only with a
// running connection and a selected room.
func (v *View) InputEnabled() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started && v.roomID != ""
}
