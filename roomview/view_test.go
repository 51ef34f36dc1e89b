package roomview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vdumbrav/matrix-solana-client/types"
)

type fakeSub struct {
	closed int
	mu     sync.Mutex
}

func (f *fakeSub) Close() {
	f.mu.Lock()
	f.closed++
	f.mu.Unlock()
}

func (f *fakeSub) closedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeConn struct {
	mu        sync.Mutex
	rooms     []types.Room
	members   map[string][]types.Member
	timeline  map[string][]types.Message
	sendCalls []string
	sendErr   error
	closed    bool

	// memberGate, when set for a room, blocks that room's member fetch
	// until released, to stage in-flight-fetch races.
	memberGate map[string]chan struct{}

	timelineSubs map[string]func(types.Message)
	subs         []*fakeSub
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		members:      make(map[string][]types.Member),
		timeline:     make(map[string][]types.Message),
		memberGate:   make(map[string]chan struct{}),
		timelineSubs: make(map[string]func(types.Message)),
	}
}

func (f *fakeConn) Start() {}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) Rooms() []types.Room {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Room(nil), f.rooms...)
}

func (f *fakeConn) Members(_ context.Context, roomID string) ([]types.Member, error) {
	f.mu.Lock()
	gate := f.memberGate[roomID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.members[roomID]
	if !ok {
		return nil, errors.New("no such room")
	}
	return members, nil
}

func (f *fakeConn) Timeline(_ context.Context, roomID string, _ int) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Message(nil), f.timeline[roomID]...), nil
}

func (f *fakeConn) SendText(_ context.Context, roomID, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sendCalls = append(f.sendCalls, roomID+"|"+body)
	return "$sent", nil
}

func (f *fakeConn) OnSyncState(func(types.SyncState)) Subscription {
	return f.newSub()
}

func (f *fakeConn) OnRoomList(func()) Subscription {
	return f.newSub()
}

func (f *fakeConn) OnTimeline(roomID string, fn func(types.Message)) Subscription {
	f.mu.Lock()
	f.timelineSubs[roomID] = fn
	f.mu.Unlock()
	return f.newSub()
}

func (f *fakeConn) newSub() *fakeSub {
	sub := &fakeSub{}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

func (f *fakeConn) pushTimeline(roomID string, msg types.Message) {
	f.mu.Lock()
	fn := f.timelineSubs[roomID]
	f.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (f *fakeConn) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

type fakeConnector struct {
	mu    sync.Mutex
	conns []*fakeConn
	next  func() *fakeConn
}

func newFakeConnector(prepare func(*fakeConn)) *fakeConnector {
	fc := &fakeConnector{}
	fc.next = func() *fakeConn {
		conn := newFakeConn()
		if prepare != nil {
			prepare(conn)
		}
		return conn
	}
	return fc
}

func (fc *fakeConnector) Connect(types.Credential) (Conn, error) {
	conn := fc.next()
	fc.mu.Lock()
	fc.conns = append(fc.conns, conn)
	fc.mu.Unlock()
	return conn, nil
}

func (fc *fakeConnector) lastConn() *fakeConn {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.conns[len(fc.conns)-1]
}

var cred = types.Credential{AccessToken: "tok1", UserID: "@alice:example.org"}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startedView(t *testing.T, prepare func(*fakeConn)) (*View, *fakeConnector) {
	t.Helper()
	connector := newFakeConnector(prepare)
	view := New(connector)
	if err := view.Start(cred); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(view.Stop)
	return view, connector
}

func TestStartIdempotentSameCredential(t *testing.T) {
	view, connector := startedView(t, nil)

	if err := view.Start(cred); err != nil {
		t.Fatalf("restart: %v", err)
	}
	connector.mu.Lock()
	total := len(connector.conns)
	connector.mu.Unlock()
	if total != 1 {
		t.Fatalf("expected same-credential Start to be a no-op, got %d connections", total)
	}

	_ = view
}

func TestStartNewCredentialTearsDownOldConnection(t *testing.T) {
	view, connector := startedView(t, nil)
	first := connector.lastConn()

	other := types.Credential{AccessToken: "tok2", UserID: "@bob:example.org"}
	if err := view.Start(other); err != nil {
		t.Fatalf("start with new credential: %v", err)
	}

	first.mu.Lock()
	closed := first.closed
	first.mu.Unlock()
	if !closed {
		t.Fatalf("expected old connection to be closed")
	}
	for _, sub := range first.subs {
		if sub.closedCount() == 0 {
			t.Fatalf("expected old subscriptions to be closed")
		}
	}
}

func TestSendMessageNoopCases(t *testing.T) {
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!abc:example.org"] = nil
	})
	conn := connector.lastConn()

	// No room selected.
	if err := view.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("send without room should be a silent no-op, got %v", err)
	}

	view.SelectRoom("!abc:example.org")

	// Blank and whitespace-only text.
	if err := view.SendMessage(context.Background(), ""); err != nil {
		t.Fatalf("blank send: %v", err)
	}
	if err := view.SendMessage(context.Background(), "   \t\n"); err != nil {
		t.Fatalf("whitespace send: %v", err)
	}

	if got := conn.sendCount(); got != 0 {
		t.Fatalf("expected no backend calls, got %d", got)
	}

	if err := view.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got := conn.sendCount(); got != 1 {
		t.Fatalf("expected one backend call, got %d", got)
	}
}

func TestSendMessageFailureSurfaces(t *testing.T) {
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!abc:example.org"] = nil
		conn.sendErr = errors.New("gateway timeout")
	})
	view.SelectRoom("!abc:example.org")

	if err := view.SendMessage(context.Background(), "hello"); err == nil {
		t.Fatalf("expected send failure to surface")
	}
	_ = connector
}

func TestSelectRoomNilClearsAndDisablesInput(t *testing.T) {
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!abc:example.org"] = []types.Member{{UserID: "@bob:example.org"}}
	})
	conn := connector.lastConn()

	view.SelectRoom("!abc:example.org")
	conn.pushTimeline("!abc:example.org", types.Message{EventID: "$1", Sender: "@bob:example.org", Body: "hi", Timestamp: 1000})
	waitFor(t, "message append", func() bool { return len(view.Messages()) == 1 })

	if !view.InputEnabled() {
		t.Fatalf("expected input enabled with a selected room")
	}

	view.SelectRoom("")

	if got := view.Messages(); len(got) != 0 {
		t.Fatalf("expected cleared messages, got %+v", got)
	}
	if view.InputEnabled() {
		t.Fatalf("expected input disabled with no room selected")
	}
	if view.ActiveRoom() != "" {
		t.Fatalf("expected no active room")
	}
}

func TestTimelineAppendIsIdempotentByEventID(t *testing.T) {
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!abc:example.org"] = nil
	})
	conn := connector.lastConn()
	view.SelectRoom("!abc:example.org")

	msg := types.Message{EventID: "$1", Sender: "@bob:example.org", Body: "hi", Timestamp: 1000}
	conn.pushTimeline("!abc:example.org", msg)
	conn.pushTimeline("!abc:example.org", msg) // identical re-delivery

	waitFor(t, "message append", func() bool { return len(view.Messages()) >= 1 })
	if got := view.Messages(); len(got) != 1 || got[0].EventID != "$1" {
		t.Fatalf("expected exactly one message, got %+v", got)
	}
}

func TestStaleMemberFetchDiscardedAfterRoomSwitch(t *testing.T) {
	gate := make(chan struct{})
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!xyz:example.org"] = []types.Member{{UserID: "@stale:example.org"}}
		conn.members["!abc:example.org"] = []types.Member{{UserID: "@fresh:example.org"}}
		conn.memberGate["!xyz:example.org"] = gate
	})
	conn := connector.lastConn()

	view.SelectRoom("!xyz:example.org") // member fetch parks on the gate
	view.SelectRoom("!abc:example.org")

	waitFor(t, "fresh members", func() bool {
		members := view.Members()
		return len(members) == 1 && members[0].UserID == "@fresh:example.org"
	})

	close(gate) // stale fetch for !xyz resolves now

	// Give the stale goroutine a moment to (wrongly) apply itself.
	time.Sleep(50 * time.Millisecond)
	members := view.Members()
	if len(members) != 1 || members[0].UserID != "@fresh:example.org" {
		t.Fatalf("stale fetch overwrote fresh members: %+v", members)
	}
	_ = conn
}

func TestEventForPreviousRoomNotAppendedAfterSwitch(t *testing.T) {
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!xyz:example.org"] = nil
		conn.members["!abc:example.org"] = nil
	})
	conn := connector.lastConn()

	view.SelectRoom("!xyz:example.org")
	conn.mu.Lock()
	oldFn := conn.timelineSubs["!xyz:example.org"]
	conn.mu.Unlock()

	view.SelectRoom("!abc:example.org")

	// A late delivery through the already-replaced handler must be dropped.
	oldFn(types.Message{EventID: "$stale", Sender: "@x:example.org", Body: "old", Timestamp: 1})

	time.Sleep(50 * time.Millisecond)
	if got := view.Messages(); len(got) != 0 {
		t.Fatalf("expected stale room event to be discarded, got %+v", got)
	}
}

func TestStopClosesEverySubscription(t *testing.T) {
	view, connector := startedView(t, func(conn *fakeConn) {
		conn.members["!abc:example.org"] = nil
	})
	conn := connector.lastConn()
	view.SelectRoom("!abc:example.org")

	view.Stop()

	conn.mu.Lock()
	subs := append([]*fakeSub(nil), conn.subs...)
	closed := conn.closed
	conn.mu.Unlock()

	if !closed {
		t.Fatalf("expected connection closed")
	}
	for i, sub := range subs {
		if sub.closedCount() == 0 {
			t.Fatalf("expected subscription %d closed", i)
		}
	}
	if view.InputEnabled() {
		t.Fatalf("expected input disabled after stop")
	}
}

func TestMemberFetchFailureLeavesListEmpty(t *testing.T) {
	view, _ := startedView(t, nil) // no rooms configured: member fetch errors

	view.SelectRoom("!missing:example.org")

	time.Sleep(50 * time.Millisecond)
	if got := view.Members(); len(got) != 0 {
		t.Fatalf("expected empty members after failed fetch, got %+v", got)
	}
}
