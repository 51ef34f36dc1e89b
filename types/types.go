package types

// Credential is the authenticated identity produced by any login strategy.
// Both fields are required; a credential missing either one is treated as
// logged out everywhere in the client.
type Credential struct {
	AccessToken string `json:"accessToken"`
	UserID      string `json:"userId"`
}

func (c Credential) Valid() bool {
	return c.AccessToken != "" && c.UserID != ""
}

// Room is a read-only snapshot of a joined room. The backend connection owns
// the authoritative state; the view only caches these.
type Room struct {
	ID         string `json:"roomId"`
	Name       string `json:"name,omitempty"`
	Membership string `json:"membership,omitempty"`
}

func (r Room) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

type Member struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// Message is one timeline event. Append-only once received; never mutated.
type Message struct {
	EventID   string `json:"eventId"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"timestamp"` // epoch millis, origin server
}

// SyncState mirrors the backend connection's synchronization lifecycle.
type SyncState string

const (
	SyncPrepared SyncState = "PREPARED"
	SyncSyncing  SyncState = "SYNCING"
	SyncError    SyncState = "ERROR"
	SyncStopped  SyncState = "STOPPED"
)
