package roomview

import (
	"github.com/vdumbrav/matrix-solana-client/homeserver"
	"github.com/vdumbrav/matrix-solana-client/types"
)

// NewHomeserverConnector adapts the homeserver SDK to the view's Connector
// surface.
func NewHomeserverConnector(connector *homeserver.Connector) Connector {
	return hsConnector{connector: connector}
}

type hsConnector struct {
	connector *homeserver.Connector
}

func (h hsConnector) Connect(cred types.Credential) (Conn, error) {
	return hsConn{Client: h.connector.Connect(cred)}, nil
}

// hsConn only re-wraps the subscription methods; their concrete return type
// otherwise pins the interface to one implementation.
type hsConn struct {
	*homeserver.Client
}

func (h hsConn) OnSyncState(fn func(types.SyncState)) Subscription {
	return h.Client.OnSyncState(fn)
}

func (h hsConn) OnRoomList(fn func()) Subscription {
	return h.Client.OnRoomList(fn)
}

func (h hsConn) OnTimeline(roomID string, fn func(types.Message)) Subscription {
	return h.Client.OnTimeline(roomID, fn)
}
