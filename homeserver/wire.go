package homeserver

// Client-server API wire formats, limited to the subset this client consumes.

type loginRequest struct {
	Type     string `json:"type"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

type matrixError struct {
	ErrCode string `json:"errcode"`
	Err     string `json:"error"`
}

// proxyLoginResponse is the backend proxy's envelope around the homeserver
// login response: {matrixAccessToken, userId} on 200, {error, details} on 500.
type proxyLoginResponse struct {
	MatrixAccessToken string      `json:"matrixAccessToken"`
	UserID            string      `json:"userId"`
	Error             string      `json:"error"`
	Details           interface{} `json:"details"`
}

type syncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join  map[string]joinedRoom `json:"join"`
		Leave map[string]struct{}   `json:"leave"`
	} `json:"rooms"`
}

type joinedRoom struct {
	State struct {
		Events []stateEvent `json:"events"`
	} `json:"state"`
	Timeline struct {
		Events []timelineEvent `json:"events"`
	} `json:"timeline"`
}

type stateEvent struct {
	Type    string `json:"type"`
	Content struct {
		Name string `json:"name"`
	} `json:"content"`
}

type timelineEvent struct {
	EventID        string `json:"event_id"`
	Type           string `json:"type"`
	Sender         string `json:"sender"`
	OriginServerTS int64  `json:"origin_server_ts"`
	Content        struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	} `json:"content"`
}

type joinedMembersResponse struct {
	Joined map[string]struct {
		DisplayName string `json:"display_name"`
	} `json:"joined"`
}

type messagesResponse struct {
	Chunk []timelineEvent `json:"chunk"`
}

type sendResponse struct {
	EventID string `json:"event_id"`
}

type joinedRoomsResponse struct {
	JoinedRooms []string `json:"joined_rooms"`
}
