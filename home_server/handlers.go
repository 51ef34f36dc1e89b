package main

import (
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/vdumbrav/matrix-solana-client/db"
)

type loginRequest struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

type registerRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type sendRequest struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

type createRoomRequest struct {
	Name string `json:"name"`
}

// fullUserID widens a bare localpart into @localpart:serverName; already
// qualified identifiers pass through unchanged.
func fullUserID(user string) string {
	if strings.HasPrefix(user, "@") {
		return user
	}
	return "@" + user + ":" + serverName
}

func (hs *homeserver) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"errcode": "M_NOT_JSON", "error": "Malformed request body"})
		return
	}

	var userID string
	switch req.Type {
	case "m.login.password":
		userID = hs.loginWithPassword(c, req)
	case "m.login.token":
		userID = hs.loginWithToken(c, req)
	default:
		c.JSON(400, gin.H{"errcode": "M_UNKNOWN", "error": "Unsupported login type"})
		return
	}
	if userID == "" {
		return // handler already wrote the rejection
	}

	accessToken, err := hs.mintAccessToken(userID)
	if err != nil {
		log.Error().Err(err).Msg("error minting access token")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	c.JSON(200, gin.H{"access_token": accessToken, "user_id": userID})
}

func (hs *homeserver) loginWithPassword(c *gin.Context, req loginRequest) string {
	userID := fullUserID(req.User)

	var storedHash string
	err := db.HomeserverDB.QueryRow(
		`SELECT password FROM users WHERE user_id = ?`, userID).Scan(&storedHash)
	if err == sql.ErrNoRows {
		c.JSON(403, gin.H{"errcode": "M_FORBIDDEN", "error": "Invalid username or password"})
		return ""
	}
	if err != nil {
		log.Error().Err(err).Msg("error querying user")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return ""
	}

	if bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password)) != nil {
		c.JSON(403, gin.H{"errcode": "M_FORBIDDEN", "error": "Invalid username or password"})
		return ""
	}
	return userID
}

// loginWithToken consumes a one-time login token, as issued by an SSO flow.
func (hs *homeserver) loginWithToken(c *gin.Context, req loginRequest) string {
	var userID string
	var used int
	err := db.HomeserverDB.QueryRow(
		`SELECT user_id, used FROM login_tokens WHERE token = ?`, req.Token).Scan(&userID, &used)
	if err == sql.ErrNoRows || (err == nil && used != 0) {
		c.JSON(403, gin.H{"errcode": "M_FORBIDDEN", "error": "Invalid or used login token"})
		return ""
	}
	if err != nil {
		log.Error().Err(err).Msg("error querying login token")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return ""
	}

	if _, err := db.HomeserverDB.Exec(
		`UPDATE login_tokens SET used = 1 WHERE token = ?`, req.Token); err != nil {
		log.Error().Err(err).Msg("error consuming login token")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return ""
	}
	return userID
}

func (hs *homeserver) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"errcode": "M_NOT_JSON", "error": "Malformed request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.JSON(400, gin.H{"errcode": "M_INVALID_PARAM", "error": "Username and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("error hashing password")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}

	userID := fullUserID(req.Username)
	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	_, err = db.HomeserverDB.Exec(
		`INSERT INTO users (user_id, display_name, password) VALUES (?, ?, ?)`,
		userID, displayName, string(hash))
	if err != nil {
		c.JSON(400, gin.H{"errcode": "M_USER_IN_USE", "error": "User ID already taken"})
		return
	}

	accessToken, err := hs.mintAccessToken(userID)
	if err != nil {
		log.Error().Err(err).Msg("error minting access token")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	c.JSON(200, gin.H{"access_token": accessToken, "user_id": userID})
}

// handleLogout is a protocol formality here: tokens are stateless JWTs and
// expire on their own, so there is nothing server-side to revoke.
func (hs *homeserver) handleLogout(c *gin.Context) {
	c.JSON(200, gin.H{})
}

func (hs *homeserver) handleJoinedRooms(c *gin.Context) {
	rooms, err := joinedRoomIDs(currentUser(c))
	if err != nil {
		log.Error().Err(err).Msg("error listing joined rooms")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	c.JSON(200, gin.H{"joined_rooms": rooms})
}

func joinedRoomIDs(userID string) ([]string, error) {
	rows, err := db.HomeserverDB.Query(
		`SELECT room_id FROM room_members WHERE user_id = ? ORDER BY room_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rooms := []string{}
	for rows.Next() {
		var roomID string
		if err := rows.Scan(&roomID); err != nil {
			return nil, err
		}
		rooms = append(rooms, roomID)
	}
	return rooms, rows.Err()
}

func (hs *homeserver) handleCreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"errcode": "M_NOT_JSON", "error": "Malformed request body"})
		return
	}

	roomID := "!" + uuid.NewString() + ":" + serverName
	if _, err := db.HomeserverDB.Exec(
		`INSERT INTO rooms (room_id, name) VALUES (?, ?)`, roomID, req.Name); err != nil {
		log.Error().Err(err).Msg("error creating room")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	if _, err := db.HomeserverDB.Exec(
		`INSERT INTO room_members (room_id, user_id) VALUES (?, ?)`,
		roomID, currentUser(c)); err != nil {
		log.Error().Err(err).Msg("error joining created room")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	c.JSON(200, gin.H{"room_id": roomID})
}

func (hs *homeserver) handleJoinRoom(c *gin.Context) {
	roomID := c.Param("roomID")

	var exists int
	err := db.HomeserverDB.QueryRow(
		`SELECT 1 FROM rooms WHERE room_id = ?`, roomID).Scan(&exists)
	if err == sql.ErrNoRows {
		c.JSON(404, gin.H{"errcode": "M_NOT_FOUND", "error": "Room not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("error querying room")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}

	if _, err := db.HomeserverDB.Exec(
		`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
		roomID, currentUser(c)); err != nil {
		log.Error().Err(err).Msg("error joining room")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	c.JSON(200, gin.H{"room_id": roomID})
}

func (hs *homeserver) handleJoinedMembers(c *gin.Context) {
	roomID := c.Param("roomID")
	if !isRoomMember(roomID, currentUser(c)) {
		c.JSON(403, gin.H{"errcode": "M_FORBIDDEN", "error": "You are not a member of this room"})
		return
	}

	rows, err := db.HomeserverDB.Query(
		`SELECT m.user_id, COALESCE(u.display_name, '')
		 FROM room_members m LEFT JOIN users u ON u.user_id = m.user_id
		 WHERE m.room_id = ?`, roomID)
	if err != nil {
		log.Error().Err(err).Msg("error listing members")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	defer rows.Close()

	joined := map[string]gin.H{}
	for rows.Next() {
		var userID, displayName string
		if err := rows.Scan(&userID, &displayName); err != nil {
			log.Error().Err(err).Msg("error scanning member")
			c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
			return
		}
		joined[userID] = gin.H{"display_name": displayName}
	}
	c.JSON(200, gin.H{"joined": joined})
}

func isRoomMember(roomID, userID string) bool {
	var exists int
	err := db.HomeserverDB.QueryRow(
		`SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?`,
		roomID, userID).Scan(&exists)
	return err == nil
}

type eventRow struct {
	rowID          int64
	eventID        string
	roomID         string
	sender         string
	body           string
	originServerTS int64
}

func (e eventRow) wire() gin.H {
	return gin.H{
		"event_id":         e.eventID,
		"type":             "m.room.message",
		"sender":           e.sender,
		"origin_server_ts": e.originServerTS,
		"content":          gin.H{"msgtype": "m.text", "body": e.body},
	}
}

func (hs *homeserver) handleMessages(c *gin.Context) {
	roomID := c.Param("roomID")
	if !isRoomMember(roomID, currentUser(c)) {
		c.JSON(403, gin.H{"errcode": "M_FORBIDDEN", "error": "You are not a member of this room"})
		return
	}
	if c.Query("dir") != "b" {
		c.JSON(400, gin.H{"errcode": "M_INVALID_PARAM", "error": "Only dir=b is supported"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	rows, err := db.HomeserverDB.Query(
		`SELECT id, event_id, room_id, sender, body, origin_server_ts
		 FROM events WHERE room_id = ? ORDER BY id DESC LIMIT ?`, roomID, limit)
	if err != nil {
		log.Error().Err(err).Msg("error listing messages")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	defer rows.Close()

	chunk := []gin.H{}
	for rows.Next() {
		var e eventRow
		if err := rows.Scan(&e.rowID, &e.eventID, &e.roomID, &e.sender, &e.body, &e.originServerTS); err != nil {
			log.Error().Err(err).Msg("error scanning message")
			c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
			return
		}
		chunk = append(chunk, e.wire())
	}
	c.JSON(200, gin.H{"chunk": chunk})
}

func (hs *homeserver) handleSendMessage(c *gin.Context) {
	roomID := c.Param("roomID")
	txnID := c.Param("txnID")
	userID := currentUser(c)

	if !isRoomMember(roomID, userID) {
		c.JSON(403, gin.H{"errcode": "M_FORBIDDEN", "error": "You are not a member of this room"})
		return
	}

	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Body == "" {
		c.JSON(400, gin.H{"errcode": "M_INVALID_PARAM", "error": "Message body is required"})
		return
	}

	// Transaction key dedupes client retries: replaying the same txnID
	// returns the original event instead of storing a second copy.
	txnKey := roomID + "|" + userID + "|" + txnID
	eventID := "$" + uuid.NewString()

	_, err := db.HomeserverDB.Exec(
		`INSERT INTO events (event_id, room_id, sender, body, origin_server_ts, txn_key)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		eventID, roomID, userID, req.Body, time.Now().UnixMilli(), txnKey)
	if err != nil {
		var existing string
		if db.HomeserverDB.QueryRow(
			`SELECT event_id FROM events WHERE txn_key = ?`, txnKey).Scan(&existing) == nil {
			c.JSON(200, gin.H{"event_id": existing})
			return
		}
		log.Error().Err(err).Msg("error storing message")
		c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
		return
	}
	c.JSON(200, gin.H{"event_id": eventID})
}

// handleSync long-polls for new events. The since token is the last event
// rowid the client has seen; an absent token means initial sync, which
// returns full room state and recent timelines immediately.
func (hs *homeserver) handleSync(c *gin.Context) {
	userID := currentUser(c)
	since := c.Query("since")

	timeout := hs.syncTimeout
	if raw := c.Query("timeout"); raw != "" {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}

	if since == "" {
		resp, err := hs.initialSync(userID)
		if err != nil {
			log.Error().Err(err).Msg("error building initial sync")
			c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
			return
		}
		c.JSON(200, resp)
		return
	}

	cursor, err := strconv.ParseInt(since, 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"errcode": "M_INVALID_PARAM", "error": "Malformed since token"})
		return
	}

	deadline := time.Now().Add(timeout)
	for {
		resp, newCursor, err := hs.incrementalSync(userID, cursor)
		if err != nil {
			log.Error().Err(err).Msg("error building incremental sync")
			c.JSON(500, gin.H{"errcode": "M_UNKNOWN", "error": "Internal server error"})
			return
		}
		if newCursor > cursor || time.Now().After(deadline) {
			c.JSON(200, resp)
			return
		}
		select {
		case <-c.Request.Context().Done():
			c.JSON(200, resp)
			return
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func (hs *homeserver) initialSync(userID string) (gin.H, error) {
	roomIDs, err := joinedRoomIDs(userID)
	if err != nil {
		return nil, err
	}

	cursor, err := latestEventRowID()
	if err != nil {
		return nil, err
	}

	join := map[string]gin.H{}
	for _, roomID := range roomIDs {
		name, err := roomName(roomID)
		if err != nil {
			return nil, err
		}
		events, err := roomEvents(roomID, 0, cursor, 20)
		if err != nil {
			return nil, err
		}
		join[roomID] = gin.H{
			"state": gin.H{"events": []gin.H{
				{"type": "m.room.name", "content": gin.H{"name": name}},
			}},
			"timeline": gin.H{"events": events},
		}
	}

	return gin.H{
		"next_batch": strconv.FormatInt(cursor, 10),
		"rooms":      gin.H{"join": join, "leave": gin.H{}},
	}, nil
}

func (hs *homeserver) incrementalSync(userID string, cursor int64) (gin.H, int64, error) {
	roomIDs, err := joinedRoomIDs(userID)
	if err != nil {
		return nil, 0, err
	}

	newCursor := cursor
	join := map[string]gin.H{}
	for _, roomID := range roomIDs {
		events, maxRowID, err := roomEventsSince(roomID, cursor)
		if err != nil {
			return nil, 0, err
		}
		if len(events) == 0 {
			continue
		}
		if maxRowID > newCursor {
			newCursor = maxRowID
		}
		join[roomID] = gin.H{
			"state":    gin.H{"events": []gin.H{}},
			"timeline": gin.H{"events": events},
		}
	}

	resp := gin.H{
		"next_batch": strconv.FormatInt(newCursor, 10),
		"rooms":      gin.H{"join": join, "leave": gin.H{}},
	}
	return resp, newCursor, nil
}

func latestEventRowID() (int64, error) {
	var cursor int64
	err := db.HomeserverDB.QueryRow(`SELECT COALESCE(MAX(id), 0) FROM events`).Scan(&cursor)
	return cursor, err
}

func roomName(roomID string) (string, error) {
	var name string
	err := db.HomeserverDB.QueryRow(
		`SELECT COALESCE(name, '') FROM rooms WHERE room_id = ?`, roomID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return name, err
}

// roomEvents returns up to limit events in (after, upTo], oldest first.
func roomEvents(roomID string, after, upTo int64, limit int) ([]gin.H, error) {
	rows, err := db.HomeserverDB.Query(
		`SELECT id, event_id, room_id, sender, body, origin_server_ts
		 FROM events WHERE room_id = ? AND id > ? AND id <= ?
		 ORDER BY id DESC LIMIT ?`, roomID, after, upTo, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reversed := []eventRow{}
	for rows.Next() {
		var e eventRow
		if err := rows.Scan(&e.rowID, &e.eventID, &e.roomID, &e.sender, &e.body, &e.originServerTS); err != nil {
			return nil, err
		}
		reversed = append(reversed, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	events := []gin.H{}
	for i := len(reversed) - 1; i >= 0; i-- {
		events = append(events, reversed[i].wire())
	}
	return events, nil
}

func roomEventsSince(roomID string, cursor int64) ([]gin.H, int64, error) {
	rows, err := db.HomeserverDB.Query(
		`SELECT id, event_id, room_id, sender, body, origin_server_ts
		 FROM events WHERE room_id = ? AND id > ? ORDER BY id ASC`, roomID, cursor)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	events := []gin.H{}
	var maxRowID int64
	for rows.Next() {
		var e eventRow
		if err := rows.Scan(&e.rowID, &e.eventID, &e.roomID, &e.sender, &e.body, &e.originServerTS); err != nil {
			return nil, 0, err
		}
		if e.rowID > maxRowID {
			maxRowID = e.rowID
		}
		events = append(events, e.wire())
	}
	return events, maxRowID, rows.Err()
}
