package main

import (
	"fmt"

	"github.com/vdumbrav/matrix-solana-client/db"
)

func ensureHomeserverSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL UNIQUE,
			display_name TEXT,
			password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS login_tokens (
			token TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			used INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			room_id TEXT PRIMARY KEY,
			name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS room_members (
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			PRIMARY KEY (room_id, user_id),
			FOREIGN KEY (room_id) REFERENCES rooms(room_id)
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			room_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			body TEXT NOT NULL,
			origin_server_ts INTEGER NOT NULL,
			txn_key TEXT UNIQUE,
			FOREIGN KEY (room_id) REFERENCES rooms(room_id)
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.HomeserverDB.Exec(stmt); err != nil {
			return fmt.Errorf("schema exec failed: %w", err)
		}
	}
	return nil
}
