package config

import (
	"os"
	"strconv"
)

type Config struct {
	Env string

	// Client-side endpoints.
	HomeserverURL string
	ProxyURL      string
	SolanaRPCURL  string
	SolanaWSURL   string
	WalletAuthURL string
	WalletAuthKey string

	// proxy_server
	ProxyPort string

	// home_server
	HomeserverPort string
	DBFile         string
	JWTSecret      string
	SyncTimeoutMS  int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func Load() Config {
	return Config{
		Env:            getenv("APP_ENV", "dev"),
		HomeserverURL:  getenv("HOMESERVER_URL", "https://matrix-client.matrix.org"),
		ProxyURL:       getenv("PROXY_URL", "http://localhost:3000"),
		SolanaRPCURL:   getenv("SOLANA_RPC_URL", "https://api.devnet.solana.com"),
		SolanaWSURL:    getenv("SOLANA_WS_URL", "wss://api.devnet.solana.com"),
		WalletAuthURL:  getenv("WALLET_AUTH_URL", "https://auth.magic.link"),
		WalletAuthKey:  getenv("WALLET_AUTH_KEY", ""),
		ProxyPort:      getenv("PROXY_PORT", "3000"),
		HomeserverPort: getenv("HOMESERVER_PORT", "8008"),
		DBFile:         getenv("HOMESERVER_DB_FILE", "homeserver.sqlite"),
		JWTSecret:      getenv("JWT_SECRET", "dev-secret-change-me"),
		SyncTimeoutMS:  getenvInt("SYNC_TIMEOUT_MS", 30000),
	}
}
