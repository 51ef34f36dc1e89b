// Development homeserver: the client-server API subset the chat client
// consumes (login, sync, rooms, members, send, logout), backed by sqlite.
// Good enough to develop and integration-test against without the public
// federation; not a federating server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vdumbrav/matrix-solana-client/config"
	"github.com/vdumbrav/matrix-solana-client/db"
	"github.com/vdumbrav/matrix-solana-client/logging"
)

// serverName is the domain suffix of user and room identifiers.
const serverName = "localhost"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using environment")
	}

	cfg := config.Load()
	logging.Init(cfg.Env)

	var err error
	db.HomeserverDB, err = db.InitDB(cfg.DBFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error opening database")
	}
	defer db.CloseDB(db.HomeserverDB)

	if err := ensureHomeserverSchema(); err != nil {
		log.Fatal().Err(err).Msg("error ensuring schema")
	}

	hs := &homeserver{
		jwtSecret:   cfg.JWTSecret,
		syncTimeout: time.Duration(cfg.SyncTimeoutMS) * time.Millisecond,
	}

	r := gin.Default()
	registerRoutes(r, hs)

	server := &http.Server{
		Addr:    ":" + cfg.HomeserverPort,
		Handler: r,
	}

	go func() {
		log.Info().Str("port", cfg.HomeserverPort).Msg("starting dev homeserver")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ListenAndServe error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down dev homeserver")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("dev homeserver exited cleanly")
}

func registerRoutes(r *gin.Engine, hs *homeserver) {
	v3 := r.Group("/_matrix/client/v3")

	v3.POST("/login", hs.handleLogin)
	v3.POST("/register", hs.handleRegister)

	authed := v3.Group("", hs.authMiddleware())
	authed.POST("/logout", hs.handleLogout)
	authed.GET("/sync", hs.handleSync)
	authed.GET("/joined_rooms", hs.handleJoinedRooms)
	authed.POST("/createRoom", hs.handleCreateRoom)
	authed.POST("/rooms/:roomID/join", hs.handleJoinRoom)
	authed.GET("/rooms/:roomID/joined_members", hs.handleJoinedMembers)
	authed.GET("/rooms/:roomID/messages", hs.handleMessages)
	authed.PUT("/rooms/:roomID/send/m.room.message/:txnID", hs.handleSendMessage)
}
