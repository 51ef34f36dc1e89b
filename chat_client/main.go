// Terminal chat client with an embedded Solana wallet: log in with a
// password, SSO token, or the wallet provider's email flows, sync rooms,
// chat, and move SOL/SPL tokens without leaving the conversation.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/vdumbrav/matrix-solana-client/config"
	"github.com/vdumbrav/matrix-solana-client/homeserver"
	"github.com/vdumbrav/matrix-solana-client/logging"
	"github.com/vdumbrav/matrix-solana-client/roomview"
	"github.com/vdumbrav/matrix-solana-client/session"
	"github.com/vdumbrav/matrix-solana-client/storage"
	"github.com/vdumbrav/matrix-solana-client/types"
	"github.com/vdumbrav/matrix-solana-client/wallet"
	"github.com/vdumbrav/matrix-solana-client/walletauth"
)

// remoteLogout invalidates a chat credential server-side on logout.
type remoteLogout struct {
	connector *homeserver.Connector
}

func (r remoteLogout) Logout(ctx context.Context, cred types.Credential) error {
	return r.connector.Connect(cred).Logout(ctx)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment")
	}

	cfg := config.Load()
	logging.Init(cfg.Env)

	credStore, err := storage.NewCredentialStore()
	if err != nil {
		log.Fatal().Err(err).Msg("error opening credential store")
	}

	connector := homeserver.NewConnector(cfg.HomeserverURL, cfg.ProxyURL)
	provider := walletauth.NewClient(cfg.WalletAuthURL, cfg.WalletAuthKey)
	sess := session.NewStore(connector, provider, credStore, remoteLogout{connector: connector})
	view := roomview.New(roomview.NewHomeserverConnector(connector))
	walletSvc := &wallet.Service{
		RPC:    wallet.NewClient(cfg.SolanaRPCURL, cfg.SolanaWSURL),
		Signer: provider,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	app := &app{
		session:  sess,
		view:     view,
		wallet:   walletSvc,
		provider: provider,
	}

	fmt.Println("========================================")
	fmt.Println("Matrix Solana Chat Client")
	fmt.Println("========================================")

	if sess.RestoreSession() {
		cred, _ := sess.Credential()
		fmt.Printf("Restored session for %s\n", cred.UserID)
		if err := view.Start(cred); err != nil {
			log.Error().Err(err).Msg("error starting sync after restore")
		}
	} else {
		fmt.Println("Not logged in. Type 'help' for login commands.")
	}
	fmt.Println()

	app.run(ctx)
	view.Stop()
}
