package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vdumbrav/matrix-solana-client/roomview"
	"github.com/vdumbrav/matrix-solana-client/session"
	"github.com/vdumbrav/matrix-solana-client/wallet"
	"github.com/vdumbrav/matrix-solana-client/walletauth"
)

type app struct {
	session  *session.Store
	view     *roomview.View
	wallet   *wallet.Service
	provider *walletauth.Client
}

func (a *app) run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		lineCh := make(chan string, 1)
		go func() {
			if scanner.Scan() {
				lineCh <- scanner.Text()
				return
			}
			close(lineCh)
		}()

		select {
		case <-ctx.Done():
			return
		case line, ok := <-lineCh:
			if !ok {
				return
			}
			if a.dispatch(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// dispatch runs one command line; returns true to quit.
func (a *app) dispatch(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printHelp()
	case "login":
		a.cmdLogin(ctx, args)
	case "sso":
		a.cmdSSO(ctx, args)
	case "magiclink":
		a.cmdMagicLink(ctx, args)
	case "otp":
		a.cmdOTP(ctx, args)
	case "google":
		a.cmdGoogle(args)
	case "rooms":
		a.cmdRooms()
	case "select":
		a.cmdSelect(args)
	case "members":
		a.cmdMembers()
	case "messages":
		a.cmdMessages()
	case "send":
		a.cmdSend(ctx, strings.TrimSpace(strings.TrimPrefix(line, "send")))
	case "address":
		a.cmdAddress(ctx)
	case "balance":
		a.cmdBalance(ctx)
	case "airdrop":
		a.cmdAirdrop(ctx)
	case "sendsol":
		a.cmdSendSOL(ctx, args)
	case "sendtoken":
		a.cmdSendToken(ctx, args)
	case "history":
		a.cmdHistory(ctx)
	case "logout":
		a.cmdLogout(ctx)
	case "quit", "exit":
		return true
	default:
		fmt.Printf("Unknown command %q. Type 'help' for commands.\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println(`Login:
  login <username>            password login (prompts for password)
  sso <token>                 SSO login-token exchange via the backend proxy
  magiclink <email>           wallet provider magic-link login
  otp <email>                 wallet provider email-OTP login
  google [redirect-uri]       print the Google OAuth redirect URL
  logout                      log out and clear the stored credential
Chat:
  rooms                       list joined rooms
  select <number|room-id>     switch the active room ('select' alone deselects)
  members                     list members of the active room
  messages                    show the active room's timeline
  send <text>                 send a message to the active room
Wallet:
  address                     show the wallet public address
  balance                     show the SOL balance
  airdrop                     request 2 devnet SOL
  sendsol <to> <amount>       send SOL
  sendtoken <to> <amount> <mint>  send an SPL token
  history                     recent transaction signatures
Other:
  quit                        exit`)
}

func (a *app) afterLogin(err error) {
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return
	}
	cred, _ := a.session.Credential()
	fmt.Printf("Logged in as %s\n", cred.UserID)
	if startErr := a.view.Start(cred); startErr != nil {
		fmt.Printf("Failed to start sync: %v\n", startErr)
	}
}

func (a *app) cmdLogin(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: login <username>")
		return
	}
	password := promptInput("Password: ")
	a.afterLogin(a.session.LoginWithPassword(ctx, args[0], password))
}

func (a *app) cmdSSO(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: sso <token>")
		return
	}
	a.afterLogin(a.session.LoginWithToken(ctx, args[0]))
}

func (a *app) cmdMagicLink(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: magiclink <email>")
		return
	}
	fmt.Println("Check your email and click the magic link...")
	a.afterLogin(a.session.LoginWithMagicLink(ctx, args[0]))
}

func (a *app) cmdOTP(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: otp <email>")
		return
	}
	fmt.Println("Check your email for the one-time code...")
	a.afterLogin(a.session.LoginWithEmailOTP(ctx, args[0]))
}

func (a *app) cmdGoogle(args []string) {
	redirectURI := "http://localhost:3000/callback"
	if len(args) == 1 {
		redirectURI = args[0]
	}
	fmt.Println("Open this URL in a browser, then run 'sso <token>' with the")
	fmt.Println("login token from the callback:")
	fmt.Println(a.session.GoogleLoginURL(redirectURI))
}

func (a *app) cmdRooms() {
	rooms := a.view.Rooms()
	if len(rooms) == 0 {
		fmt.Println("No rooms. Are you logged in and synced?")
		return
	}
	active := a.view.ActiveRoom()
	for i, room := range rooms {
		marker := " "
		if room.ID == active {
			marker = "*"
		}
		fmt.Printf("%s %2d. %s (%s)\n", marker, i+1, room.DisplayName(), room.ID)
	}
}

func (a *app) cmdSelect(args []string) {
	if len(args) == 0 {
		a.view.SelectRoom("")
		fmt.Println("Room deselected.")
		return
	}

	target := args[0]
	if n, err := strconv.Atoi(target); err == nil {
		rooms := a.view.Rooms()
		if n < 1 || n > len(rooms) {
			fmt.Printf("No room number %d. Run 'rooms' first.\n", n)
			return
		}
		target = rooms[n-1].ID
	}
	a.view.SelectRoom(target)
	fmt.Printf("Active room: %s\n", target)
}

func (a *app) cmdMembers() {
	if a.view.ActiveRoom() == "" {
		fmt.Println("No active room. Run 'select' first.")
		return
	}
	members := a.view.Members()
	if len(members) == 0 {
		fmt.Println("No members loaded yet.")
		return
	}
	for _, m := range members {
		if m.DisplayName != "" && m.DisplayName != m.UserID {
			fmt.Printf("  %s (%s)\n", m.DisplayName, m.UserID)
			continue
		}
		fmt.Printf("  %s\n", m.UserID)
	}
}

func (a *app) cmdMessages() {
	if a.view.ActiveRoom() == "" {
		fmt.Println("No active room. Run 'select' first.")
		return
	}
	messages := a.view.Messages()
	if len(messages) == 0 {
		fmt.Println("No messages.")
		return
	}
	for _, msg := range messages {
		ts := time.UnixMilli(msg.Timestamp).Format("15:04:05")
		fmt.Printf("[%s] %s: %s\n", ts, msg.Sender, msg.Body)
	}
}

func (a *app) cmdSend(ctx context.Context, text string) {
	if !a.view.InputEnabled() {
		fmt.Println("No active room. Run 'select' first.")
		return
	}
	if err := a.view.SendMessage(ctx, text); err != nil {
		fmt.Printf("Send failed: %v\n", err)
		a.handleAuthFailure(ctx, err)
	}
}

// walletAddress resolves the custodial wallet address from the provider's
// user metadata. Only provider-issued credentials carry one.
func (a *app) walletAddress(ctx context.Context) (string, string, bool) {
	cred, ok := a.session.Credential()
	if !ok {
		fmt.Println("Not logged in.")
		return "", "", false
	}
	meta, err := a.provider.Metadata(ctx, cred.AccessToken)
	if err != nil {
		fmt.Printf("Could not resolve wallet address: %v\n", err)
		a.handleAuthFailure(ctx, err)
		return "", "", false
	}
	if meta.PublicAddress == "" {
		fmt.Println("This login has no wallet. Use a wallet provider login.")
		return "", "", false
	}
	return meta.PublicAddress, cred.AccessToken, true
}

func (a *app) cmdAddress(ctx context.Context) {
	if address, _, ok := a.walletAddress(ctx); ok {
		fmt.Println(address)
	}
}

func (a *app) cmdBalance(ctx context.Context) {
	address, _, ok := a.walletAddress(ctx)
	if !ok {
		return
	}
	balance, err := a.wallet.BalanceSOL(ctx, address)
	if err != nil {
		fmt.Printf("Balance fetch failed: %v\n", err)
		return
	}
	fmt.Printf("%.9f SOL\n", balance)
}

func (a *app) cmdAirdrop(ctx context.Context) {
	address, _, ok := a.walletAddress(ctx)
	if !ok {
		return
	}
	fmt.Println("Requesting airdrop (this waits for finalization)...")
	signature, err := a.wallet.AirdropSOL(ctx, address)
	if err != nil {
		fmt.Printf("Airdrop failed: %v\n", err)
		return
	}
	fmt.Printf("Airdrop confirmed: %s\n", signature)
}

func (a *app) cmdSendSOL(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("Usage: sendsol <recipient> <amount>")
		return
	}
	a.transfer(ctx, wallet.SendRequest{Recipient: args[0], Amount: args[1]})
}

func (a *app) cmdSendToken(ctx context.Context, args []string) {
	if len(args) != 3 {
		fmt.Println("Usage: sendtoken <recipient> <amount> <mint>")
		return
	}
	a.transfer(ctx, wallet.SendRequest{Recipient: args[0], Amount: args[1], TokenMint: args[2]})
}

func (a *app) transfer(ctx context.Context, req wallet.SendRequest) {
	address, accessToken, ok := a.walletAddress(ctx)
	if !ok {
		return
	}
	req.From = address

	var messenger wallet.Messenger
	if a.view.InputEnabled() {
		messenger = a.view
	}

	fmt.Println("Submitting transfer (this waits for finalization)...")
	signature, err := a.wallet.SendWithChatNotice(ctx, accessToken, req, messenger)
	if err != nil {
		fmt.Printf("Transfer failed: %v\n", err)
		a.handleAuthFailure(ctx, err)
		return
	}
	fmt.Printf("Transfer confirmed: %s\n", signature)
}

func (a *app) cmdHistory(ctx context.Context) {
	address, _, ok := a.walletAddress(ctx)
	if !ok {
		return
	}
	infos, err := a.wallet.RPC.SignaturesForAddress(ctx, address, 20)
	if err != nil {
		fmt.Printf("History fetch failed: %v\n", err)
		return
	}
	if len(infos) == 0 {
		fmt.Println("No transactions.")
		return
	}
	for _, info := range infos {
		when := "pending"
		if info.BlockTime != nil {
			when = time.Unix(*info.BlockTime, 0).Format("2006-01-02 15:04:05")
		}
		status := "ok"
		if len(info.Err) > 0 && string(info.Err) != "null" {
			status = "failed"
		}
		fmt.Printf("  %s  slot %d  %s  %s\n", when, info.Slot, status, info.Signature)
	}
}

func (a *app) cmdLogout(ctx context.Context) {
	a.view.Stop()
	a.session.Logout(ctx)
	fmt.Println("Logged out.")
}

// handleAuthFailure logs the user out when a call was rejected for
// credential reasons. Stale tokens are never silently refreshed.
func (a *app) handleAuthFailure(ctx context.Context, err error) {
	if a.session.ForceLogoutOnAuthError(ctx, err) {
		a.view.Stop()
		fmt.Println("Your session expired. Please log in again.")
	}
}

func promptInput(prompt string) string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print(prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}
