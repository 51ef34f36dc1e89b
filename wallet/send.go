package wallet

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"

	"github.com/vdumbrav/matrix-solana-client/apperr"
	"github.com/vdumbrav/matrix-solana-client/walletauth"
)

// ValidatePublicKey checks that the string is a base58-encoded 32-byte key.
func ValidatePublicKey(address string) error {
	raw, err := base58.Decode(address)
	if err != nil || len(raw) != 32 {
		return apperr.Validation("invalid public key: " + address)
	}
	return nil
}

// parseAmount accepts a positive decimal amount in display units.
func parseAmount(amount string) (float64, error) {
	value, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, apperr.Validation("amount must be a number")
	}
	if value <= 0 {
		return 0, apperr.Validation("amount must be greater than zero")
	}
	return value, nil
}

// Signer builds and signs a transfer with the custodial key.
type Signer interface {
	SignTransfer(ctx context.Context, accessToken string, intent walletauth.TransferIntent) (string, error)
}

// Messenger posts a transaction notice into the active chat room.
type Messenger interface {
	SendMessage(ctx context.Context, text string) error
}

// SendRequest is one user-submitted transfer. TokenMint empty means native
// SOL; otherwise an SPL transfer of that mint.
type SendRequest struct {
	From      string
	Recipient string
	Amount    string
	TokenMint string
}

// Service runs the send flow: validate, sign remotely, submit, confirm.
type Service struct {
	RPC    *Client
	Signer Signer
}

// Send validates the request, has the provider sign it, submits it, and
// waits for finalization. All input problems surface as validation errors
// before any network call.
func (s *Service) Send(ctx context.Context, accessToken string, req SendRequest) (string, error) {
	if req.Recipient == "" || req.Amount == "" {
		return "", apperr.Validation("recipient and amount are required")
	}
	if err := ValidatePublicKey(req.Recipient); err != nil {
		return "", err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return "", err
	}

	intent := walletauth.TransferIntent{From: req.From, To: req.Recipient}

	if req.TokenMint == "" {
		intent.Amount = uint64(math.Round(amount * LamportsPerSOL))
	} else {
		if err := ValidatePublicKey(req.TokenMint); err != nil {
			return "", apperr.Validation("invalid token mint address: " + req.TokenMint)
		}
		decimals, err := s.RPC.TokenDecimals(ctx, req.TokenMint)
		if err != nil {
			return "", err
		}
		intent.TokenMint = req.TokenMint
		intent.Decimals = decimals
		intent.Amount = uint64(math.Round(amount * math.Pow10(int(decimals))))
	}

	signedTx, err := s.Signer.SignTransfer(ctx, accessToken, intent)
	if err != nil {
		return "", err
	}

	signature, err := s.RPC.SendTransaction(ctx, signedTx)
	if err != nil {
		return "", err
	}

	if err := s.RPC.ConfirmSignature(ctx, signature); err != nil {
		return "", err
	}
	return signature, nil
}

// SendWithChatNotice runs Send and, when a room is active, posts the
// confirmation into the chat. A failed notice never fails the transfer; it
// is logged and dropped.
func (s *Service) SendWithChatNotice(ctx context.Context, accessToken string, req SendRequest, messenger Messenger) (string, error) {
	signature, err := s.Send(ctx, accessToken, req)
	if err != nil {
		return "", err
	}

	if messenger != nil {
		kind := "SOL"
		if req.TokenMint != "" {
			kind = "SPL Token"
		}
		notice := fmt.Sprintf("%s Transaction successful! Signature: %s", kind, signature)
		if err := messenger.SendMessage(ctx, notice); err != nil {
			log.Error().Err(err).Msg("failed to post transaction notice to chat")
		}
	}
	return signature, nil
}

// AirdropSOL requests the faucet's standard 2 SOL grant and waits for it.
func (s *Service) AirdropSOL(ctx context.Context, address string) (string, error) {
	signature, err := s.RPC.RequestAirdrop(ctx, address, 2*LamportsPerSOL)
	if err != nil {
		return "", err
	}
	if err := s.RPC.ConfirmSignature(ctx, signature); err != nil {
		return "", err
	}
	return signature, nil
}

// BalanceSOL returns the balance in display units.
func (s *Service) BalanceSOL(ctx context.Context, address string) (float64, error) {
	lamports, err := s.RPC.Balance(ctx, address)
	if err != nil {
		return 0, err
	}
	return float64(lamports) / LamportsPerSOL, nil
}
