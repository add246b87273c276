package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-memebot/internal/types"
)

// ErrRejected is returned when the signer refuses a transaction.
var ErrRejected = errors.New("wallet: transaction rejected")

// Signer accepts a serialized swap and returns the signature it landed with.
type Signer interface {
	Sign(ctx context.Context, tx types.SwapTransaction) (string, error)
}

// TxSender is the part of the RPC client used to submit transactions.
type TxSender interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// KeypairSigner signs with a local keypair and submits through RPC.
type KeypairSigner struct {
	wallet *Wallet
	sender TxSender
	logger *zap.Logger
}

func NewKeypairSigner(w *Wallet, sender TxSender, logger *zap.Logger) *KeypairSigner {
	return &KeypairSigner{
		wallet: w,
		sender: sender,
		logger: logger.Named("signer").With(zap.String("wallet", w.String())),
	}
}

// PublicKey returns the address the signer signs for.
func (s *KeypairSigner) PublicKey() string {
	return s.wallet.String()
}

func (s *KeypairSigner) Sign(ctx context.Context, swap types.SwapTransaction) (string, error) {
	if swap.Wallet != "" && swap.Wallet != s.wallet.String() {
		return "", fmt.Errorf("%w: transaction built for %s", ErrRejected, swap.Wallet)
	}

	tx, err := DecodeTransaction(swap.Transaction)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	if err := s.wallet.SignTransaction(tx); err != nil {
		return "", fmt.Errorf("%w: sign: %v", ErrRejected, err)
	}

	sig, err := s.sender.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		s.logger.Error("Failed to send transaction", zap.Error(err))
		return "", fmt.Errorf("send transaction: %w", err)
	}

	s.logger.Info("Transaction sent", zap.String("signature", sig.String()))
	return sig.String(), nil
}

// DecodeTransaction parses a base64 wire transaction.
func DecodeTransaction(b64 string) (*solana.Transaction, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64 transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
