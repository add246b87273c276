package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownWallet    = errors.New("wallet: not connected")
	ErrAlreadyConnected = errors.New("wallet: already connected")
	ErrWalletInUse      = errors.New("wallet: has open positions")
)

// Registry holds the wallets the bot trades for.
type Registry struct {
	mu      sync.RWMutex
	signers map[string]Signer
	inUse   func(wallet string) bool
}

func NewRegistry() *Registry {
	return &Registry{signers: make(map[string]Signer)}
}

// Connect adds a wallet by public key together with the signer for it.
func (r *Registry) Connect(publicKey string, signer Signer) error {
	if _, err := solana.PublicKeyFromBase58(publicKey); err != nil {
		return fmt.Errorf("invalid wallet address %q: %w", publicKey, err)
	}
	if signer == nil {
		return fmt.Errorf("wallet %s: nil signer", publicKey)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signers[publicKey]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, publicKey)
	}
	r.signers[publicKey] = signer
	return nil
}

// GuardDisconnect installs a check that blocks Disconnect while it reports
// true for the wallet. Positions can only be closed through a connected signer.
func (r *Registry) GuardDisconnect(inUse func(wallet string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inUse = inUse
}

// Disconnect removes a wallet. It fails with ErrWalletInUse while the
// guard reports open positions for it.
func (r *Registry) Disconnect(publicKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.signers[publicKey]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWallet, publicKey)
	}
	if r.inUse != nil && r.inUse(publicKey) {
		return fmt.Errorf("%w: %s", ErrWalletInUse, publicKey)
	}
	delete(r.signers, publicKey)
	return nil
}

// List returns the connected wallets in a stable order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.signers))
	for k := range r.signers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Signer returns the signer of a connected wallet.
func (r *Registry) Signer(publicKey string) (Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signers[publicKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownWallet, publicKey)
	}
	return s, nil
}

// BalanceRPC is the part of the RPC client used for balances and mint info.
type BalanceRPC interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenSupply(ctx context.Context, mint solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenSupplyResult, error)
}

// RPCBalance reads SOL balances and token decimals from the chain.
type RPCBalance struct {
	client BalanceRPC
}

func NewRPCBalance(client BalanceRPC) *RPCBalance {
	return &RPCBalance{client: client}
}

// Balance returns the SOL balance of a wallet.
func (b *RPCBalance) Balance(ctx context.Context, wallet string) (float64, error) {
	pk, err := solana.PublicKeyFromBase58(wallet)
	if err != nil {
		return 0, fmt.Errorf("invalid wallet address %q: %w", wallet, err)
	}
	res, err := b.client.GetBalance(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", wallet, err)
	}
	return decimal.NewFromBigInt(new(big.Int).SetUint64(res.Value), -9).InexactFloat64(), nil
}

// TokenDecimals returns the number of decimals of a mint.
func (b *RPCBalance) TokenDecimals(ctx context.Context, mint string) (uint8, error) {
	pk, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return 0, fmt.Errorf("invalid mint %q: %w", mint, err)
	}
	res, err := b.client.GetTokenSupply(ctx, pk, rpc.CommitmentConfirmed)
	if err != nil {
		return 0, fmt.Errorf("get token supply %s: %w", mint, err)
	}
	if res == nil || res.Value == nil {
		return 0, fmt.Errorf("empty token supply for %s", mint)
	}
	return res.Value.Decimals, nil
}
