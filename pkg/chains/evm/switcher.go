package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/wallet"
)

// JSON-RPC error codes wallets use for a chain they do not know
const (
	ErrCodeUnrecognizedChain = 4902
	ErrCodeInternal          = -32603 // reported instead of 4902 by some mobile wallets
)

// ChainRequester is the part of a wallet that can change its active chain
type ChainRequester interface {
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params chains.AddChainParams) error
}

// Switcher asks wallets to move to a registry chain, adding it when the wallet does not know it
type Switcher struct {
	registry *chains.Registry
	logger   *slog.Logger
}

// NewSwitcher creates a switcher over the registry
func NewSwitcher(registry *chains.Registry, logger *slog.Logger) *Switcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Switcher{registry: registry, logger: logger}
}

// SwitchTo switches the wallet to chainID. An add-chain request is only issued after the wallet
// reports the chain as unrecognized, and the switch is then retried once.
func (s *Switcher) SwitchTo(ctx context.Context, w ChainRequester, chainID uint64) error {
	err := w.SwitchChain(ctx, chainID)
	if err == nil {
		return nil
	}
	if !IsUnrecognizedChain(err) {
		return wallet.NewError(wallet.CodeChainSwitchFailed,
			fmt.Sprintf("failed to switch to chain %d", chainID), err)
	}

	s.logger.Info("wallet does not know chain, requesting add", "chainID", chainID)
	cfg, err := s.registry.Get(chainID)
	if err != nil {
		return wallet.NewError(wallet.CodeChainAddFailed,
			fmt.Sprintf("failed to add chain %d", chainID), err)
	}
	if err := w.AddChain(ctx, cfg.AddChainParams()); err != nil {
		return wallet.NewError(wallet.CodeChainAddFailed,
			fmt.Sprintf("failed to add chain %d", chainID), err)
	}

	if err := w.SwitchChain(ctx, chainID); err != nil {
		return wallet.NewError(wallet.CodeChainSwitchFailed,
			fmt.Sprintf("failed to switch to chain %d after adding it", chainID), err)
	}
	return nil
}

// IsUnrecognizedChain reports whether err is a wallet's unknown-chain JSON-RPC error
func IsUnrecognizedChain(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	code := rpcErr.ErrorCode()
	return code == ErrCodeUnrecognizedChain || code == ErrCodeInternal
}
