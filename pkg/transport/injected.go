package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/rpc"
)

// InjectedDialer reaches an in-page style wallet exposed as a JSON-RPC endpoint
type InjectedDialer struct {
	URL     string
	Logger  *slog.Logger
	DialRPC RPCDialFunc // rpc.DialContext when nil
}

// NewInjectedDialer creates a dialer for the wallet at url
func NewInjectedDialer(url string, logger *slog.Logger) *InjectedDialer {
	return &InjectedDialer{URL: url, Logger: logger}
}

func (d *InjectedDialer) Kind() Kind { return KindInjected }

// Dial connects and subscribes to wallet events when the connection supports them
func (d *InjectedDialer) Dial(ctx context.Context) (Transport, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dial := d.DialRPC
	if dial == nil {
		dial = rpc.DialContext
	}

	client, err := dial(ctx, d.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to reach injected wallet: %w", err)
	}

	t := newRPCTransport(KindInjected, client, logger)
	t.subscribe(ctx, "wallet", "events")
	return t, nil
}
