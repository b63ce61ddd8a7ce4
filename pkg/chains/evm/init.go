package evm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigweihq/memespin/pkg/chains"
)

// DiscoveryRefreshInterval is how often discovered endpoints are refreshed
const DiscoveryRefreshInterval = 6 * time.Hour

// InitConnector builds the connector used by the session.
//   - Without discovery: the registry's public endpoints are used as is
//   - With discovery: chainlist.org endpoints are merged in once now and refreshed in the
//     background until ctx is done
func InitConnector(ctx context.Context, registry *chains.Registry, logger *slog.Logger, discover bool, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	if !discover {
		return NewConnector(registry, logger, opts...)
	}

	provider := NewChainListEndpointProvider(registry, logger, "")
	if err := provider.Refresh(ctx); err != nil {
		logger.Warn("initial endpoint refresh failed, using registry endpoints only", "error", err)
	}

	go startBackgroundRefresh(ctx, logger, provider, DiscoveryRefreshInterval)

	return NewConnector(registry, logger, append([]ConnectorOption{WithEndpointProvider(provider)}, opts...)...)
}

// startBackgroundRefresh refreshes endpoints periodically
func startBackgroundRefresh(ctx context.Context, logger *slog.Logger, provider *ChainListEndpointProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := provider.Refresh(ctx); err != nil {
				logger.Warn("background endpoint refresh failed", "error", err)
			}
		}
	}
}
