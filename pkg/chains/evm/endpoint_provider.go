package evm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// ChainListResponse represents a chain entry from chainlist.org/rpcs.json
type ChainListResponse struct {
	ChainID uint64 `json:"chainId"`
	RPC     []struct {
		URL string `json:"url"`
	} `json:"rpc"`
}

// ChainListEndpointProvider merges endpoints discovered at chainlist.org behind the
// registry's public list and orders them healthy first
type ChainListEndpointProvider struct {
	registry  *chains.Registry
	url       string
	client    *http.Client
	healthy   func(ctx context.Context, endpoint string) bool
	endpoints map[uint64][]string // chainID -> []rpc_urls
	logger    *slog.Logger
	mu        sync.RWMutex
}

// NewChainListEndpointProvider creates a provider that fetches from url (chainlist.org when empty)
func NewChainListEndpointProvider(registry *chains.Registry, logger *slog.Logger, url string) *ChainListEndpointProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if url == "" {
		url = constants.ChainListURL
	}
	return &ChainListEndpointProvider{
		registry:  registry,
		url:       url,
		client:    utils.CreateHTTPClientWithTimeouts(constants.ChainListTimeout),
		healthy:   isEndpointHealthy,
		endpoints: make(map[uint64][]string),
		logger:    logger,
	}
}

// Endpoints implements EndpointProvider.
// Falls back to the registry list until a refresh has completed.
func (p *ChainListEndpointProvider) Endpoints(chainID uint64) []string {
	p.mu.RLock()
	endpoints := p.endpoints[chainID]
	p.mu.RUnlock()

	if len(endpoints) > 0 {
		return slices.Clone(endpoints)
	}
	return StaticEndpoints{Registry: p.registry}.Endpoints(chainID)
}

// Refresh fetches fresh endpoints from chainlist.org and health checks them.
// With no chain ids every registry chain is refreshed. On a failed fetch the previous lists are kept.
func (p *ChainListEndpointProvider) Refresh(ctx context.Context, chainIDs ...uint64) error {
	if len(chainIDs) == 0 {
		chainIDs = p.registry.SupportedChainIDs()
	}

	chainListData, err := p.fetchAllChains(ctx)
	if err != nil {
		p.logger.Warn("failed to fetch from chainlist.org, using registry endpoints only", "error", err)
		return err
	}

	merged := make(map[uint64][]string, len(chainIDs))
	for _, chainID := range chainIDs {
		merged[chainID] = mergeEndpoints(StaticEndpoints{Registry: p.registry}.Endpoints(chainID), chainListData, chainID)
	}

	for chainID, endpoints := range merged {
		merged[chainID] = p.prioritize(ctx, chainID, endpoints)
	}

	p.mu.Lock()
	for chainID, endpoints := range merged {
		p.endpoints[chainID] = endpoints
	}
	p.mu.Unlock()

	return nil
}

// fetchAllChains fetches chain data from chainlist.org
func (p *ChainListEndpointProvider) fetchAllChains(ctx context.Context) ([]ChainListResponse, error) {
	data, err := utils.GetJSON[[]ChainListResponse](ctx, p.client, p.url, "chainlist")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chainlist data: %w", err)
	}
	return *data, nil
}

// mergeEndpoints appends the chain's https chainlist endpoints after the registry list, without duplicates
func mergeEndpoints(registryEndpoints []string, chainListData []ChainListResponse, chainID uint64) []string {
	merged := slices.Clone(registryEndpoints)
	for _, chain := range chainListData {
		if chain.ChainID != chainID {
			continue
		}
		for _, rpc := range chain.RPC {
			// Only include HTTPS URLs and exclude templated URLs
			if !strings.HasPrefix(rpc.URL, "https://") || strings.Contains(rpc.URL, "${") {
				continue
			}
			if !slices.Contains(merged, rpc.URL) {
				merged = append(merged, rpc.URL)
			}
		}
	}
	return merged
}

// prioritize checks endpoint health concurrently and puts healthy ones first, keeping relative order
func (p *ChainListEndpointProvider) prioritize(ctx context.Context, chainID uint64, endpoints []string) []string {
	ok := make([]bool, len(endpoints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, endpoint := range endpoints {
		g.Go(func() error {
			ok[i] = p.healthy(gctx, endpoint)
			return nil
		})
	}
	_ = g.Wait()

	var healthyEndpoints, unhealthyEndpoints []string
	for i, endpoint := range endpoints {
		if ok[i] {
			healthyEndpoints = append(healthyEndpoints, endpoint)
		} else {
			unhealthyEndpoints = append(unhealthyEndpoints, endpoint)
		}
	}

	p.logger.Debug("health check complete",
		"chainID", chainID,
		"healthy", len(healthyEndpoints),
		"unhealthy", len(unhealthyEndpoints))

	return append(healthyEndpoints, unhealthyEndpoints...)
}

// isEndpointHealthy performs a simple health check on an RPC endpoint
func isEndpointHealthy(ctx context.Context, endpoint string) bool {
	client, err := probeEndpoint(ctx, ethclient.DialContext, endpoint, 3*time.Second)
	if err != nil {
		return false
	}
	client.Close()
	return true
}
