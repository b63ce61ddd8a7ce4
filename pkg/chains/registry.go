package chains

import (
	"fmt"
	"slices"
	"sync"

	"github.com/sigweihq/memespin/pkg/constants"
)

const defaultNativeSymbol = "ETH"

// Registry holds the chain table. It is filled at startup and only read afterwards.
type Registry struct {
	configs map[uint64]ChainConfig
	mu      sync.RWMutex
}

// NewRegistry creates a registry holding the given chains
func NewRegistry(configs ...ChainConfig) *Registry {
	r := &Registry{
		configs: make(map[uint64]ChainConfig, len(configs)),
	}
	for _, cfg := range configs {
		r.Register(cfg)
	}
	return r
}

// DefaultRegistry returns the built-in chain table.
// Private endpoints are Infura URLs and are left out when infuraID is empty.
func DefaultRegistry(infuraID string) *Registry {
	configs := defaultChains()
	for i := range configs {
		sub, ok := constants.InfuraSubdomain[configs[i].ChainID]
		if !ok || infuraID == "" {
			continue
		}
		configs[i].PrivateRPCURLs = []string{fmt.Sprintf("https://%s.infura.io/v3/%s", sub, infuraID)}
	}
	return NewRegistry(configs...)
}

// Register adds a chain (replacing any previous entry with the same id)
func (r *Registry) Register(cfg ChainConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[cfg.ChainID] = cfg.clone()
}

// Get returns a copy of the chain configuration
func (r *Registry) Get(chainID uint64) (ChainConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.configs[chainID]
	if !exists {
		return ChainConfig{}, fmt.Errorf("no configuration registered for chain: %d", chainID)
	}

	return cfg.clone(), nil
}

// IsSupported checks if a chain is in the table
func (r *Registry) IsSupported(chainID uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.configs[chainID]
	return exists
}

// SupportedChainIDs returns all chain ids in ascending order
func (r *Registry) SupportedChainIDs() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uint64, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NativeCurrencySymbol returns the gas token symbol, "ETH" for unknown chains
func (r *Registry) NativeCurrencySymbol(chainID uint64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.configs[chainID]
	if !exists || cfg.NativeCurrency.Symbol == "" {
		return defaultNativeSymbol
	}
	return cfg.NativeCurrency.Symbol
}

func defaultChains() []ChainConfig {
	pol := NativeCurrency{Name: "POL", Symbol: "POL", Decimals: 18}
	eth := NativeCurrency{Name: "ETH", Symbol: "ETH", Decimals: 18}

	return []ChainConfig{
		{
			ChainID:        constants.ChainPolygon,
			Name:           "Polygon",
			Chain:          "Polygon",
			NetworkType:    "mainnet",
			ShortName:      "pol",
			NativeCurrency: pol,
			RPCURLs: []string{
				"https://polygon-rpc.com",
				"https://rpc.ankr.com/polygon",
				"https://polygon-bor.publicnode.com",
				"https://1rpc.io/matic",
			},
			BlockExplorerURLs: []string{"https://polygonscan.com"},
			Explorers:         []Explorer{{Name: "PolygonScan", URL: "https://polygonscan.com", Standard: "EIP3091"}},
		},
		{
			ChainID:        constants.ChainPolygonAmoy,
			Name:           "Amoy",
			Chain:          "Polygon",
			NetworkType:    "testnet",
			ShortName:      "amoy",
			NativeCurrency: pol,
			RPCURLs: []string{
				"https://rpc.ankr.com/polygon_amoy",
				"https://polygon-amoy.drpc.org",
				"https://polygon-amoy.public-rpc.com",
			},
			BlockExplorerURLs: []string{"https://www.oklink.com/amoy"},
			Explorers:         []Explorer{{Name: "OKLink", URL: "https://www.oklink.com/amoy", Standard: "EIP3091"}},
		},
		{
			ChainID:        constants.ChainBase,
			Name:           "Base",
			Chain:          "Base",
			NetworkType:    "mainnet",
			ShortName:      "base",
			NativeCurrency: eth,
			RPCURLs: []string{
				"https://base.publicnode.com",
				"https://base.meowrpc.com",
				"https://1rpc.io/base",
				"https://base.drpc.org",
			},
			BlockExplorerURLs: []string{"https://basescan.org"},
			Explorers:         []Explorer{{Name: "BaseScan", URL: "https://basescan.org", Standard: "EIP3091"}},
		},
		{
			ChainID:        constants.ChainBaseSepolia,
			Name:           "Base Sepolia",
			Chain:          "Base",
			NetworkType:    "testnet",
			ShortName:      "base-sepolia",
			NativeCurrency: eth,
			RPCURLs: []string{
				"https://sepolia.base.org",
				"https://base-sepolia-rpc.publicnode.com",
				"https://base-sepolia.drpc.org",
			},
			BlockExplorerURLs: []string{"https://sepolia.basescan.org"},
			Explorers:         []Explorer{{Name: "BaseScan Sepolia", URL: "https://sepolia.basescan.org", Standard: "EIP3091"}},
		},
	}
}
