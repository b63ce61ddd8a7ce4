package evm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/metrics"
	"github.com/sigweihq/memespin/pkg/wallet"
)

// DialFunc opens an RPC client for an endpoint
type DialFunc func(ctx context.Context, endpoint string) (*ethclient.Client, error)

// EndpointProvider lists the public RPC endpoints of a chain in preference order
type EndpointProvider interface {
	Endpoints(chainID uint64) []string
}

// StaticEndpoints serves the public endpoint list of the registry as is
type StaticEndpoints struct {
	Registry *chains.Registry
}

// Endpoints implements EndpointProvider
func (s StaticEndpoints) Endpoints(chainID uint64) []string {
	cfg, err := s.Registry.Get(chainID)
	if err != nil {
		return nil
	}
	return cfg.RPCURLs
}

// Reader is a read connection to one endpoint that answered the liveness probe
type Reader struct {
	*ethclient.Client
	Endpoint string
	ChainID  uint64
}

// TransactionReceipt returns the receipt of a mined transaction.
// Logs are decoded without the blockTimestamp field some L2 nodes add.
func (r *Reader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	return patchedTransactionReceipt(ctx, r.Client, txHash)
}

// Connector selects a live RPC endpoint for a chain.
// Selection is not sticky: every Connect re-probes from the top of the preference order.
type Connector struct {
	registry     *chains.Registry
	endpoints    EndpointProvider
	logger       *slog.Logger
	retryDelay   time.Duration
	probeTimeout time.Duration
	dial         DialFunc
}

// ConnectorOption configures a Connector
type ConnectorOption func(*Connector)

// WithEndpointProvider replaces the registry's static public endpoint list
func WithEndpointProvider(p EndpointProvider) ConnectorOption {
	return func(c *Connector) { c.endpoints = p }
}

// WithRetryDelay sets the delay between passes over the public endpoint list
func WithRetryDelay(d time.Duration) ConnectorOption {
	return func(c *Connector) { c.retryDelay = d }
}

// WithProbeTimeout bounds a single dial and eth_blockNumber probe
func WithProbeTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) { c.probeTimeout = d }
}

// WithDialer replaces ethclient.DialContext
func WithDialer(dial DialFunc) ConnectorOption {
	return func(c *Connector) { c.dial = dial }
}

// NewConnector creates a connector over the registry
func NewConnector(registry *chains.Registry, logger *slog.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Connector{
		registry:     registry,
		endpoints:    StaticEndpoints{Registry: registry},
		logger:       logger,
		retryDelay:   constants.RPCRetryDelay,
		probeTimeout: constants.ProbeTimeout,
		dial:         ethclient.DialContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect tries the chain's private endpoint first, then makes up to retries passes over the
// public endpoints with a fixed delay between passes. The first endpoint that answers wins.
func (c *Connector) Connect(ctx context.Context, chainID uint64, retries int) (*Reader, error) {
	cfg, err := c.registry.Get(chainID)
	if err != nil {
		return nil, wallet.NewError(wallet.CodeRPCAllEndpointsFailed,
			fmt.Sprintf("no RPC endpoints for chain %d", chainID), &UnsupportedChainError{ChainID: chainID})
	}
	if retries < 1 {
		retries = 1
	}

	var lastErr error
	if endpoint, ok := cfg.PreferredRPCURL(); ok {
		client, err := c.probe(ctx, endpoint)
		if err == nil {
			return &Reader{Client: client, Endpoint: endpoint, ChainID: chainID}, nil
		}
		lastErr = err
		c.logger.Warn("preferred RPC endpoint failed, falling back to public endpoints",
			"chainID", chainID, "error", err)
	}

	public := c.endpoints.Endpoints(chainID)
	for pass := 0; pass < retries && len(public) > 0; pass++ {
		for _, endpoint := range public {
			if ctx.Err() != nil {
				return nil, c.exhausted(chainID, ctx.Err())
			}
			client, err := c.probe(ctx, endpoint)
			if err == nil {
				c.logger.Debug("connected to RPC endpoint", "chainID", chainID, "endpoint", endpoint, "pass", pass+1)
				return &Reader{Client: client, Endpoint: endpoint, ChainID: chainID}, nil
			}
			lastErr = err
			c.logger.Debug("RPC endpoint failed", "chainID", chainID, "endpoint", endpoint, "error", err)
		}

		if pass < retries-1 {
			select {
			case <-ctx.Done():
				return nil, c.exhausted(chainID, ctx.Err())
			case <-time.After(c.retryDelay):
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no RPC endpoints configured")
	}
	return nil, c.exhausted(chainID, lastErr)
}

func (c *Connector) exhausted(chainID uint64, cause error) error {
	return wallet.NewError(wallet.CodeRPCAllEndpointsFailed,
		fmt.Sprintf("all RPC endpoints failed for chain %d", chainID), cause)
}

func (c *Connector) probe(ctx context.Context, endpoint string) (*ethclient.Client, error) {
	client, err := probeEndpoint(ctx, c.dial, endpoint, c.probeTimeout)
	metrics.RPCProbes.WithLabelValues(metrics.Outcome(err)).Inc()
	return client, err
}

func probeEndpoint(ctx context.Context, dial DialFunc, endpoint string, timeout time.Duration) (*ethclient.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := dial(ctx, endpoint)
	if err != nil {
		return nil, &RPCError{Endpoint: endpoint, Err: err}
	}
	if _, err := client.BlockNumber(ctx); err != nil {
		client.Close()
		return nil, &RPCError{Endpoint: endpoint, Err: err}
	}
	return client, nil
}

// patchedTransactionReceipt gets a transaction receipt with Base-specific fixes
func patchedTransactionReceipt(ctx context.Context, client *ethclient.Client, txHash common.Hash) (*ethtypes.Receipt, error) {
	var raw json.RawMessage
	err := client.Client().CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ethereum.NotFound
	}

	cleaned, err := stripBlockTimestampFromLogs(raw)
	if err != nil {
		return nil, err
	}

	var receipt ethtypes.Receipt
	if err := json.Unmarshal(cleaned, &receipt); err != nil {
		return nil, err
	}

	return &receipt, nil
}

// stripBlockTimestampFromLogs removes the blockTimestamp field from transaction logs
func stripBlockTimestampFromLogs(raw json.RawMessage) ([]byte, error) {
	var receiptMap map[string]interface{}
	if err := json.Unmarshal(raw, &receiptMap); err != nil {
		return nil, err
	}

	logs, ok := receiptMap["logs"].([]interface{})
	if ok {
		for _, log := range logs {
			logMap, ok := log.(map[string]interface{})
			if ok {
				delete(logMap, "blockTimestamp")
			}
		}
	}

	return json.Marshal(receiptMap)
}
