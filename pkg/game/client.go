// Package game reads and writes the Memespin game and NFT contracts on behalf of the connected
// wallet. Reads go through the session's RPC connection, writes through the wallet transport.
package game

import (
	"bytes"
	"cmp"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/metrics"
	"github.com/sigweihq/memespin/pkg/session"
	"github.com/sigweihq/memespin/pkg/transport"
	"github.com/sigweihq/memespin/pkg/wallet"
)

//go:embed abi/memespin.json abi/nft.json
var abiFiles embed.FS

// Session is the part of the session manager the game needs
type Session interface {
	Active() (session.Active, error)
	Invalidate()
	Subscribe(fn func(session.Event)) func()
	NativeCurrency() string
}

// Config addresses the contracts
type Config struct {
	Contract    common.Address
	NFTContract common.Address
	// DefaultReferrer is used when a play has no valid referrer; the contract's dev address otherwise
	DefaultReferrer     common.Address
	ReceiptPollInterval time.Duration
	Logger              *slog.Logger
}

// Client is the game facade. It keeps a one-slot cache of one player's round history.
type Client struct {
	session     Session
	cfg         Config
	gameABI     abi.ABI
	nftABI      abi.ABI
	logger      *slog.Logger
	unsubscribe func()

	mu           sync.Mutex
	history      map[uint64]RoundHistoryEntry // nil until loaded
	historyOwner common.Address
	historyGen   uint64 // bumped by clearHistory
}

// NewClient creates a game client bound to the session
func NewClient(s Session, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = constants.ReceiptPollInterval
	}

	gameABI, err := loadABI("abi/memespin.json")
	if err != nil {
		return nil, err
	}
	nftABI, err := loadABI("abi/nft.json")
	if err != nil {
		return nil, err
	}

	c := &Client{
		session: s,
		cfg:     cfg,
		gameABI: gameABI,
		nftABI:  nftABI,
		logger:  cfg.Logger,
	}
	c.unsubscribe = s.Subscribe(func(e session.Event) {
		switch e.(type) {
		case session.AccountsChanged, session.Disconnected:
			c.clearHistory()
		}
	})
	return c, nil
}

func loadABI(name string) (abi.ABI, error) {
	data, err := abiFiles.ReadFile(name)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read %s: %w", name, err)
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return parsed, nil
}

// Close stops listening to session events
func (c *Client) Close() {
	c.unsubscribe()
}

func (c *Client) clearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
	c.historyOwner = common.Address{}
	c.historyGen++
}

func (c *Client) historyGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyGen
}

// storeHistory replaces the cache unless it was cleared since gen was read
func (c *Client) storeHistory(gen uint64, owner common.Address, entries []RoundHistoryEntry) bool {
	history := make(map[uint64]RoundHistoryEntry, len(entries))
	for _, e := range entries {
		history[e.RoundID] = e
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.historyGen != gen {
		return false
	}
	c.history = history
	c.historyOwner = owner
	return true
}

// cachedHistory returns owner's cached entries ordered by round, or nil when nothing is cached for owner
func (c *Client) cachedHistory(owner common.Address) []RoundHistoryEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.history == nil || c.historyOwner != owner {
		return nil
	}
	entries := make([]RoundHistoryEntry, 0, len(c.history))
	for _, e := range c.history {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b RoundHistoryEntry) int {
		return cmp.Compare(a.RoundID, b.RoundID)
	})
	return entries
}

// observe records a contract operation; deferred with a pointer to the named error result
func observe(method string, start time.Time, err *error) {
	metrics.ContractCalls.WithLabelValues(method, metrics.Outcome(*err)).Inc()
	metrics.ContractCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// fail keeps not-connected errors as they are and files everything else under code
func fail(err error, code wallet.Code, message string) error {
	if session.IsNotConnected(err) {
		return err
	}
	return wallet.NewError(code, message, err)
}

// call runs a read-only contract method and unpacks its outputs
func (c *Client) call(ctx context.Context, reader session.ChainReader, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	out, err := reader.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	values, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errMalformed, method, err)
	}
	return values, nil
}

// callInto runs a read-only contract method and unpacks its outputs into a struct
func (c *Client) callInto(ctx context.Context, reader session.ChainReader, contract common.Address, contractABI abi.ABI, out interface{}, method string, args ...interface{}) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := reader.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("%s call failed: %w", method, err)
	}
	if err := contractABI.UnpackIntoInterface(out, method, raw); err != nil {
		return fmt.Errorf("%w: %s: %v", errMalformed, method, err)
	}
	return nil
}

func (c *Client) callBig(ctx context.Context, reader session.ChainReader, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, reader, contract, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%w: %s returned %d values", errMalformed, method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", errMalformed, method, values[0])
	}
	return v, nil
}

// transact sends a transaction through the wallet and waits until it is mined.
// A reverted transaction is an error.
func (c *Client) transact(ctx context.Context, act session.Active, to common.Address, value *big.Int, data []byte) (*ethtypes.Receipt, error) {
	hash, err := act.Transport.SendTransaction(ctx, transport.TxRequest{
		From:  act.Address,
		To:    to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet rejected transaction: %w", err)
	}
	c.logger.Info("transaction sent", "hash", hash.Hex(), "to", to.Hex())

	receipt, err := c.waitMined(ctx, act.Reader, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("transaction %s reverted", hash.Hex())
	}
	return receipt, nil
}

func (c *Client) waitMined(ctx context.Context, reader session.ChainReader, hash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(c.cfg.ReceiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := reader.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
		}
		c.logger.Debug("transaction not yet mined", "hash", hash.Hex())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
