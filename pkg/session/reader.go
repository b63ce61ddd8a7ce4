package session

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/memespin/pkg/chains/evm"
	"github.com/sigweihq/memespin/pkg/transport"
)

// ChainReader is the read connection established before the wallet confirms
type ChainReader interface {
	ethereum.ContractCaller
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// ConnectFunc opens a read connection to chainID
type ConnectFunc func(ctx context.Context, chainID uint64, retries int) (ChainReader, error)

// ChainSwitcher moves a wallet to a chain
type ChainSwitcher interface {
	SwitchTo(ctx context.Context, w evm.ChainRequester, chainID uint64) error
}

var (
	_ ChainReader   = (*evm.Reader)(nil)
	_ ChainSwitcher = (*evm.Switcher)(nil)

	_ evm.ChainRequester = (transport.Transport)(nil)
)

// EVMConnector adapts an evm.Connector to a ConnectFunc
func EVMConnector(c *evm.Connector) ConnectFunc {
	return func(ctx context.Context, chainID uint64, retries int) (ChainReader, error) {
		reader, err := c.Connect(ctx, chainID, retries)
		if err != nil {
			return nil, err
		}
		return reader, nil
	}
}
