// Package transport reaches a user's wallet. Two kinds exist: an in-page (injected) wallet and a
// remote pairing bridge. Both speak EIP-1193 style JSON-RPC through a go-ethereum rpc.Client.
package transport

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/memespin/pkg/chains"
)

// Kind identifies a transport variant
type Kind string

const (
	KindInjected Kind = "injected"
	KindPairing  Kind = "walletconnect"
)

// Notification event names
const (
	EventAccountsChanged = "accountsChanged"
	EventChainChanged    = "chainChanged"
	EventDisconnect      = "disconnect"
)

// Notification is a wallet-originated signal
type Notification struct {
	Event    string           `json:"event"`
	Accounts []common.Address `json:"accounts,omitempty"`
	ChainID  hexutil.Uint64   `json:"chainId,omitempty"`
}

// TxRequest is an eth_sendTransaction request signed by the wallet
type TxRequest struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// TxArgs is the wire form of TxRequest
type TxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value,omitempty"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
}

// Args converts the request to its wire form
func (r TxRequest) Args() TxArgs {
	args := TxArgs{From: r.From, To: r.To, Data: r.Data}
	if r.Value != nil && r.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(new(big.Int).Set(r.Value))
	}
	return args
}

// Transport is a live connection to a wallet
type Transport interface {
	Kind() Kind
	ChainID(ctx context.Context) (uint64, error)
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params chains.AddChainParams) error
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
	// Notifications is closed once the transport is closed or its connection drops
	Notifications() <-chan Notification
	Close(ctx context.Context) error
}

// Dialer opens a transport
type Dialer interface {
	Kind() Kind
	Dial(ctx context.Context) (Transport, error)
}

// RPCDialFunc opens the underlying JSON-RPC client
type RPCDialFunc func(ctx context.Context, url string) (*rpc.Client, error)

// rpcTransport implements Transport over a go-ethereum rpc.Client
type rpcTransport struct {
	kind          Kind
	client        *rpc.Client
	logger        *slog.Logger
	notifications chan Notification
	done          chan struct{}
	closeOnce     sync.Once
	sub           *rpc.ClientSubscription
	onClose       func(ctx context.Context) error
}

func newRPCTransport(kind Kind, client *rpc.Client, logger *slog.Logger) *rpcTransport {
	return &rpcTransport{
		kind:          kind,
		client:        client,
		logger:        logger,
		notifications: make(chan Notification, 16),
		done:          make(chan struct{}),
	}
}

// subscribe starts forwarding wallet notifications. Connections without notification
// support (plain HTTP) still work; the transport then only reports its own close.
func (t *rpcTransport) subscribe(ctx context.Context, namespace string, args ...interface{}) {
	raw := make(chan Notification)
	sub, err := t.client.Subscribe(ctx, namespace, raw, args...)
	if err != nil {
		t.logger.Warn("wallet notifications unavailable", "transport", t.kind, "error", err)
		go t.forward(nil, nil)
		return
	}
	t.sub = sub
	go t.forward(raw, sub.Err())
}

func (t *rpcTransport) forward(raw <-chan Notification, subErr <-chan error) {
	defer close(t.notifications)
	for {
		select {
		case <-t.done:
			return
		case n := <-raw:
			select {
			case t.notifications <- n:
			case <-t.done:
				return
			}
		case err := <-subErr:
			select {
			case <-t.done:
				return
			default:
			}
			t.logger.Warn("wallet connection dropped", "transport", t.kind, "error", err)
			select {
			case t.notifications <- Notification{Event: EventDisconnect}:
			case <-t.done:
			}
			return
		}
	}
}

func (t *rpcTransport) Kind() Kind { return t.kind }

func (t *rpcTransport) ChainID(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := t.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

func (t *rpcTransport) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := t.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	return accounts, err
}

func (t *rpcTransport) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := t.client.CallContext(ctx, &accounts, "eth_accounts")
	return accounts, err
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (t *rpcTransport) SwitchChain(ctx context.Context, chainID uint64) error {
	return t.client.CallContext(ctx, nil, "wallet_switchEthereumChain",
		switchChainParams{ChainID: hexutil.EncodeUint64(chainID)})
}

func (t *rpcTransport) AddChain(ctx context.Context, params chains.AddChainParams) error {
	return t.client.CallContext(ctx, nil, "wallet_addEthereumChain", params)
}

func (t *rpcTransport) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	var hash common.Hash
	err := t.client.CallContext(ctx, &hash, "eth_sendTransaction", tx.Args())
	return hash, err
}

func (t *rpcTransport) Notifications() <-chan Notification {
	return t.notifications
}

// Close runs the transport's teardown hook, stops forwarding and closes the connection.
// Only the first call has any effect.
func (t *rpcTransport) Close(ctx context.Context) error {
	var err error
	t.closeOnce.Do(func() {
		if t.onClose != nil {
			err = t.onClose(ctx)
		}
		close(t.done)
		if t.sub != nil {
			t.sub.Unsubscribe()
		}
		t.client.Close()
	})
	return err
}
