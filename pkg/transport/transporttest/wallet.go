// Package transporttest provides an in-process wallet for tests, in the spirit of net/http/httptest.
package transporttest

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/transport"
)

// RPCError is a JSON-RPC error with a code, as wallets return them
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }

// Wallet is a scripted wallet served over an in-process JSON-RPC server.
// It answers both the injected (eth_, wallet_) and the pairing (wc_) method sets.
type Wallet struct {
	mu       sync.Mutex
	chainID  uint64
	accounts []common.Address
	known    map[uint64]bool
	calls    []string
	added    []chains.AddChainParams
	sent     []transport.TxArgs
	proposed []transport.Proposal
	deleted  []string
	subs     map[rpc.ID]chan transport.Notification

	// SwitchErr, AddErr and RequestAccountsErr force the matching request to fail
	SwitchErr          error
	AddErr             error
	RequestAccountsErr error
	// Hold blocks eth_requestAccounts until it is closed or the request is cancelled
	Hold chan struct{}

	server *rpc.Server
}

// NewWallet creates a wallet on chainID exposing accounts. Only chainID is known to it.
func NewWallet(chainID uint64, accounts ...common.Address) *Wallet {
	w := &Wallet{
		chainID:  chainID,
		accounts: accounts,
		known:    map[uint64]bool{chainID: true},
		subs:     make(map[rpc.ID]chan transport.Notification),
		server:   rpc.NewServer(),
	}
	mustRegister(w.server, "eth", &ethAPI{w})
	mustRegister(w.server, "wallet", &walletAPI{w})
	mustRegister(w.server, "wc", &pairingAPI{w})
	return w
}

func mustRegister(server *rpc.Server, name string, api interface{}) {
	if err := server.RegisterName(name, api); err != nil {
		panic(fmt.Sprintf("transporttest: register %s: %v", name, err))
	}
}

// DialRPC connects to the wallet in process; it matches transport.RPCDialFunc
func (w *Wallet) DialRPC(context.Context, string) (*rpc.Client, error) {
	return rpc.DialInProc(w.server), nil
}

// Close stops the server
func (w *Wallet) Close() { w.server.Stop() }

// Know makes chain ids switchable without an add
func (w *Wallet) Know(chainIDs ...uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, id := range chainIDs {
		w.known[id] = true
	}
}

// SetChainID changes the active chain silently, without notifying subscribers
func (w *Wallet) SetChainID(chainID uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = chainID
}

// SetAccounts changes the exposed accounts silently
func (w *Wallet) SetAccounts(accounts ...common.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = accounts
}

// Emit sends a notification to every subscriber
func (w *Wallet) Emit(n transport.Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

// Subscribers returns the number of live notification subscriptions
func (w *Wallet) Subscribers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subs)
}

// Calls returns the JSON-RPC methods served so far, in order
func (w *Wallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.calls)
}

// Added returns the add-chain requests received
func (w *Wallet) Added() []chains.AddChainParams {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.added)
}

// Sent returns the transactions received
func (w *Wallet) Sent() []transport.TxArgs {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.sent)
}

// Proposals returns the pairing proposals received
func (w *Wallet) Proposals() []transport.Proposal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.proposed)
}

// Deleted returns the pairing topics deleted
func (w *Wallet) Deleted() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.deleted)
}

func (w *Wallet) record(method string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, method)
}

func (w *Wallet) subscribe(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}
	sub := notifier.CreateSubscription()
	ch := make(chan transport.Notification, 16)

	w.mu.Lock()
	w.subs[sub.ID] = ch
	w.mu.Unlock()

	go func() {
		defer func() {
			w.mu.Lock()
			delete(w.subs, sub.ID)
			w.mu.Unlock()
		}()
		for {
			select {
			case n := <-ch:
				_ = notifier.Notify(sub.ID, n)
			case <-sub.Err():
				return
			}
		}
	}()
	return sub, nil
}

type ethAPI struct{ w *Wallet }

func (api *ethAPI) ChainId() hexutil.Uint64 {
	api.w.record("eth_chainId")
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return hexutil.Uint64(api.w.chainID)
}

func (api *ethAPI) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	api.w.record("eth_requestAccounts")
	if hold := api.w.Hold; hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if api.w.RequestAccountsErr != nil {
		return nil, api.w.RequestAccountsErr
	}
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return slices.Clone(api.w.accounts), nil
}

func (api *ethAPI) Accounts() []common.Address {
	api.w.record("eth_accounts")
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return slices.Clone(api.w.accounts)
}

func (api *ethAPI) SendTransaction(args transport.TxArgs) (common.Hash, error) {
	api.w.record("eth_sendTransaction")
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	api.w.sent = append(api.w.sent, args)
	return common.BigToHash(big.NewInt(int64(len(api.w.sent)))), nil
}

type walletAPI struct{ w *Wallet }

type switchParams struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}

func (api *walletAPI) SwitchEthereumChain(p switchParams) error {
	api.w.record("wallet_switchEthereumChain")
	if api.w.SwitchErr != nil {
		return api.w.SwitchErr
	}
	api.w.mu.Lock()
	if !api.w.known[uint64(p.ChainID)] {
		api.w.mu.Unlock()
		return &RPCError{Code: 4902, Message: "Unrecognized chain ID " + p.ChainID.String()}
	}
	changed := api.w.chainID != uint64(p.ChainID)
	api.w.chainID = uint64(p.ChainID)
	api.w.mu.Unlock()

	if changed {
		api.w.Emit(transport.Notification{Event: transport.EventChainChanged, ChainID: p.ChainID})
	}
	return nil
}

func (api *walletAPI) AddEthereumChain(p chains.AddChainParams) error {
	api.w.record("wallet_addEthereumChain")
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	api.w.added = append(api.w.added, p)
	if api.w.AddErr != nil {
		return api.w.AddErr
	}
	id, err := hexutil.DecodeUint64(p.ChainID)
	if err != nil {
		return &RPCError{Code: -32602, Message: "invalid chainId"}
	}
	api.w.known[id] = true
	return nil
}

func (api *walletAPI) Events(ctx context.Context) (*rpc.Subscription, error) {
	return api.w.subscribe(ctx)
}

type pairingAPI struct{ w *Wallet }

func (api *pairingAPI) SessionPropose(p transport.Proposal) (transport.ProposalResult, error) {
	api.w.record("wc_sessionPropose")
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	api.w.proposed = append(api.w.proposed, p)
	topic := fmt.Sprintf("topic-%d", len(api.w.proposed))
	return transport.ProposalResult{Topic: topic, URI: "wc:" + topic + "@2?relay-protocol=irn"}, nil
}

func (api *pairingAPI) SessionDelete(topic string) error {
	api.w.record("wc_sessionDelete")
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	api.w.deleted = append(api.w.deleted, topic)
	return nil
}

func (api *pairingAPI) SessionEvents(ctx context.Context, topic string) (*rpc.Subscription, error) {
	return api.w.subscribe(ctx)
}
