package game

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/session"
	"github.com/sigweihq/memespin/pkg/transport"
	"github.com/sigweihq/memespin/pkg/wallet"
	"github.com/stretchr/testify/require"
)

var (
	gameAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	nftAddr  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	player   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	dev1     = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	referrer = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func eth(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether)) }

// milliEth returns n/1000 ether
func milliEth(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.Ether/1000)) }

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// fakeChain answers game and NFT contract calls from in-memory state
type fakeChain struct {
	t       *testing.T
	gameABI abi.ABI
	nftABI  abi.ABI

	mu              sync.Mutex
	currentRound    uint64
	playCost        *big.Int
	info            contractInfo
	rounds          map[uint64]roundInfo
	players         map[uint64]playerInfo
	accounts        map[common.Address]map[uint64]playerInfo // rounds of addresses other than player
	nftBalance      *big.Int
	mintCost        *big.Int
	calls           map[string]int
	pendingReceipts int
	receiptStatus   uint64
	callErr         error
	// hold runs before every call when set; tests use it to pause a scan
	hold func()
}

func newFakeChain(t *testing.T) *fakeChain {
	t.Helper()
	gameABI, err := loadABI("abi/memespin.json")
	require.NoError(t, err)
	nftABI, err := loadABI("abi/nft.json")
	require.NoError(t, err)
	return &fakeChain{
		t:            t,
		gameABI:      gameABI,
		nftABI:       nftABI,
		currentRound: 1,
		playCost:     milliEth(10),
		info: contractInfo{
			PlayCost:           milliEth(10),
			RoundDuration:      big.NewInt(300),
			MaxPlayersPerRound: big.NewInt(100),
			Dev1:               dev1,
		},
		rounds:        map[uint64]roundInfo{},
		players:       map[uint64]playerInfo{},
		accounts:      map[common.Address]map[uint64]playerInfo{},
		nftBalance:    new(big.Int),
		mintCost:      milliEth(50),
		calls:         map[string]int{},
		receiptStatus: ethtypes.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) setPlayer(round uint64, info playerInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players[round] = info
}

func (f *fakeChain) setAccountPlayer(address common.Address, round uint64, info playerInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accounts[address] == nil {
		f.accounts[address] = map[uint64]playerInfo{}
	}
	f.accounts[address][round] = info
}

func (f *fakeChain) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeChain) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.hold != nil {
		f.hold()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}

	contractABI := f.gameABI
	if msg.To != nil && *msg.To == nftAddr {
		contractABI = f.nftABI
	}
	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	f.calls[method.Name]++

	switch method.Name {
	case "currentRoundId":
		return method.Outputs.Pack(new(big.Int).SetUint64(f.currentRound))
	case "playCost":
		return method.Outputs.Pack(f.playCost)
	case "getContractInfo":
		return method.Outputs.Pack(f.info.PlayCost, f.info.RoundDuration, f.info.MaxPlayersPerRound, f.info.Dev1)
	case "getRoundInfo":
		r := f.rounds[args[0].(*big.Int).Uint64()]
		return method.Outputs.Pack(orZero(r.TotalPlayers), orZero(r.TotalPool), orZero(r.RockCount),
			orZero(r.PaperCount), orZero(r.ScissorsCount), orZero(r.OfficialChoice), r.Status, orZero(r.EndTime))
	case "getPlayerInfo":
		round := args[0].(*big.Int).Uint64()
		p := f.players[round]
		if addr := args[1].(common.Address); addr != player {
			p = f.accounts[addr][round]
		}
		return method.Outputs.Pack(p.PlayerChoice, p.Result, orZero(p.Reward), p.HasPlayed, p.HasClaimed)
	case "balanceOf":
		return method.Outputs.Pack(f.nftBalance)
	case "mintCost":
		return method.Outputs.Pack(f.mintCost)
	}
	return nil, fmt.Errorf("unexpected call %s", method.Name)
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pendingReceipts > 0 {
		f.pendingReceipts--
		return nil, ethereum.NotFound
	}
	return &ethtypes.Receipt{Status: f.receiptStatus, TxHash: hash}, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return 1, nil }
func (f *fakeChain) Close()                                      {}

// fakeTransport records the transactions the wallet is asked to send
type fakeTransport struct {
	mu      sync.Mutex
	sent    []transport.TxRequest
	sendErr error
	onSend  func(transport.TxRequest)
}

func (t *fakeTransport) Kind() transport.Kind                         { return transport.KindInjected }
func (t *fakeTransport) ChainID(context.Context) (uint64, error)      { return 137, nil }
func (t *fakeTransport) SwitchChain(context.Context, uint64) error    { return nil }
func (t *fakeTransport) Notifications() <-chan transport.Notification { return nil }
func (t *fakeTransport) Close(context.Context) error                  { return nil }

func (t *fakeTransport) RequestAccounts(context.Context) ([]common.Address, error) {
	return []common.Address{player}, nil
}

func (t *fakeTransport) Accounts(context.Context) ([]common.Address, error) {
	return []common.Address{player}, nil
}

func (t *fakeTransport) AddChain(context.Context, chains.AddChainParams) error { return nil }

func (t *fakeTransport) SendTransaction(_ context.Context, tx transport.TxRequest) (common.Hash, error) {
	t.mu.Lock()
	if t.sendErr != nil {
		t.mu.Unlock()
		return common.Hash{}, t.sendErr
	}
	t.sent = append(t.sent, tx)
	n := len(t.sent)
	onSend := t.onSend
	t.mu.Unlock()

	if onSend != nil {
		onSend(tx)
	}
	return common.BigToHash(big.NewInt(int64(n))), nil
}

func (t *fakeTransport) Sent() []transport.TxRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]transport.TxRequest(nil), t.sent...)
}

// fakeSession hands out a fixed connection
type fakeSession struct {
	mu          sync.Mutex
	active      session.Active
	connected   bool
	invalidated int
	listeners   []func(session.Event)
}

func (s *fakeSession) Active() (session.Active, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return session.Active{}, wallet.NewError(wallet.CodeNotConnected, "wallet not connected", nil)
	}
	return s.active, nil
}

func (s *fakeSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
}

func (s *fakeSession) Subscribe(fn func(session.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
	return func() {}
}

func (s *fakeSession) switchAccount(address common.Address) {
	s.mu.Lock()
	s.active.Address = address
	s.mu.Unlock()
	s.emit(session.AccountsChanged{Address: address})
}

func (s *fakeSession) NativeCurrency() string { return "POL" }

func (s *fakeSession) emit(e session.Event) {
	s.mu.Lock()
	listeners := append([]func(session.Event){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

type fixture struct {
	chain   *fakeChain
	wallet  *fakeTransport
	session *fakeSession
	client  *Client
}

func newFixture(t *testing.T, configure func(*Config)) *fixture {
	t.Helper()
	f := &fixture{
		chain:  newFakeChain(t),
		wallet: &fakeTransport{},
	}
	f.session = &fakeSession{
		connected: true,
		active: session.Active{
			Address:   player,
			ChainID:   137,
			Reader:    f.chain,
			Transport: f.wallet,
		},
	}
	cfg := Config{
		Contract:            gameAddr,
		NFTContract:         nftAddr,
		ReceiptPollInterval: 1,
	}
	if configure != nil {
		configure(&cfg)
	}
	client, err := NewClient(f.session, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	f.client = client
	return f
}
