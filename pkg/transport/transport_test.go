package transport_test

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/chains/evm"
	"github.com/sigweihq/memespin/pkg/transport"
	"github.com/sigweihq/memespin/pkg/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var player = common.HexToAddress("0x1111111111111111111111111111111111111111")

func dialInjected(t *testing.T, w *transporttest.Wallet) transport.Transport {
	t.Helper()
	d := transport.NewInjectedDialer("inproc", nil)
	d.DialRPC = w.DialRPC
	tr, err := d.Dial(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close(context.Background()) })
	return tr
}

func TestInjectedTransportRequests(t *testing.T) {
	w := transporttest.NewWallet(137, player)
	defer w.Close()
	tr := dialInjected(t, w)
	ctx := context.Background()

	assert.Equal(t, transport.KindInjected, tr.Kind())

	chainID, err := tr.ChainID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(137), chainID)

	accounts, err := tr.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{player}, accounts)

	accounts, err = tr.Accounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{player}, accounts)

	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	hash, err := tr.SendTransaction(ctx, transport.TxRequest{From: player, To: to, Value: big.NewInt(1000), Data: []byte{0xde, 0xad}})
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	sent := w.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, player, sent[0].From)
	assert.Equal(t, to, sent[0].To)
	assert.Equal(t, big.NewInt(1000), sent[0].Value.ToInt())
	assert.Equal(t, hexutil.Bytes{0xde, 0xad}, sent[0].Data)
}

func TestTxRequestArgsOmitsZeroValue(t *testing.T) {
	args := transport.TxRequest{Value: big.NewInt(0)}.Args()
	assert.Nil(t, args.Value)

	args = transport.TxRequest{}.Args()
	assert.Nil(t, args.Value)
}

func TestInjectedTransportSwitchesThroughSwitcher(t *testing.T) {
	w := transporttest.NewWallet(80002, player)
	defer w.Close()
	tr := dialInjected(t, w)

	registry := chains.DefaultRegistry("")
	err := evm.NewSwitcher(registry, nil).SwitchTo(context.Background(), tr, 137)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"wallet_switchEthereumChain",
		"wallet_addEthereumChain",
		"wallet_switchEthereumChain",
	}, w.Calls())
	added := w.Added()
	require.Len(t, added, 1)
	assert.Equal(t, "0x89", added[0].ChainID)
	assert.Equal(t, "Polygon", added[0].ChainName)
	assert.Equal(t, "POL", added[0].NativeCurrency.Symbol)

	chainID, err := tr.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(137), chainID)
}

func TestInjectedTransportNotifications(t *testing.T) {
	w := transporttest.NewWallet(137, player)
	defer w.Close()
	tr := dialInjected(t, w)

	require.Eventually(t, func() bool { return w.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	other := common.HexToAddress("0x3333333333333333333333333333333333333333")
	w.Emit(transport.Notification{Event: transport.EventAccountsChanged, Accounts: []common.Address{other}})

	select {
	case n := <-tr.Notifications():
		assert.Equal(t, transport.EventAccountsChanged, n.Event)
		assert.Equal(t, []common.Address{other}, n.Accounts)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestTransportCloseEndsNotifications(t *testing.T) {
	w := transporttest.NewWallet(137, player)
	defer w.Close()
	tr := dialInjected(t, w)

	require.NoError(t, tr.Close(context.Background()))
	require.NoError(t, tr.Close(context.Background()), "close is idempotent")

	select {
	case _, ok := <-tr.Notifications():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("notifications channel not closed")
	}
}

func TestPairingDialer(t *testing.T) {
	w := transporttest.NewWallet(137, player)
	defer w.Close()
	store := transport.NewSessionStore(filepath.Join(t.TempDir(), "session.toml"))
	require.NoError(t, store.Save(transport.PairingSession{Topic: "stale"}))

	var uri string
	d := &transport.PairingDialer{
		URL:       "wss://relay.example",
		ProjectID: "project-1",
		ChainIDs:  []uint64{137},
		RPCMap:    map[uint64]string{137: "https://polygon-rpc.com"},
		Metadata:  transport.Metadata{Name: "Memespin", URL: "https://memespin.io"},
		Store:     store,
		DialRPC:   w.DialRPC,
		OnURI:     func(u string) { uri = u },
	}

	tr, err := d.Dial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, transport.KindPairing, tr.Kind())
	assert.Equal(t, "wc:topic-1@2?relay-protocol=irn", uri)

	proposals := w.Proposals()
	require.Len(t, proposals, 1)
	p := proposals[0]
	assert.Equal(t, "project-1", p.ProjectID)
	assert.Equal(t, []string{"eip155:137"}, p.Chains)
	assert.Equal(t, map[string]string{"137": "https://polygon-rpc.com"}, p.RPCMap)
	assert.Equal(t, "Memespin", p.Metadata.Name)
	assert.Len(t, p.ID, 36, "request id is a uuid")

	session, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "topic-1", session.Topic)
	assert.Equal(t, []uint64{137}, session.ChainIDs)

	require.NoError(t, tr.Close(context.Background()))
	assert.Equal(t, []string{"topic-1"}, w.Deleted())

	session, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, session, "close clears the persisted session")
}

func TestPairingDialerRequiresProjectID(t *testing.T) {
	d := &transport.PairingDialer{URL: "wss://relay.example"}
	_, err := d.Dial(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project id")
}

func TestSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.toml")
	store := transport.NewSessionStore(path)

	session, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, session)
	require.NoError(t, store.Clear(), "clearing an empty store")

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, store.Save(transport.PairingSession{
		Topic:     "abc",
		RelayURL:  "wss://relay.example",
		ChainIDs:  []uint64{137, 80002},
		CreatedAt: created,
	}))

	session, err = store.Load()
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "abc", session.Topic)
	assert.Equal(t, []uint64{137, 80002}, session.ChainIDs)
	assert.True(t, created.Equal(session.CreatedAt))

	require.NoError(t, store.Clear())
	session, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, session)

	var nilStore *transport.SessionStore
	require.NoError(t, nilStore.Save(transport.PairingSession{Topic: "x"}))
	require.NoError(t, nilStore.Clear())
	session, err = nilStore.Load()
	require.NoError(t, err)
	assert.Nil(t, session)
}
