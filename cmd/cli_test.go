package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/memespin/pkg/session"
	"github.com/sigweihq/memespin/pkg/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var player = common.HexToAddress("0x1111111111111111111111111111111111111111")

type stubReader struct{}

func (stubReader) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}

func (stubReader) TransactionReceipt(context.Context, common.Hash) (*ethtypes.Receipt, error) {
	return nil, ethereum.NotFound
}

func (stubReader) BlockNumber(context.Context) (uint64, error) { return 1, nil }
func (stubReader) Close()                                      {}

func stubConnect(context.Context, uint64, int) (session.ChainReader, error) {
	return stubReader{}, nil
}

func executeCLI(t *testing.T, o overrides, env map[string]string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	for _, key := range []string{"CHAIN_ID", "CONTRACT_ADDRESS", "NFT_CONTRACT_ADDRESS", "INJECTED_URL", "PAIRING_URL", "INFURA_ID"} {
		t.Setenv("MEMESPIN_"+key, "")
	}
	for key, value := range env {
		t.Setenv(key, value)
	}

	root := newRootCmd(o)
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func gameEnv(extra map[string]string) map[string]string {
	env := map[string]string{
		"MEMESPIN_CHAIN_ID":             "137",
		"MEMESPIN_CONTRACT_ADDRESS":     "0x00000000000000000000000000000000000000aa",
		"MEMESPIN_NFT_CONTRACT_ADDRESS": "0x00000000000000000000000000000000000000bb",
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}

func TestChainsListsRegistry(t *testing.T) {
	stdout, _, err := executeCLI(t, overrides{}, nil, "chains")
	require.NoError(t, err)
	assert.Contains(t, stdout, "137\tPolygon\tPOL")
	assert.Contains(t, stdout, "8453\tBase\tETH")
}

func TestChainsJSONOutput(t *testing.T) {
	stdout, _, err := executeCLI(t, overrides{}, nil, "chains", "--json")
	require.NoError(t, err)
	var out []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Len(t, out, 4)
}

func TestMissingConfigIsFatal(t *testing.T) {
	_, _, err := executeCLI(t, overrides{}, nil, "state")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain_id is required")
	assert.Contains(t, err.Error(), "contract_address is required")
}

func TestUnsupportedChain(t *testing.T) {
	_, _, err := executeCLI(t, overrides{}, gameEnv(nil), "state", "--chain-id", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain 1 is not supported")
}

func TestPlayRejectsUnknownChoice(t *testing.T) {
	_, _, err := executeCLI(t, overrides{}, gameEnv(nil), "play", "shib")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown choice")
}

func TestNoWalletConfigured(t *testing.T) {
	_, _, err := executeCLI(t, overrides{connect: stubConnect}, gameEnv(nil), "connect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-provider-found")
}

func TestConnectWithInjectedWallet(t *testing.T) {
	w := transporttest.NewWallet(137, player)
	t.Cleanup(w.Close)

	env := gameEnv(map[string]string{"MEMESPIN_INJECTED_URL": "ws://localhost:8546"})
	stdout, _, err := executeCLI(t, overrides{connect: stubConnect, dialRPC: w.DialRPC}, env, "connect")
	require.NoError(t, err)
	assert.Contains(t, stdout, "connected: "+player.Hex())
	assert.Contains(t, stdout, "chain: 137 (POL)")
	assert.Contains(t, stdout, "transport: injected")
	assert.Contains(t, stdout, "referral link: https://memespin.io/?r="+player.Hex())
	assert.Equal(t, []string{"eth_chainId", "eth_requestAccounts"}, w.Calls())
}

func TestConnectSwitchesWalletChain(t *testing.T) {
	w := transporttest.NewWallet(80002, player)
	w.Know(137)
	t.Cleanup(w.Close)

	env := gameEnv(map[string]string{"MEMESPIN_INJECTED_URL": "ws://localhost:8546"})
	stdout, _, err := executeCLI(t, overrides{connect: stubConnect, dialRPC: w.DialRPC}, env, "connect", "--json")
	require.NoError(t, err)

	var out connectOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, player, out.Address)
	assert.Equal(t, uint64(137), out.ChainID)
	assert.Equal(t, "injected", out.Transport)
	assert.Contains(t, w.Calls(), "wallet_switchEthereumChain")
}

func TestNewLogger(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, "debug", "json")
	require.NoError(t, err)
	_, err = newLogger(&bytes.Buffer{}, "loud", "text")
	assert.ErrorContains(t, err, "invalid log level")
}
