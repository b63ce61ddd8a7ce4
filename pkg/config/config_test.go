package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	gameHex = "0x00000000000000000000000000000000000000aa"
	nftHex  = "0x00000000000000000000000000000000000000bb"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memespin.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// isolate keeps the developer's own config and environment out of the test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
	for _, key := range []string{KeyChainID, KeyContract, KeyNFTContract, KeyInjectedURL, KeyPairingURL, KeyDefaultReferrer} {
		t.Setenv(EnvPrefix+"_"+strings.ToUpper(key), "")
	}
}

func TestLoadFromFile(t *testing.T) {
	isolate(t)
	v := New()
	v.SetConfigFile(writeConfig(t, `
chain_id = 137
contract_address = "`+gameHex+`"
nft_contract_address = "`+nftHex+`"
walletconnect_project_id = "proj"
injected_url = "ws://localhost:8546"
pairing_url = "wss://relay.example.com"
default_referrer = "0x2222222222222222222222222222222222222222"
rpc_retries = 5
connect_timeout = "20s"
chainlist_discovery = true
`))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(137), cfg.ChainID)
	assert.Equal(t, common.HexToAddress(gameHex), cfg.Contract)
	assert.Equal(t, common.HexToAddress(nftHex), cfg.NFTContract)
	assert.Equal(t, "proj", cfg.ProjectID)
	assert.Equal(t, "ws://localhost:8546", cfg.InjectedURL)
	assert.Equal(t, "wss://relay.example.com", cfg.PairingURL)
	assert.Equal(t, common.HexToAddress("0x2222222222222222222222222222222222222222"), cfg.DefaultReferrer)
	assert.Equal(t, 5, cfg.RPCRetries)
	assert.Equal(t, 20*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.PollInterval)
	assert.True(t, cfg.ChainlistDiscovery)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "pairing.toml", filepath.Base(cfg.PairingSessionFile))
}

func TestLoadFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("MEMESPIN_CHAIN_ID", "80002")
	t.Setenv("MEMESPIN_CONTRACT_ADDRESS", gameHex)
	t.Setenv("MEMESPIN_NFT_CONTRACT_ADDRESS", nftHex)
	t.Setenv("MEMESPIN_LOG_FORMAT", "JSON")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), cfg.ChainID)
	assert.Equal(t, 3, cfg.RPCRetries)
	assert.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.InjectedURL)
	assert.Equal(t, common.Address{}, cfg.DefaultReferrer)
}

func TestLoadFindsFileInConfigDir(t *testing.T) {
	isolate(t)
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	dir := filepath.Join(home, ".config", "memespin")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memespin.toml"), []byte(`
chain_id = 8453
contract_address = "`+gameHex+`"
nft_contract_address = "`+nftHex+`"
`), 0o600))

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, uint64(8453), cfg.ChainID)
	assert.Equal(t, filepath.Join(dir, "pairing.toml"), cfg.PairingSessionFile)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{
			name: "missing required",
			body: ``,
			want: []string{"chain_id is required", "contract_address is required", "nft_contract_address is required"},
		},
		{
			name: "malformed values",
			body: `
chain_id = "polygon"
contract_address = "0x1234"
nft_contract_address = "` + nftHex + `"
default_referrer = "nobody"
injected_url = "http://wallet.example.com"
rpc_retries = -1
log_format = "xml"
`,
			want: []string{"not a valid chain id", "contract_address \"0x1234\"", "default_referrer", "injected_url", "rpc_retries", "log_format"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			v := New()
			v.SetConfigFile(writeConfig(t, tt.body))

			_, err := Load(v)
			require.Error(t, err)
			for _, want := range tt.want {
				assert.ErrorContains(t, err, want)
			}
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolate(t)
	v := New()
	v.SetConfigFile(filepath.Join(t.TempDir(), "nope.toml"))

	_, err := Load(v)
	assert.ErrorContains(t, err, "read config")
}
