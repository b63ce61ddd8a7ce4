package chains

import (
	"slices"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// NativeCurrency describes the gas token of a chain
type NativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

// Explorer is a block explorer entry (EIP-3091)
type Explorer struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Standard string `json:"standard"`
}

// ChainConfig is the static description of a supported chain.
// Values handed out by the Registry are copies; callers never share slices with it.
type ChainConfig struct {
	ChainID           uint64
	Name              string
	Chain             string
	NetworkType       string // "mainnet" | "testnet"
	ShortName         string
	NativeCurrency    NativeCurrency
	RPCURLs           []string // public endpoints, also offered to wallets when adding the chain
	PrivateRPCURLs    []string // low-latency endpoints, never offered to wallets
	BlockExplorerURLs []string
	Explorers         []Explorer
}

// AddChainParams is the wallet_addEthereumChain request body (EIP-3085)
type AddChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

// ChainIDHex returns the chain id as a 0x-prefixed hex quantity
func (c ChainConfig) ChainIDHex() string {
	return hexutil.EncodeUint64(c.ChainID)
}

// AddChainParams builds the add-chain request. Only public RPCs are offered to the wallet.
func (c ChainConfig) AddChainParams() AddChainParams {
	return AddChainParams{
		ChainID:           c.ChainIDHex(),
		ChainName:         c.Name,
		NativeCurrency:    c.NativeCurrency,
		RPCURLs:           slices.Clone(c.RPCURLs),
		BlockExplorerURLs: slices.Clone(c.BlockExplorerURLs),
	}
}

// PreferredRPCURL returns the first private endpoint, if any
func (c ChainConfig) PreferredRPCURL() (string, bool) {
	if len(c.PrivateRPCURLs) == 0 {
		return "", false
	}
	return c.PrivateRPCURLs[0], true
}

func (c ChainConfig) clone() ChainConfig {
	c.RPCURLs = slices.Clone(c.RPCURLs)
	c.PrivateRPCURLs = slices.Clone(c.PrivateRPCURLs)
	c.BlockExplorerURLs = slices.Clone(c.BlockExplorerURLs)
	c.Explorers = slices.Clone(c.Explorers)
	return c
}
