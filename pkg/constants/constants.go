package constants

import "time"

const (
	ConnectionTimeout     = 15 * time.Second // timeout for a single transport attempt
	RPCRetryAttempts      = 3                // passes over the public RPC list
	RPCRetryDelay         = 1 * time.Second  // delay between passes over the public RPC list
	ProbeTimeout          = 5 * time.Second  // timeout for a single eth_blockNumber probe
	ChainListTimeout      = 15 * time.Second // timeout for the chainlist.org fetch
	ReceiptPollInterval   = 1 * time.Second  // interval between receipt lookups while a tx is pending
	GameStatePollInterval = 10 * time.Second // interval between game state polls
	CountdownInterval     = 1 * time.Second  // countdown tick
	DisconnectTimeout     = 5 * time.Second  // upper bound for transport teardown
	TLSHandshakeTimeout   = 10 * time.Second // timeout for TLS handshake
	ResponseHeaderTimeout = 20 * time.Second // timeout for response header
	ExpectContinueTimeout = 1 * time.Second  // timeout for expect continue
	MaxResponseBodySize   = 10 * 1024 * 1024 // maximum response body size in bytes (10MB)
)

const (
	RoundHistoryWindow   = 20 // rounds scanned below the current round
	RewardFeeNumerator   = 8  // rewards are shown after the 20% fee
	RewardFeeDenominator = 10
	EtherDecimals        = 18
)

// App metadata sent to wallets during remote pairing
const (
	AppName        = "Memespin"
	AppDescription = "Web3-enabled ELON PEPE DOGE game"
	AppURL         = "https://memespin.io"
	AppIcon        = AppURL + "/images/MEMESPIN-H1.png"
)

// Chain IDs
const (
	ChainPolygon     uint64 = 137
	ChainPolygonAmoy uint64 = 80002
	ChainBase        uint64 = 8453
	ChainBaseSepolia uint64 = 84532
)

const ChainListURL = "https://chainlist.org/rpcs.json"

// InfuraSubdomain maps chain IDs to the Infura network subdomain used for private endpoints
var InfuraSubdomain = map[uint64]string{
	ChainPolygon:     "polygon-mainnet",
	ChainPolygonAmoy: "polygon-amoy",
	ChainBase:        "base-mainnet",
	ChainBaseSepolia: "base-sepolia",
}
