// Package config resolves runtime settings from flags, MEMESPIN_* environment variables and an
// optional memespin.toml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/game"
	"github.com/sigweihq/memespin/pkg/utils"
	"github.com/spf13/viper"
)

const (
	EnvPrefix      = "MEMESPIN"
	configName     = "memespin"
	configType     = "toml"
	configDirName  = "memespin"
	pairingFile    = "pairing.toml"
	DefaultLogFmt  = "text"
	DefaultLogLvl  = "info"
	defaultRetries = constants.RPCRetryAttempts
)

// Keys
const (
	KeyChainID            = "chain_id"
	KeyContract           = "contract_address"
	KeyNFTContract        = "nft_contract_address"
	KeyProjectID          = "walletconnect_project_id"
	KeyInfuraID           = "infura_id"
	KeyInjectedURL        = "injected_url"
	KeyPairingURL         = "pairing_url"
	KeyPairingSessionFile = "pairing_session_file"
	KeyDefaultReferrer    = "default_referrer"
	KeyRPCRetries         = "rpc_retries"
	KeyConnectTimeout     = "connect_timeout"
	KeyPollInterval       = "poll_interval"
	KeyChainlistDiscovery = "chainlist_discovery"
	KeyMetricsAddr        = "metrics_addr"
	KeyAppURL             = "app_url"
	KeyLogLevel           = "log_level"
	KeyLogFormat          = "log_format"
)

// Config is the resolved runtime configuration
type Config struct {
	ChainID            uint64
	Contract           common.Address
	NFTContract        common.Address
	ProjectID          string
	InfuraID           string
	InjectedURL        string // empty means no in-page wallet
	PairingURL         string
	PairingSessionFile string
	DefaultReferrer    common.Address
	RPCRetries         int
	ConnectTimeout     time.Duration
	PollInterval       time.Duration
	ChainlistDiscovery bool
	MetricsAddr        string
	AppURL             string
	LogLevel           string
	LogFormat          string
}

// New returns a viper instance with the memespin defaults, env binding and search paths
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyRPCRetries, defaultRetries)
	v.SetDefault(KeyConnectTimeout, constants.ConnectionTimeout)
	v.SetDefault(KeyPollInterval, constants.GameStatePollInterval)
	v.SetDefault(KeyChainlistDiscovery, false)
	v.SetDefault(KeyAppURL, constants.AppURL)
	v.SetDefault(KeyLogLevel, DefaultLogLvl)
	v.SetDefault(KeyLogFormat, DefaultLogFmt)
	for _, key := range []string{
		KeyChainID, KeyContract, KeyNFTContract, KeyProjectID, KeyInfuraID, KeyInjectedURL,
		KeyPairingURL, KeyPairingSessionFile, KeyDefaultReferrer, KeyMetricsAddr,
	} {
		v.SetDefault(key, "")
	}

	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if dir, err := defaultDir(); err == nil {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	return v
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", configDirName), nil
}

// Load reads the config file, if any, and validates the result. A missing file in the search
// paths is fine; a missing explicit file is not.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = New()
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{
		ProjectID:          strings.TrimSpace(v.GetString(KeyProjectID)),
		InfuraID:           strings.TrimSpace(v.GetString(KeyInfuraID)),
		InjectedURL:        strings.TrimSpace(v.GetString(KeyInjectedURL)),
		PairingURL:         strings.TrimSpace(v.GetString(KeyPairingURL)),
		PairingSessionFile: strings.TrimSpace(v.GetString(KeyPairingSessionFile)),
		RPCRetries:         v.GetInt(KeyRPCRetries),
		ConnectTimeout:     v.GetDuration(KeyConnectTimeout),
		PollInterval:       v.GetDuration(KeyPollInterval),
		ChainlistDiscovery: v.GetBool(KeyChainlistDiscovery),
		MetricsAddr:        strings.TrimSpace(v.GetString(KeyMetricsAddr)),
		AppURL:             strings.TrimSpace(v.GetString(KeyAppURL)),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString(KeyLogLevel))),
		LogFormat:          strings.ToLower(strings.TrimSpace(v.GetString(KeyLogFormat))),
	}

	var errs []error
	if raw := strings.TrimSpace(v.GetString(KeyChainID)); raw == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyChainID))
	} else if cfg.ChainID = v.GetUint64(KeyChainID); cfg.ChainID == 0 {
		errs = append(errs, fmt.Errorf("%s %q is not a valid chain id", KeyChainID, raw))
	}

	var err error
	if cfg.Contract, err = requiredAddress(v, KeyContract); err != nil {
		errs = append(errs, err)
	}
	if cfg.NFTContract, err = requiredAddress(v, KeyNFTContract); err != nil {
		errs = append(errs, err)
	}
	if raw := strings.TrimSpace(v.GetString(KeyDefaultReferrer)); raw != "" {
		if !game.ValidReferrer(raw) {
			errs = append(errs, fmt.Errorf("%s %q is not a 0x-prefixed address", KeyDefaultReferrer, raw))
		} else {
			cfg.DefaultReferrer = common.HexToAddress(raw)
		}
	}

	for key, url := range map[string]string{KeyInjectedURL: cfg.InjectedURL, KeyPairingURL: cfg.PairingURL} {
		if url == "" {
			continue
		}
		if err := utils.ValidateEndpointURL(url); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}

	if cfg.RPCRetries < 0 {
		errs = append(errs, fmt.Errorf("%s must not be negative", KeyRPCRetries))
	}
	if cfg.ConnectTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyConnectTimeout))
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyPollInterval))
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("%s must be text or json, got %q", KeyLogFormat, cfg.LogFormat))
	}

	if cfg.PairingSessionFile == "" {
		dir, err := defaultDir()
		if err != nil {
			dir = "."
		}
		cfg.PairingSessionFile = filepath.Join(dir, pairingFile)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func requiredAddress(v *viper.Viper, key string) (common.Address, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return common.Address{}, fmt.Errorf("%s is required", key)
	}
	if !game.ValidReferrer(raw) {
		return common.Address{}, fmt.Errorf("%s %q is not a 0x-prefixed address", key, raw)
	}
	return common.HexToAddress(raw), nil
}
