// Package cmd is the memespin command line: it wires config, chain access, the wallet session and
// the game client, then runs one game operation per command.
package cmd

import (
	"context"

	"github.com/sigweihq/memespin/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the CLI until ctx is done
func Execute(ctx context.Context) error {
	return newRootCmd(overrides{}).ExecuteContext(ctx)
}

type globalOptions struct {
	configFile string
	json       bool
}

func newRootCmd(o overrides) *cobra.Command {
	v := config.New()
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "memespin",
		Short:         "Play Memespin (ELON, PEPE, DOGE) from the terminal",
		Long:          "memespin connects a wallet (in-page style endpoint first, remote pairing second), moves it to the game's chain and plays, claims and mints through the Memespin contracts.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.configFile != "" {
				v.SetConfigFile(opts.configFile)
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default $HOME/.config/memespin/memespin.toml)")
	flags.BoolVar(&opts.json, "json", false, "print JSON")
	flags.Uint64("chain-id", 0, "target chain id")
	flags.String("injected-url", "", "in-page wallet JSON-RPC endpoint")
	flags.String("pairing-url", "", "remote pairing bridge endpoint")
	flags.Int("rpc-retries", 0, "RPC fallback passes")
	flags.Duration("connect-timeout", 0, "per-transport connection timeout")
	flags.String("log-level", config.DefaultLogLvl, "log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFmt, "log format (text, json)")
	bindFlags(v, rootCmd, map[string]string{
		config.KeyChainID:        "chain-id",
		config.KeyInjectedURL:    "injected-url",
		config.KeyPairingURL:     "pairing-url",
		config.KeyRPCRetries:     "rpc-retries",
		config.KeyConnectTimeout: "connect-timeout",
		config.KeyLogLevel:       "log-level",
		config.KeyLogFormat:      "log-format",
	})

	rootCmd.AddCommand(
		newChainsCmd(v, opts),
		newConnectCmd(v, opts, o),
		newStateCmd(v, opts, o),
		newHistoryCmd(v, opts, o),
		newPlayCmd(v, opts, o),
		newEndRoundCmd(v, opts, o),
		newClaimCmd(v, opts, o),
		newNFTCmd(v, opts, o),
		newWatchCmd(v, opts, o),
	)

	return rootCmd
}

// bindFlags binds flags to config keys; a flag only wins when it was set
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, name := range keys {
		flag := cmd.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = cmd.Flags().Lookup(name)
		}
		_ = v.BindPFlag(key, flag)
	}
}
