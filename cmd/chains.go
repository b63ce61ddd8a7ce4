package cmd

import (
	"fmt"

	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newChainsCmd(v *viper.Viper, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported chains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry := chains.DefaultRegistry(v.GetString(config.KeyInfuraID))
			configs := make([]chains.ChainConfig, 0)
			for _, id := range registry.SupportedChainIDs() {
				cfg, err := registry.Get(id)
				if err != nil {
					return err
				}
				configs = append(configs, cfg)
			}

			if opts.json {
				return writeJSON(cmd.OutOrStdout(), configs)
			}
			for _, cfg := range configs {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\t%d rpc endpoints\n",
					cfg.ChainID, cfg.Name, cfg.NativeCurrency.Symbol, len(cfg.RPCURLs)+len(cfg.PrivateRPCURLs))
			}
			return nil
		},
	}
}
