package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/game"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type connectOutput struct {
	Address      common.Address `json:"address"`
	ChainID      uint64         `json:"chainId"`
	Transport    string         `json:"transport"`
	Currency     string         `json:"nativeCurrency"`
	ReferralLink string         `json:"referralLink"`
}

func newConnectCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect a wallet and show the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(_ context.Context, a *app, address common.Address) error {
				snap := a.session.Snapshot()
				out := connectOutput{
					Address:      address,
					ChainID:      snap.ChainID,
					Transport:    string(snap.Transport),
					Currency:     a.session.NativeCurrency(),
					ReferralLink: game.ReferralLink(a.cfg.AppURL, address),
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), out)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", out.Address.Hex())
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "chain: %d (%s)\n", out.ChainID, out.Currency)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "transport: %s\n", out.Transport)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "referral link: %s\n", out.ReferralLink)
				return nil
			})
		},
	}
}
