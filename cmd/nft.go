package cmd

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/game"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newNFTCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nft",
		Short: "Check or mint the Memespin NFT",
	}

	cmd.AddCommand(
		newNFTCheckCmd(v, opts, o),
		newNFTMintCmd(v, opts, o),
	)

	return cmd
}

func newNFTCheckCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "check [address]",
		Short: "Report whether an address holds the NFT (the connected wallet by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var target common.Address
			if len(args) == 1 {
				if !game.ValidReferrer(args[0]) {
					return fmt.Errorf("%q is not a 0x-prefixed address", args[0])
				}
				target = common.HexToAddress(args[0])
			}
			return withSession(cmd, v, o, func(ctx context.Context, a *app, address common.Address) error {
				if target == (common.Address{}) {
					target = address
				}
				owns, err := a.game.CheckNFTOwnership(ctx, target)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), map[string]any{"address": target, "owner": owns})
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s owns NFT: %t\n", target.Hex(), owns)
				return nil
			})
		},
	}
}

func newNFTMintCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "mint",
		Short: "Mint one NFT at the current mint cost",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(ctx context.Context, a *app, _ common.Address) error {
				receipt, err := a.game.MintNFT(ctx)
				if err != nil {
					return err
				}
				return writeTx(cmd, opts, "minted", receiptOutput(receipt))
			})
		},
	}
}
