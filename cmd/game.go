package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/memespin/pkg/game"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type txOutput struct {
	Hash   common.Hash `json:"hash"`
	Block  uint64      `json:"block"`
	Rounds []uint64    `json:"rounds,omitempty"`
	Amount string      `json:"amount,omitempty"`
}

func receiptOutput(r *ethtypes.Receipt) txOutput {
	out := txOutput{Hash: r.TxHash}
	if r.BlockNumber != nil {
		out.Block = r.BlockNumber.Uint64()
	}
	return out
}

func writeTx(cmd *cobra.Command, opts *globalOptions, verb string, out txOutput) error {
	if opts.json {
		return writeJSON(cmd.OutOrStdout(), out)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", verb, out.Hash.Hex())
	return nil
}

func newStateCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Show the current round and your position in it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(ctx context.Context, a *app, address common.Address) error {
				state, err := a.game.FetchGameState(ctx, address)
				if err != nil {
					return err
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), state)
				}
				writeState(cmd.OutOrStdout(), state, remaining(state, time.Now()))
				return nil
			})
		},
	}
}

func remaining(state *game.GameState, now time.Time) time.Duration {
	left := time.Unix(state.EndTime, 0).Sub(now)
	if state.EndTime == 0 || left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}

func newHistoryCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the rounds you played recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(ctx context.Context, a *app, address common.Address) error {
				state, err := a.game.FetchGameState(ctx, address)
				if err != nil {
					return err
				}
				entries := state.RoundHistory
				if refresh {
					if entries, err = a.game.FetchRoundHistory(ctx, address, state.CurrentRoundID, true); err != nil {
						return err
					}
				}
				if opts.json {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				writeHistory(cmd.OutOrStdout(), entries, state.NativeCurrency)
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pending rewards: %s %s\n",
					game.FormatEther(game.PendingRewards(entries)), state.NativeCurrency)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "rescan instead of using the cached history")

	return cmd
}

func newPlayCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	var referrer string

	cmd := &cobra.Command{
		Use:   "play <ELON|PEPE|DOGE>",
		Short: "Bet on a faction in the current round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			choice, err := game.ParseChoice(args[0])
			if err != nil {
				return err
			}
			if addr, ok := game.ReferrerFromURL(referrer); ok {
				referrer = addr.Hex()
			}
			return withSession(cmd, v, o, func(ctx context.Context, a *app, _ common.Address) error {
				receipt, err := a.game.PlayRound(ctx, choice, referrer)
				if err != nil {
					return err
				}
				return writeTx(cmd, opts, "played "+choice.String(), receiptOutput(receipt))
			})
		},
	}

	cmd.Flags().StringVar(&referrer, "referrer", "", "referrer address (or a link with ?r=)")

	return cmd
}

func newEndRoundCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "end-round",
		Short: "Trigger the round transition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(ctx context.Context, a *app, _ common.Address) error {
				receipt, err := a.game.EndRound(ctx)
				if err != nil {
					return err
				}
				return writeTx(cmd, opts, "round ended", receiptOutput(receipt))
			})
		},
	}
}

func newClaimCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim every claimable reward",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(ctx context.Context, a *app, _ common.Address) error {
				result, err := a.game.ClaimRewards(ctx)
				if err != nil {
					return err
				}
				out := receiptOutput(result.Receipt)
				out.Rounds, out.Amount = result.Rounds, result.Amount
				return writeTx(cmd, opts, fmt.Sprintf("claimed %s %s from rounds %v", result.Amount, a.session.NativeCurrency(), result.Rounds), out)
			})
		},
	}
}
