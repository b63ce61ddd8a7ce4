package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sigweihq/memespin/pkg/config"
	"github.com/sigweihq/memespin/pkg/game"
	"github.com/sigweihq/memespin/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCmd(v *viper.Viper, opts *globalOptions, o overrides) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll the game state until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, v, o, func(ctx context.Context, a *app, address common.Address) error {
				if a.cfg.MetricsAddr != "" {
					stop := serveMetrics(a, a.cfg.MetricsAddr)
					defer stop()
				}

				ctx, cancel := context.WithCancel(ctx)
				defer cancel()
				unsubscribe := a.session.Subscribe(func(e session.Event) {
					switch e := e.(type) {
					case session.AccountsChanged:
						a.logger.Info("account changed, restart watch to follow it", "address", e.Address.Hex())
						cancel()
					case session.Disconnected:
						a.logger.Warn("wallet disconnected")
						cancel()
					}
				})
				defer unsubscribe()

				w := game.NewWatcher(a.game, address, a.cfg.PollInterval, a.logger)
				w.OnUpdate(func(view game.View) {
					if view.State == nil {
						return
					}
					if opts.json {
						_ = writeJSON(cmd.OutOrStdout(), view.State)
						return
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "round %d (%s) players %d/%d pool %s %s ends in %s\n",
						view.State.CurrentRoundID, view.State.RoundStatus, view.State.PlayersInRound,
						view.State.MaxPlayers, view.State.PrizePool, view.State.NativeCurrency, view.TimeRemaining)
				})
				w.Run(ctx)
				return nil
			})
		},
	}

	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().Duration("poll-interval", 0, "game state poll interval")
	bindFlags(v, cmd, map[string]string{
		config.KeyMetricsAddr:  "metrics-addr",
		config.KeyPollInterval: "poll-interval",
	})

	return cmd
}

func serveMetrics(a *app, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
