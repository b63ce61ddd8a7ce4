package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/chains/evm"
	"github.com/sigweihq/memespin/pkg/config"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/game"
	"github.com/sigweihq/memespin/pkg/session"
	"github.com/sigweihq/memespin/pkg/transport"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// overrides replace network-facing pieces in tests
type overrides struct {
	connect session.ConnectFunc
	dialRPC transport.RPCDialFunc
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *chains.Registry
	session  *session.Manager
	game     *game.Client
}

func wireApp(ctx context.Context, v *viper.Viper, errOut io.Writer, o overrides) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(errOut, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	registry := chains.DefaultRegistry(cfg.InfuraID)
	if !registry.IsSupported(cfg.ChainID) {
		return nil, fmt.Errorf("chain %d is not supported, want one of %v", cfg.ChainID, registry.SupportedChainIDs())
	}

	connect := o.connect
	if connect == nil {
		connect = session.EVMConnector(evm.InitConnector(ctx, registry, logger, cfg.ChainlistDiscovery))
	}

	store := transport.NewSessionStore(cfg.PairingSessionFile)
	var dialers []transport.Dialer
	if cfg.InjectedURL != "" {
		dialers = append(dialers, &transport.InjectedDialer{URL: cfg.InjectedURL, Logger: logger, DialRPC: o.dialRPC})
	}
	if cfg.PairingURL != "" {
		dialers = append(dialers, &transport.PairingDialer{
			URL:       cfg.PairingURL,
			ProjectID: cfg.ProjectID,
			ChainIDs:  []uint64{cfg.ChainID},
			RPCMap:    rpcMap(registry),
			Metadata: transport.Metadata{
				Name:        constants.AppName,
				Description: constants.AppDescription,
				URL:         constants.AppURL,
				Icons:       []string{constants.AppIcon},
			},
			Store:   store,
			Logger:  logger,
			DialRPC: o.dialRPC,
			OnURI: func(uri string) {
				_, _ = fmt.Fprintf(errOut, "Open this pairing URI in your wallet:\n%s\n", uri)
			},
		})
	}

	mgr := session.NewManager(session.Config{
		ChainID:    cfg.ChainID,
		Registry:   registry,
		Connect:    connect,
		Switcher:   evm.NewSwitcher(registry, logger),
		Dialers:    dialers,
		Store:      store,
		Timeout:    cfg.ConnectTimeout,
		RPCRetries: cfg.RPCRetries,
		Logger:     logger,
	})

	client, err := game.NewClient(mgr, game.Config{
		Contract:        cfg.Contract,
		NFTContract:     cfg.NFTContract,
		DefaultReferrer: cfg.DefaultReferrer,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("wire game client: %w", err)
	}

	return &app{cfg: cfg, logger: logger, registry: registry, session: mgr, game: client}, nil
}

// rpcMap offers the wallet one read endpoint per supported chain
func rpcMap(registry *chains.Registry) map[uint64]string {
	out := make(map[uint64]string)
	for _, id := range registry.SupportedChainIDs() {
		cfg, err := registry.Get(id)
		if err != nil {
			continue
		}
		if url, ok := cfg.PreferredRPCURL(); ok {
			out[id] = url
		} else if len(cfg.RPCURLs) > 0 {
			out[id] = cfg.RPCURLs[0]
		}
	}
	return out
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// withSession wires the app, connects the wallet and runs fn. The session is torn down afterwards.
func withSession(cmd *cobra.Command, v *viper.Viper, o overrides, fn func(ctx context.Context, a *app, address common.Address) error) error {
	ctx := cmd.Context()
	a, err := wireApp(ctx, v, cmd.ErrOrStderr(), o)
	if err != nil {
		return err
	}
	defer a.game.Close()
	defer a.session.Disconnect(context.WithoutCancel(ctx))

	if err := a.session.Connect(ctx); err != nil {
		return err
	}
	address, ok := a.session.Address()
	if !ok {
		return fmt.Errorf("wallet returned no address")
	}
	return fn(ctx, a, address)
}
