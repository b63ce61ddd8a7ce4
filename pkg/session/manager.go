// Package session owns the wallet connection lifecycle. A process holds exactly one Manager,
// built by its composition root and passed to every consumer.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/chains"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/metrics"
	"github.com/sigweihq/memespin/pkg/transport"
	"github.com/sigweihq/memespin/pkg/wallet"
)

// State of the session
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config wires a Manager
type Config struct {
	ChainID  uint64
	Registry *chains.Registry
	Connect  ConnectFunc
	Switcher ChainSwitcher
	// Dialers are tried in order, in-page wallet first. Nil entries are skipped,
	// so an absent in-page wallet is a nil dialer.
	Dialers    []transport.Dialer
	Store      *transport.SessionStore
	Timeout    time.Duration
	RPCRetries int
	Logger     *slog.Logger
}

// Snapshot is a read projection of the session.
// Address and ChainID are either both set or both zero.
type Snapshot struct {
	State     State
	Address   common.Address
	ChainID   uint64
	Transport transport.Kind
	Err       error
}

// Connected reports whether the snapshot holds a live connection
func (s Snapshot) Connected() bool {
	return s.State == StateConnected && s.Address != (common.Address{})
}

// Active is what the game layer needs from a connected session
type Active struct {
	Address   common.Address
	ChainID   uint64
	Reader    ChainReader
	Transport transport.Transport
}

// Manager owns the one Session of the process
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	address     common.Address
	chainID     uint64
	transport   transport.Transport
	reader      ChainReader
	lastErr     error
	initialized bool
	generation  uint64

	listenersMu sync.Mutex
	listeners   []listener
	nextID      int
}

// NewManager creates a disconnected session manager
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.ConnectionTimeout
	}
	if cfg.RPCRetries <= 0 {
		cfg.RPCRetries = constants.RPCRetryAttempts
	}
	if cfg.Registry == nil {
		cfg.Registry = chains.DefaultRegistry("")
	}
	metrics.SessionState.Set(float64(StateDisconnected))
	return &Manager{cfg: cfg, logger: cfg.Logger}
}

// Subscribe registers fn for every event. Events are delivered synchronously, in registration
// order, on the goroutine that caused them. The returned func removes the listener.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			m.listenersMu.Lock()
			defer m.listenersMu.Unlock()
			for i, l := range m.listeners {
				if l.id == id {
					m.listeners = append(m.listeners[:i:i], m.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (m *Manager) emit(e Event) {
	m.listenersMu.Lock()
	listeners := make([]listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.listenersMu.Unlock()

	for _, l := range listeners {
		l.fn(e)
	}
}

// setState must be called with mu held
func (m *Manager) setState(s State) {
	m.state = s
	metrics.SessionState.Set(float64(s))
}

// Connect establishes the session. It succeeds without any transport work when the session is
// already connected and initialized. A call made while another is connecting fails with
// connect-in-progress. Transport failures only surface once every transport has failed.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnecting {
		m.mu.Unlock()
		return wallet.NewError(wallet.CodeConnectInProgress, "connection already in progress", nil)
	}
	if m.initialized && m.transport != nil && m.address != (common.Address{}) {
		m.mu.Unlock()
		return nil
	}
	staleTransport, staleReader := m.release()
	m.setState(StateConnecting)
	gen := m.generation
	m.mu.Unlock()

	m.closeResources(ctx, staleTransport, staleReader)
	if err := m.cfg.Store.Clear(); err != nil {
		m.logger.Warn("failed to clear pairing session", "error", err)
	}
	m.emit(Connecting{})

	var lastErr error
	tried := 0
	for _, d := range m.cfg.Dialers {
		if d == nil {
			continue
		}
		tried++
		res, err := m.attempt(ctx, d)
		if err == nil {
			return m.commit(ctx, gen, res)
		}
		lastErr = err
		m.logger.Warn("wallet transport failed", "transport", d.Kind(), "error", err)
		if ctx.Err() != nil {
			break
		}
	}
	if tried == 0 {
		lastErr = wallet.NewError(wallet.CodeNoProvider, "no wallet provider found", nil)
	}

	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return lastErr
	}
	m.setState(StateError)
	m.lastErr = lastErr
	m.mu.Unlock()

	m.emit(Failed{Err: lastErr})
	return lastErr
}

type attemptResult struct {
	kind      transport.Kind
	transport transport.Transport
	reader    ChainReader
	address   common.Address
	err       error
}

// attempt races one transport against the connection timeout. A result arriving after the
// timeout is closed and discarded.
func (m *Manager) attempt(ctx context.Context, d transport.Dialer) (*attemptResult, error) {
	kind := d.Kind()
	actx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan *attemptResult, 1)
	go func() {
		done <- m.establish(actx, d)
	}()

	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.err != nil {
			metrics.ConnectAttempts.WithLabelValues(string(kind), metrics.OutcomeFailure).Inc()
			return nil, wrapTransportError(kind, res.err)
		}
		metrics.ConnectAttempts.WithLabelValues(string(kind), metrics.OutcomeSuccess).Inc()
		return res, nil
	case <-timer.C:
		metrics.ConnectAttempts.WithLabelValues(string(kind), metrics.OutcomeTimeout).Inc()
		go func() {
			if late := <-done; late.err == nil {
				m.logger.Debug("discarding late transport result", "transport", kind)
				m.closeResources(context.Background(), late.transport, late.reader)
			}
		}()
		return nil, wallet.NewError(wallet.CodeConnectionTimeout,
			fmt.Sprintf("%s connection timed out after %s", kind, m.cfg.Timeout), nil)
	}
}

// establish opens the read connection, dials the wallet, moves it to the target chain
// and requests its accounts. Everything opened is closed again on failure.
func (m *Manager) establish(ctx context.Context, d transport.Dialer) *attemptResult {
	res := &attemptResult{kind: d.Kind()}
	fail := func(err error) *attemptResult {
		m.closeResources(ctx, res.transport, res.reader)
		return &attemptResult{kind: res.kind, err: err}
	}

	reader, err := m.cfg.Connect(ctx, m.cfg.ChainID, m.cfg.RPCRetries)
	if err != nil {
		return fail(err)
	}
	res.reader = reader

	tr, err := d.Dial(ctx)
	if err != nil {
		return fail(err)
	}
	res.transport = tr

	chainID, err := tr.ChainID(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to read wallet chain: %w", err))
	}
	if chainID != m.cfg.ChainID {
		m.logger.Info("wallet on another chain, switching", "wallet", chainID, "target", m.cfg.ChainID)
		if m.cfg.Switcher == nil {
			return fail(wallet.NewError(wallet.CodeChainSwitchFailed,
				fmt.Sprintf("wallet is on chain %d, want %d", chainID, m.cfg.ChainID), nil))
		}
		if err := m.cfg.Switcher.SwitchTo(ctx, tr, m.cfg.ChainID); err != nil {
			return fail(err)
		}
	}

	accounts, err := tr.RequestAccounts(ctx)
	if err != nil {
		return fail(fmt.Errorf("account request failed: %w", err))
	}
	if len(accounts) == 0 {
		return fail(wallet.NewError(wallet.CodeNoAccounts, "no accounts returned", nil))
	}
	res.address = accounts[0]
	return res
}

func wrapTransportError(kind transport.Kind, err error) error {
	if kind == transport.KindPairing {
		return wallet.Ensure(err, wallet.CodeWalletConnectFailure, "WalletConnect connection failed")
	}
	return wallet.Ensure(err, wallet.CodeInjectedConnectionFailed, "injected wallet connection failed")
}

func (m *Manager) commit(ctx context.Context, gen uint64, res *attemptResult) error {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		m.closeResources(ctx, res.transport, res.reader)
		return wallet.NewError(wallet.CodeNotConnected, "session was reset while connecting", nil)
	}
	m.generation++
	gen = m.generation
	m.transport = res.transport
	m.reader = res.reader
	m.address = res.address
	m.chainID = m.cfg.ChainID
	m.lastErr = nil
	m.initialized = true
	m.setState(StateConnected)
	m.mu.Unlock()

	m.logger.Info("wallet connected", "transport", res.kind, "address", res.address.Hex(), "chainID", m.cfg.ChainID)
	m.emit(Connected{Transport: res.kind, Address: res.address})
	go m.watch(gen, res.transport)
	return nil
}

// watch turns wallet notifications into session changes until the session moves on
func (m *Manager) watch(gen uint64, tr transport.Transport) {
	for n := range tr.Notifications() {
		switch n.Event {
		case transport.EventAccountsChanged:
			if len(n.Accounts) == 0 {
				m.logger.Info("wallet exposes no accounts, disconnecting")
				m.reset(gen)
				continue
			}
			m.changeAccount(gen, n.Accounts[0])
		case transport.EventChainChanged:
			if uint64(n.ChainID) != m.cfg.ChainID {
				m.logger.Info("wallet left the target chain, disconnecting", "chainID", uint64(n.ChainID))
				m.reset(gen)
			}
		case transport.EventDisconnect:
			m.logger.Info("wallet disconnected")
			m.reset(gen)
		}
		if !m.current(gen) {
			return
		}
	}
	m.logger.Info("wallet notifications closed, disconnecting")
	m.reset(gen)
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation == gen
}

func (m *Manager) changeAccount(gen uint64, address common.Address) {
	m.mu.Lock()
	if m.generation != gen || m.address == address {
		m.mu.Unlock()
		return
	}
	m.address = address
	m.mu.Unlock()

	m.logger.Info("wallet account changed", "address", address.Hex())
	m.emit(AccountsChanged{Address: address})
}

func (m *Manager) reset(gen uint64) {
	m.mu.Lock()
	if m.generation != gen {
		m.mu.Unlock()
		return
	}
	m.disconnectLocked(context.Background())
}

// Disconnect tears down the transport best effort, clears all session state and persisted
// pairing artifacts, and emits Disconnected. It never fails and may be called in any state.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	m.disconnectLocked(ctx)
}

// disconnectLocked is entered with mu held and releases it before any I/O
func (m *Manager) disconnectLocked(ctx context.Context) {
	tr, reader := m.release()
	m.lastErr = nil
	m.setState(StateDisconnected)
	m.mu.Unlock()

	m.closeResources(ctx, tr, reader)
	if err := m.cfg.Store.Clear(); err != nil {
		m.logger.Warn("failed to clear pairing session", "error", err)
	}
	m.emit(Disconnected{})
}

// release detaches the live resources and bumps the generation. mu must be held.
func (m *Manager) release() (transport.Transport, ChainReader) {
	tr, reader := m.transport, m.reader
	m.transport = nil
	m.reader = nil
	m.address = common.Address{}
	m.chainID = 0
	m.initialized = false
	m.generation++
	return tr, reader
}

func (m *Manager) closeResources(ctx context.Context, tr transport.Transport, reader ChainReader) {
	if tr != nil {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DisconnectTimeout)
		if err := tr.Close(cctx); err != nil {
			m.logger.Warn("failed to close wallet transport", "transport", tr.Kind(), "error", err)
		}
		cancel()
	}
	if reader != nil {
		reader.Close()
	}
}

// CheckConnection reports whether a transport is present, exposes an account and sits on the
// target chain. It never changes the session.
func (m *Manager) CheckConnection(ctx context.Context) bool {
	m.mu.Lock()
	tr := m.transport
	m.mu.Unlock()
	if tr == nil {
		return false
	}

	accounts, err := tr.Accounts(ctx)
	if err != nil || len(accounts) == 0 {
		return false
	}
	chainID, err := tr.ChainID(ctx)
	if err != nil {
		return false
	}
	return chainID == m.cfg.ChainID
}

// Invalidate clears the initialized flag so the next Connect starts from scratch
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initialized {
		m.logger.Warn("session invalidated, next connect reconnects")
	}
	m.initialized = false
}

// Snapshot returns the current read projection
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{State: m.state, Address: m.address, ChainID: m.chainID, Err: m.lastErr}
	if m.transport != nil {
		s.Transport = m.transport.Kind()
	}
	return s
}

// State returns the connection state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Address returns the active address, if any
func (m *Manager) Address() (common.Address, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address, m.address != (common.Address{})
}

// LastError returns the failure that put the session into StateError
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// ChainID returns the target chain
func (m *Manager) ChainID() uint64 { return m.cfg.ChainID }

// NativeCurrency returns the gas token symbol of the target chain
func (m *Manager) NativeCurrency() string {
	return m.cfg.Registry.NativeCurrencySymbol(m.cfg.ChainID)
}

// Active returns the live connection or a not-connected error
func (m *Manager) Active() (Active, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateConnected || m.transport == nil || m.reader == nil || m.address == (common.Address{}) {
		return Active{}, wallet.NewError(wallet.CodeNotConnected, "wallet not connected", nil)
	}
	return Active{
		Address:   m.address,
		ChainID:   m.chainID,
		Reader:    m.reader,
		Transport: m.transport,
	}, nil
}

// IsNotConnected reports whether err means the session has no live connection
func IsNotConnected(err error) bool {
	return errors.Is(err, &wallet.Error{Code: wallet.CodeNotConnected})
}
