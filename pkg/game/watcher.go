package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/constants"
)

// GameStateFetcher reads the game state
type GameStateFetcher interface {
	FetchGameState(ctx context.Context, address common.Address) (*GameState, error)
}

// View is what a watcher currently shows
type View struct {
	State         *GameState
	TimeRemaining time.Duration
	Err           error
}

// Watcher polls the game state on an interval and counts the round down between polls.
// Polls may overlap; the last one to complete wins.
type Watcher struct {
	fetcher  GameStateFetcher
	address  common.Address
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onUpdate func(View)

	mu   sync.Mutex
	view View
}

// NewWatcher creates a watcher; a zero interval uses the default poll interval
func NewWatcher(fetcher GameStateFetcher, address common.Address, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = constants.GameStatePollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fetcher:  fetcher,
		address:  address,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// OnUpdate registers fn to receive the view after every poll and countdown tick
func (w *Watcher) OnUpdate(fn func(View)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onUpdate = fn
}

// View returns the latest view
func (w *Watcher) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// Run polls immediately, then on every interval, until ctx is done.
// It returns after in-flight polls finish.
func (w *Watcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	poll := func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.poll(ctx)
		}()
	}

	pollTicker := time.NewTicker(w.interval)
	defer pollTicker.Stop()
	countdown := time.NewTicker(constants.CountdownInterval)
	defer countdown.Stop()

	poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			poll()
		case <-countdown.C:
			w.tick()
		}
	}
}

func (w *Watcher) poll(ctx context.Context) {
	state, err := w.fetcher.FetchGameState(ctx, w.address)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		w.logger.Warn("failed to fetch game state", "error", err)
	}

	w.mu.Lock()
	if err != nil {
		w.view.Err = err
	} else {
		w.view = View{State: state, TimeRemaining: w.remaining(state)}
	}
	view, fn := w.view, w.onUpdate
	w.mu.Unlock()

	if fn != nil {
		fn(view)
	}
}

func (w *Watcher) tick() {
	w.mu.Lock()
	if w.view.State == nil {
		w.mu.Unlock()
		return
	}
	w.view.TimeRemaining = w.remaining(w.view.State)
	view, fn := w.view, w.onUpdate
	w.mu.Unlock()

	if fn != nil {
		fn(view)
	}
}

// remaining is the time left until the round's end, zero once it has passed
func (w *Watcher) remaining(state *GameState) time.Duration {
	if state == nil || state.EndTime == 0 {
		return 0
	}
	left := time.Unix(state.EndTime, 0).Sub(w.now())
	if left < 0 {
		return 0
	}
	return left.Truncate(time.Second)
}
