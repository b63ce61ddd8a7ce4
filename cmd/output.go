package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sigweihq/memespin/pkg/game"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeState(w io.Writer, state *game.GameState, remaining time.Duration) {
	currency := state.NativeCurrency
	_, _ = fmt.Fprintf(w, "round: %d (%s)\n", state.CurrentRoundID, state.RoundStatus)
	_, _ = fmt.Fprintf(w, "players: %d/%d\n", state.PlayersInRound, state.MaxPlayers)
	_, _ = fmt.Fprintf(w, "play cost: %s %s\n", state.PlayCost, currency)
	_, _ = fmt.Fprintf(w, "prize pool: %s %s\n", state.PrizePool, currency)
	_, _ = fmt.Fprintf(w, "bets: ELON %d, PEPE %d, DOGE %d\n", state.ElonCount, state.PepeCount, state.DogeCount)
	if remaining > 0 {
		_, _ = fmt.Fprintf(w, "ends in: %s\n", remaining)
	}
	if state.WinningChoice != nil {
		_, _ = fmt.Fprintf(w, "winner: %s\n", state.WinningChoice)
	}
	if state.PlayerChoice != nil {
		_, _ = fmt.Fprintf(w, "your bet: %s (%s)\n", state.PlayerChoice, resultOrPending(state.PlayerResult))
	}
	if prev := state.PreviousRound; prev != nil && prev.PlayerChoice != nil {
		_, _ = fmt.Fprintf(w, "last round %d: %s, %s, reward %s %s\n",
			prev.RoundID, prev.PlayerChoice, resultOrPending(prev.PlayerResult), prev.PlayerReward, currency)
	}
	_, _ = fmt.Fprintf(w, "pending rewards: %s %s\n", state.PendingRewards, currency)
}

func writeHistory(w io.Writer, entries []game.RoundHistoryEntry, currency string) {
	if len(entries) == 0 {
		_, _ = fmt.Fprintln(w, "history: none")
		return
	}
	for _, e := range entries {
		flags := []string{}
		if e.HasClaimed {
			flags = append(flags, "claimed")
		} else if e.Claimable() {
			flags = append(flags, "claimable")
		}
		_, _ = fmt.Fprintf(w, "round %d: %s, reward %s %s %s\n", e.RoundID, e.Result, e.Reward, currency, strings.Join(flags, " "))
	}
}

func resultOrPending(r *game.Result) game.Result {
	if r == nil {
		return game.ResultPending
	}
	return *r
}
