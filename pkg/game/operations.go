package game

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sigweihq/memespin/pkg/constants"
	"github.com/sigweihq/memespin/pkg/session"
	"github.com/sigweihq/memespin/pkg/wallet"
	"golang.org/x/sync/errgroup"
)

// ClaimResult describes a successful claim
type ClaimResult struct {
	Receipt *ethtypes.Receipt
	Rounds  []uint64
	Amount  string
}

// FetchRoundHistory returns the rounds address played among [max(1, current-20), current).
// Without force a cache populated for address is returned as is. A scan replaces the cache
// wholesale unless the session changed account or disconnected meanwhile, and a failed scan
// leaves it untouched.
func (c *Client) FetchRoundHistory(ctx context.Context, address common.Address, currentRoundID uint64, force bool) (_ []RoundHistoryEntry, err error) {
	act, err := c.session.Active()
	if err != nil {
		return nil, err
	}
	if !force {
		if cached := c.cachedHistory(address); cached != nil {
			return cached, nil
		}
	}

	defer observe("fetchRoundHistory", time.Now(), &err)
	gen := c.historyGeneration()
	entries, err := c.scanHistory(ctx, act.Reader, address, currentRoundID)
	if err != nil {
		if errors.Is(err, errMalformed) {
			c.session.Invalidate()
		}
		return nil, fail(err, wallet.CodeHistoryFetchFailed, "failed to fetch round history")
	}

	if !c.storeHistory(gen, address, entries) {
		c.logger.Debug("session changed during history scan, not caching", "address", address.Hex())
		return entries, nil
	}
	c.logger.Debug("round history loaded", "address", address.Hex(), "rounds", len(entries))
	return entries, nil
}

func (c *Client) scanHistory(ctx context.Context, reader session.ChainReader, address common.Address, currentRoundID uint64) ([]RoundHistoryEntry, error) {
	first := uint64(1)
	if currentRoundID > constants.RoundHistoryWindow+1 {
		first = currentRoundID - constants.RoundHistoryWindow
	}
	if currentRoundID <= first {
		return []RoundHistoryEntry{}, nil
	}

	infos := make([]*playerInfo, currentRoundID-first)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)
	for i := range infos {
		roundID := first + uint64(i)
		g.Go(func() error {
			info, err := c.playerInfo(gctx, reader, roundID, address)
			if err != nil {
				return fmt.Errorf("round %d: %w", roundID, err)
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := []RoundHistoryEntry{}
	for i, info := range infos {
		if !info.HasPlayed {
			continue
		}
		result, err := parseResult(info.Result)
		if err != nil {
			return nil, err
		}
		reward := afterFee(info.Reward)
		entries = append(entries, RoundHistoryEntry{
			RoundID:    first + uint64(i),
			Result:     result,
			Reward:     FormatEther(reward),
			RewardWei:  reward,
			HasPlayed:  info.HasPlayed,
			HasClaimed: info.HasClaimed,
		})
	}
	return entries, nil
}

// FetchGameState assembles the read model. With a zero address only round data is read.
// A malformed contract response invalidates the session.
func (c *Client) FetchGameState(ctx context.Context, address common.Address) (_ *GameState, err error) {
	act, err := c.session.Active()
	if err != nil {
		return nil, err
	}
	defer observe("fetchGameState", time.Now(), &err)

	state, err := c.gameState(ctx, act, address)
	if err != nil {
		if errors.Is(err, errMalformed) {
			c.session.Invalidate()
		}
		return nil, fail(err, wallet.CodeGameStateFetchFailed, "failed to fetch game state")
	}
	return state, nil
}

func (c *Client) gameState(ctx context.Context, act session.Active, address common.Address) (*GameState, error) {
	var (
		info      *contractInfo
		currentID uint64
		current   *roundInfo
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		info, err = c.contractInfo(gctx, act.Reader)
		return err
	})
	g.Go(func() (err error) {
		if currentID, err = c.currentRoundID(gctx, act.Reader); err != nil {
			return err
		}
		current, err = c.roundInfo(gctx, act.Reader, currentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	status, err := parseStatus(current.Status)
	if err != nil {
		return nil, err
	}
	state := &GameState{
		CurrentRoundID: currentID,
		PlayersInRound: toUint64(current.TotalPlayers),
		MaxPlayers:     toUint64(info.MaxPlayersPerRound),
		PlayCost:       FormatEther(info.PlayCost),
		PrizePool:      FormatEther(current.TotalPool),
		ElonCount:      toUint64(current.RockCount),
		PepeCount:      toUint64(current.PaperCount),
		DogeCount:      toUint64(current.ScissorsCount),
		WinningChoice:  choiceFromIndex(toUint64(current.OfficialChoice)),
		RoundStatus:    status,
		PlayerReward:   "0",
		RoundDuration:  toUint64(info.RoundDuration),
		Dev1Address:    info.Dev1,
		EndTime:        int64(toUint64(current.EndTime)),
		RoundHistory:   []RoundHistoryEntry{},
		PendingRewards: "0",
		NativeCurrency: c.session.NativeCurrency(),
	}

	if address != (common.Address{}) {
		if err := c.fillPlayer(ctx, act, address, state); err != nil {
			return nil, err
		}
		if history := c.cachedHistory(address); history != nil {
			state.RoundHistory = history
			state.PendingRewards = FormatEther(PendingRewards(history))
		}
	}
	return state, nil
}

func (c *Client) fillPlayer(ctx context.Context, act session.Active, address common.Address, state *GameState) error {
	player, err := c.playerInfo(ctx, act.Reader, state.CurrentRoundID, address)
	if err != nil {
		return err
	}
	if state.PlayerChoice, state.PlayerResult, err = playerOutcome(player); err != nil {
		return err
	}
	state.PlayerReward = FormatEther(player.Reward)

	refreshHistory := false
	if state.CurrentRoundID > 1 {
		prevID := state.CurrentRoundID - 1
		var (
			prevRound  *roundInfo
			prevPlayer *playerInfo
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			prevRound, err = c.roundInfo(gctx, act.Reader, prevID)
			return err
		})
		g.Go(func() (err error) {
			prevPlayer, err = c.playerInfo(gctx, act.Reader, prevID, address)
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}

		status, err := parseStatus(prevRound.Status)
		if err != nil {
			return err
		}
		prev := &PreviousRound{RoundID: prevID, Status: status, PlayerReward: FormatEther(prevPlayer.Reward)}
		if prev.PlayerChoice, prev.PlayerResult, err = playerOutcome(prevPlayer); err != nil {
			return err
		}
		state.PreviousRound = prev

		// a Win or Draw last round means new rewards to show
		if prev.PlayerResult != nil && (*prev.PlayerResult == ResultWin || *prev.PlayerResult == ResultDraw) {
			refreshHistory = true
		}
	}

	if refreshHistory || c.cachedHistory(address) == nil {
		if _, err := c.FetchRoundHistory(ctx, address, state.CurrentRoundID, refreshHistory); err != nil {
			return err
		}
	}
	return nil
}

// playerOutcome maps a player's raw choice and result; the choice is nil when the player did not play
func playerOutcome(info *playerInfo) (*Choice, *Result, error) {
	result, err := parseResult(info.Result)
	if err != nil {
		return nil, nil, err
	}
	var choice *Choice
	if info.HasPlayed {
		choice = choiceFromIndex(uint64(info.PlayerChoice))
	}
	return choice, &result, nil
}

// PlayRound bets on choice, paying the play cost. An invalid referrer falls back to the configured
// default referrer, then to the contract's dev address.
func (c *Client) PlayRound(ctx context.Context, choice Choice, referrer string) (_ *ethtypes.Receipt, err error) {
	act, err := c.session.Active()
	if err != nil {
		return nil, err
	}
	defer observe("play", time.Now(), &err)

	receipt, err := c.play(ctx, act, choice, referrer)
	if err != nil {
		return nil, fail(err, wallet.CodePlayFailed, "failed to play round")
	}

	if round, err := c.currentRoundID(ctx, act.Reader); err != nil {
		c.logger.Warn("failed to read round after play", "error", err)
	} else if _, err := c.FetchRoundHistory(ctx, act.Address, round, true); err != nil {
		c.logger.Warn("failed to refresh round history after play", "error", err)
	}
	return receipt, nil
}

func (c *Client) play(ctx context.Context, act session.Active, choice Choice, referrer string) (*ethtypes.Receipt, error) {
	if choice > ChoiceDoge {
		return nil, fmt.Errorf("unknown choice %d", uint8(choice))
	}
	ref, err := c.resolveReferrer(ctx, act, referrer)
	if err != nil {
		return nil, err
	}
	cost, err := c.playCost(ctx, act.Reader)
	if err != nil {
		return nil, err
	}
	data, err := c.gameABI.Pack("play", uint8(choice), ref)
	if err != nil {
		return nil, fmt.Errorf("failed to pack play: %w", err)
	}

	c.logger.Info("playing round", "choice", choice, "referrer", ref.Hex(), "value", FormatEther(cost))
	return c.transact(ctx, act, c.cfg.Contract, cost, data)
}

func (c *Client) resolveReferrer(ctx context.Context, act session.Active, referrer string) (common.Address, error) {
	if ValidReferrer(referrer) {
		return common.HexToAddress(referrer), nil
	}
	if c.cfg.DefaultReferrer != (common.Address{}) {
		return c.cfg.DefaultReferrer, nil
	}
	info, err := c.contractInfo(ctx, act.Reader)
	if err != nil {
		return common.Address{}, err
	}
	return info.Dev1, nil
}

// EndRound triggers the contract's round transition
func (c *Client) EndRound(ctx context.Context) (_ *ethtypes.Receipt, err error) {
	act, err := c.session.Active()
	if err != nil {
		return nil, err
	}
	defer observe("handleRoundTransition", time.Now(), &err)

	data, err := c.gameABI.Pack("handleRoundTransition")
	if err != nil {
		return nil, fail(err, wallet.CodeEndRoundFailed, "failed to end round")
	}
	receipt, err := c.transact(ctx, act, c.cfg.Contract, nil, data)
	if err != nil {
		return nil, fail(err, wallet.CodeEndRoundFailed, "failed to end round")
	}
	return receipt, nil
}

// ClaimRewards claims every claimable round in the history, loading it first when the cache
// is empty. Having nothing to claim fails with no-rewards.
func (c *Client) ClaimRewards(ctx context.Context) (_ *ClaimResult, err error) {
	act, err := c.session.Active()
	if err != nil {
		return nil, err
	}
	defer observe("claim", time.Now(), &err)

	history := c.cachedHistory(act.Address)
	if history == nil {
		round, err := c.currentRoundID(ctx, act.Reader)
		if err != nil {
			return nil, fail(err, wallet.CodeClaimFailed, "failed to claim rewards")
		}
		if history, err = c.FetchRoundHistory(ctx, act.Address, round, false); err != nil {
			return nil, fail(err, wallet.CodeClaimFailed, "failed to claim rewards")
		}
	}

	var rounds []*big.Int
	var ids []uint64
	for _, e := range history {
		if e.Claimable() {
			rounds = append(rounds, new(big.Int).SetUint64(e.RoundID))
			ids = append(ids, e.RoundID)
		}
	}
	if len(rounds) == 0 {
		return nil, wallet.NewError(wallet.CodeNoRewards, "no rewards to claim", nil)
	}

	data, err := c.gameABI.Pack("claim", rounds)
	if err != nil {
		return nil, fail(err, wallet.CodeClaimFailed, "failed to claim rewards")
	}
	c.logger.Info("claiming rewards", "rounds", ids)
	receipt, err := c.transact(ctx, act, c.cfg.Contract, nil, data)
	if err != nil {
		return nil, fail(err, wallet.CodeClaimFailed, "failed to claim rewards")
	}

	result := &ClaimResult{Receipt: receipt, Rounds: ids, Amount: FormatEther(PendingRewards(history))}
	if round, err := c.currentRoundID(ctx, act.Reader); err != nil {
		c.logger.Warn("failed to read round after claim", "error", err)
	} else if _, err := c.FetchRoundHistory(ctx, act.Address, round, true); err != nil {
		c.logger.Warn("failed to refresh round history after claim", "error", err)
	}
	return result, nil
}

// CheckNFTOwnership reports whether address holds at least one NFT
func (c *Client) CheckNFTOwnership(ctx context.Context, address common.Address) (_ bool, err error) {
	act, err := c.session.Active()
	if err != nil {
		return false, err
	}
	defer observe("balanceOf", time.Now(), &err)

	balance, err := c.callBig(ctx, act.Reader, c.cfg.NFTContract, c.nftABI, "balanceOf", address)
	if err != nil {
		return false, fail(err, wallet.CodeNFTCheckFailed, "failed to check NFT ownership")
	}
	return balance.Sign() > 0, nil
}

// MintNFT mints one NFT, paying the current mint cost
func (c *Client) MintNFT(ctx context.Context) (_ *ethtypes.Receipt, err error) {
	act, err := c.session.Active()
	if err != nil {
		return nil, err
	}
	defer observe("mint", time.Now(), &err)

	cost, err := c.callBig(ctx, act.Reader, c.cfg.NFTContract, c.nftABI, "mintCost")
	if err != nil {
		return nil, fail(err, wallet.CodeMintFailed, "failed to mint NFT")
	}
	data, err := c.nftABI.Pack("mint")
	if err != nil {
		return nil, fail(err, wallet.CodeMintFailed, "failed to mint NFT")
	}
	receipt, err := c.transact(ctx, act, c.cfg.NFTContract, cost, data)
	if err != nil {
		return nil, fail(err, wallet.CodeMintFailed, "failed to mint NFT")
	}
	return receipt, nil
}
