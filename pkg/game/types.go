package game

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/sigweihq/memespin/pkg/constants"
)

// errMalformed marks contract responses that do not decode into the game's model
var errMalformed = errors.New("malformed contract response")

// Choice is a faction a player bets on
type Choice uint8

const (
	ChoiceElon Choice = iota
	ChoicePepe
	ChoiceDoge
)

var choiceNames = [...]string{"ELON", "PEPE", "DOGE"}

func (c Choice) String() string {
	if int(c) < len(choiceNames) {
		return choiceNames[c]
	}
	return fmt.Sprintf("Choice(%d)", uint8(c))
}

func (c Choice) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// ParseChoice parses ELON, PEPE or DOGE, ignoring case
func ParseChoice(s string) (Choice, error) {
	for i, name := range choiceNames {
		if strings.EqualFold(s, name) {
			return Choice(i), nil
		}
	}
	return 0, fmt.Errorf("unknown choice %q, want one of %s", s, strings.Join(choiceNames[:], ", "))
}

// choiceFromIndex returns nil for indices outside the three factions, which the contract uses
// for "no choice yet"
func choiceFromIndex(i uint64) *Choice {
	if i >= uint64(len(choiceNames)) {
		return nil
	}
	c := Choice(i)
	return &c
}

// RoundStatus is the lifecycle stage of a round
type RoundStatus uint8

const (
	StatusActive RoundStatus = iota
	StatusPendingRandomness
	StatusCalculating
	StatusFinalized
)

var statusNames = [...]string{"Active", "PendingRandomness", "Calculating", "Finalized"}

func (s RoundStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("RoundStatus(%d)", uint8(s))
}

func (s RoundStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func parseStatus(v uint8) (RoundStatus, error) {
	if int(v) >= len(statusNames) {
		return 0, fmt.Errorf("%w: unknown round status %d", errMalformed, v)
	}
	return RoundStatus(v), nil
}

// Result is a player's outcome in a round
type Result uint8

const (
	ResultPending Result = iota
	ResultWin
	ResultDraw
	ResultLose
)

var resultNames = [...]string{"Pending", "Win", "Draw", "Lose"}

func (r Result) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("Result(%d)", uint8(r))
}

func (r Result) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

func parseResult(v uint8) (Result, error) {
	if int(v) >= len(resultNames) {
		return 0, fmt.Errorf("%w: unknown result %d", errMalformed, v)
	}
	return Result(v), nil
}

// RoundHistoryEntry is one past round the player took part in
type RoundHistoryEntry struct {
	RoundID    uint64   `json:"id"`
	Result     Result   `json:"result"`
	Reward     string   `json:"reward"` // after the 20% fee, in ether
	RewardWei  *big.Int `json:"-"`
	HasPlayed  bool     `json:"hasPlayed"`
	HasClaimed bool     `json:"hasClaimed"`
}

// Claimable reports whether the round can still be claimed.
// Pending and Lose rounds never are, whatever their claimed flag says.
func (e RoundHistoryEntry) Claimable() bool {
	if e.HasClaimed || e.Result == ResultPending || e.Result == ResultLose {
		return false
	}
	return e.RewardWei != nil && e.RewardWei.Sign() > 0
}

// PendingRewards sums the claimable rewards of entries
func PendingRewards(entries []RoundHistoryEntry) *big.Int {
	total := new(big.Int)
	for _, e := range entries {
		if e.Claimable() {
			total.Add(total, e.RewardWei)
		}
	}
	return total
}

// PreviousRound is the player's view of the round before the current one
type PreviousRound struct {
	RoundID      uint64      `json:"roundId"`
	Status       RoundStatus `json:"status"`
	PlayerChoice *Choice     `json:"playerChoice"`
	PlayerResult *Result     `json:"playerResult"`
	PlayerReward string      `json:"playerReward"`
}

// GameState is the read model assembled on every poll
type GameState struct {
	CurrentRoundID uint64              `json:"currentRoundId"`
	PlayersInRound uint64              `json:"playersInRound"`
	MaxPlayers     uint64              `json:"maxPlayers"`
	PlayCost       string              `json:"playCost"`
	PrizePool      string              `json:"prizePool"`
	ElonCount      uint64              `json:"elonCount"`
	PepeCount      uint64              `json:"pepeCount"`
	DogeCount      uint64              `json:"dogeCount"`
	WinningChoice  *Choice             `json:"winningChoice"`
	RoundStatus    RoundStatus         `json:"roundStatus"`
	PlayerChoice   *Choice             `json:"playerChoice"`
	PlayerResult   *Result             `json:"playerResult"`
	PlayerReward   string              `json:"playerReward"`
	RoundDuration  uint64              `json:"roundDuration"`
	Dev1Address    common.Address      `json:"dev1Address"`
	EndTime        int64               `json:"endTime"`
	RoundHistory   []RoundHistoryEntry `json:"roundHistory"`
	PreviousRound  *PreviousRound      `json:"previousRound"`
	PendingRewards string              `json:"pendingRewards"`
	NativeCurrency string              `json:"nativeCurrency,omitempty"`
}

var ether = big.NewInt(params.Ether)

// FormatEther renders a wei amount as a decimal ether string without trailing zeros
func FormatEther(wei *big.Int) string {
	if wei == nil || wei.Sign() == 0 {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(wei)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}

	whole, frac := new(big.Int).QuoRem(abs, ether, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	digits := frac.String()
	digits = strings.Repeat("0", constants.EtherDecimals-len(digits)) + digits
	return sign + whole.String() + "." + strings.TrimRight(digits, "0")
}

// afterFee applies the 20% protocol fee shown to players
func afterFee(reward *big.Int) *big.Int {
	out := new(big.Int).Mul(reward, big.NewInt(constants.RewardFeeNumerator))
	return out.Div(out, big.NewInt(constants.RewardFeeDenominator))
}

func toUint64(v *big.Int) uint64 {
	if v == nil || !v.IsUint64() {
		return 0
	}
	return v.Uint64()
}
