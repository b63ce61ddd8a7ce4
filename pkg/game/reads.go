package game

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sigweihq/memespin/pkg/session"
)

// roundInfo mirrors getRoundInfo outputs
type roundInfo struct {
	TotalPlayers   *big.Int
	TotalPool      *big.Int
	RockCount      *big.Int
	PaperCount     *big.Int
	ScissorsCount  *big.Int
	OfficialChoice *big.Int
	Status         uint8
	EndTime        *big.Int
}

// playerInfo mirrors getPlayerInfo outputs
type playerInfo struct {
	PlayerChoice uint8
	Result       uint8
	Reward       *big.Int
	HasPlayed    bool
	HasClaimed   bool
}

// contractInfo mirrors getContractInfo outputs
type contractInfo struct {
	PlayCost           *big.Int
	RoundDuration      *big.Int
	MaxPlayersPerRound *big.Int
	Dev1               common.Address
}

func (c *Client) currentRoundID(ctx context.Context, reader session.ChainReader) (uint64, error) {
	id, err := c.callBig(ctx, reader, c.cfg.Contract, c.gameABI, "currentRoundId")
	if err != nil {
		return 0, err
	}
	return toUint64(id), nil
}

func (c *Client) roundInfo(ctx context.Context, reader session.ChainReader, roundID uint64) (*roundInfo, error) {
	var out roundInfo
	err := c.callInto(ctx, reader, c.cfg.Contract, c.gameABI, &out, "getRoundInfo", new(big.Int).SetUint64(roundID))
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) playerInfo(ctx context.Context, reader session.ChainReader, roundID uint64, player common.Address) (*playerInfo, error) {
	var out playerInfo
	err := c.callInto(ctx, reader, c.cfg.Contract, c.gameABI, &out, "getPlayerInfo", new(big.Int).SetUint64(roundID), player)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) contractInfo(ctx context.Context, reader session.ChainReader) (*contractInfo, error) {
	var out contractInfo
	if err := c.callInto(ctx, reader, c.cfg.Contract, c.gameABI, &out, "getContractInfo"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) playCost(ctx context.Context, reader session.ChainReader) (*big.Int, error) {
	return c.callBig(ctx, reader, c.cfg.Contract, c.gameABI, "playCost")
}
