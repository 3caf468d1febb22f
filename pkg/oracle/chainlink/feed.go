// Package chainlink reads Chainlink AggregatorV3 feeds over JSON-RPC.
package chainlink

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/custody-vault/pkg/ethereum/contracts"
	"github.com/chainsafe/custody-vault/pkg/oracle"
)

// Source binds aggregator contracts on demand.
type Source struct {
	caller bind.ContractCaller
}

// NewSource creates a Source that queries feeds through caller.
func NewSource(caller bind.ContractCaller) *Source {
	return &Source{caller: caller}
}

// Feed implements oracle.Source.
func (s *Source) Feed(ref common.Address) (oracle.Feed, error) {
	agg, err := contracts.NewAggregatorV3Caller(ref, s.caller)
	if err != nil {
		return nil, fmt.Errorf("failed to bind aggregator %s: %w", ref.Hex(), err)
	}
	return &feed{agg: agg}, nil
}

type feed struct {
	agg *contracts.AggregatorV3Caller
}

func (f *feed) LatestRoundData(ctx context.Context) (oracle.RoundData, error) {
	out, err := f.agg.LatestRoundData(&bind.CallOpts{Context: ctx})
	if err != nil {
		return oracle.RoundData{}, err
	}
	return oracle.RoundData{
		RoundID:         out.RoundId,
		Answer:          out.Answer,
		StartedAt:       out.StartedAt,
		UpdatedAt:       out.UpdatedAt,
		AnsweredInRound: out.AnsweredInRound,
	}, nil
}

func (f *feed) Decimals(ctx context.Context) (uint8, error) {
	return f.agg.Decimals(&bind.CallOpts{Context: ctx})
}
