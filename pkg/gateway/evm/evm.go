// Package evm moves custody assets on an EVM chain through the custody account.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/ethereum"
	"github.com/chainsafe/custody-vault/pkg/gateway"
)

// Chain is the subset of the custody client the gateway drives. Errors
// matching ethereum.ErrTxUnconfirmed come with the hash of the broadcast
// transaction.
type Chain interface {
	SendNative(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error)
	TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error)
	PullToken(ctx context.Context, token, from common.Address, amount *big.Int) (common.Hash, error)
	InboundNative(ctx context.Context, txHash common.Hash) (*ethereum.Inbound, error)
}

// Gateway implements gateway.Gateway on top of a Chain.
//
// Native deposits are not pulled: the holder pays custody directly and the
// transaction hash is passed as the transfer reference. Each hash credits
// at most one deposit for the lifetime of the process.
type Gateway struct {
	chain  Chain
	logger *zap.Logger

	mu       sync.Mutex
	consumed map[common.Hash]struct{}
}

// New creates a Gateway.
func New(chain Chain, logger *zap.Logger) *Gateway {
	return &Gateway{
		chain:    chain,
		logger:   logger,
		consumed: make(map[common.Hash]struct{}),
	}
}

// Pull implements gateway.Gateway.
func (g *Gateway) Pull(ctx context.Context, t gateway.Transfer) error {
	if asset.IsNative(t.Asset) {
		return g.claimNative(ctx, t)
	}

	txHash, err := g.chain.PullToken(ctx, t.Asset, t.Account, t.Amount.ToBig())
	if err != nil {
		return g.failure(err, txHash, fmt.Sprintf("pull %s of %s from %s", t.Amount.Dec(), t.Asset.Hex(), t.Account.Hex()))
	}
	g.logger.Info("Pulled token into custody",
		zap.String("token", t.Asset.Hex()),
		zap.String("from", t.Account.Hex()),
		zap.String("tx_hash", txHash.Hex()))
	return nil
}

// Push implements gateway.Gateway.
func (g *Gateway) Push(ctx context.Context, t gateway.Transfer) error {
	var (
		txHash common.Hash
		err    error
	)
	if asset.IsNative(t.Asset) {
		txHash, err = g.chain.SendNative(ctx, t.Account, t.Amount.ToBig())
	} else {
		txHash, err = g.chain.TransferToken(ctx, t.Asset, t.Account, t.Amount.ToBig())
	}
	if err != nil {
		return g.failure(err, txHash, fmt.Sprintf("push %s of %s to %s", t.Amount.Dec(), t.Asset.Hex(), t.Account.Hex()))
	}
	g.logger.Info("Paid out of custody",
		zap.String("asset", t.Asset.Hex()),
		zap.String("to", t.Account.Hex()),
		zap.String("tx_hash", txHash.Hex()))
	return nil
}

// failure classifies a chain error. A broadcast transaction without a
// receipt is pending, everything else failed before any value moved.
func (g *Gateway) failure(err error, txHash common.Hash, what string) error {
	if errors.Is(err, ethereum.ErrTxUnconfirmed) {
		g.logger.Warn("Transfer submitted but not confirmed",
			zap.String("transfer", what),
			zap.String("tx_hash", txHash.Hex()),
			zap.Error(err))
		return &gateway.PendingError{Reference: txHash.Hex(), Err: err}
	}
	return fmt.Errorf("%w: %s: %v", gateway.ErrTransferFailed, what, err)
}

func (g *Gateway) claimNative(ctx context.Context, t gateway.Transfer) error {
	raw, err := hexutil.Decode(t.Reference)
	if err != nil || len(raw) != common.HashLength {
		return fmt.Errorf("%w: native deposit needs the paying transaction hash", gateway.ErrTransferFailed)
	}
	txHash := common.BytesToHash(raw)

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, used := g.consumed[txHash]; used {
		return fmt.Errorf("%w: transaction %s already credited", gateway.ErrTransferFailed, txHash.Hex())
	}

	in, err := g.chain.InboundNative(ctx, txHash)
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrTransferFailed, err)
	}
	if in.From != t.Account {
		return fmt.Errorf("%w: transaction %s was sent by %s", gateway.ErrTransferFailed, txHash.Hex(), in.From.Hex())
	}
	if in.Value.Cmp(t.Amount.ToBig()) != 0 {
		return fmt.Errorf("%w: transaction %s carries %s, deposit of %s", gateway.ErrTransferFailed, txHash.Hex(), in.Value, t.Amount.Dec())
	}

	g.consumed[txHash] = struct{}{}
	return nil
}
