package api

import (
	"context"
	"fmt"
	"os"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/asset"
	"github.com/chainsafe/custody-vault/pkg/auth"
	"github.com/chainsafe/custody-vault/pkg/config"
	"github.com/chainsafe/custody-vault/pkg/ethereum"
	"github.com/chainsafe/custody-vault/pkg/gateway"
	"github.com/chainsafe/custody-vault/pkg/gateway/evm"
	"github.com/chainsafe/custody-vault/pkg/gateway/memory"
	"github.com/chainsafe/custody-vault/pkg/keys"
	"github.com/chainsafe/custody-vault/pkg/oracle"
	"github.com/chainsafe/custody-vault/pkg/oracle/chainlink"
)

// dependencies are the external collaborators of the vault for one mode.
type dependencies struct {
	prices   oracle.Source
	metadata asset.Metadata
	gateway  gateway.Gateway
}

func newDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, func(), error) {
	switch cfg.Vault.Mode {
	case config.ModeEVM:
		return newEVMDependencies(ctx, cfg, logger)
	default:
		deps, err := newSimulationDependencies(cfg.Vault.Simulation, logger)
		return deps, func() {}, err
	}
}

func newEVMDependencies(_ context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, func(), error) {
	key, err := keys.LoadCustodyKey(cfg.Keys, os.Getenv)
	if err != nil {
		return nil, nil, fmt.Errorf("load custody key: %w", err)
	}
	client, err := ethereum.NewClient(&cfg.Ethereum, key, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize ethereum client: %w", err)
	}
	return &dependencies{
		prices:   chainlink.NewSource(client.Caller()),
		metadata: client,
		gateway:  evm.New(client, logger),
	}, client.Close, nil
}

// newSimulationDependencies builds static feeds, token precisions and a
// funded in-memory gateway from cfg.
func newSimulationDependencies(cfg config.SimulationConfig, logger *zap.Logger) (*dependencies, error) {
	source := oracle.NewStaticSource()
	for _, f := range cfg.Feeds {
		ref, err := auth.ParseAddress(f.Address)
		if err != nil {
			return nil, fmt.Errorf("simulation.feeds: %w", err)
		}
		source.Add(ref, oracle.NewStaticFeed(f.Answer, f.Decimals))
	}

	metadata := asset.NewStaticMetadata(nil)
	for _, t := range cfg.Tokens {
		id, err := auth.ParseAddress(t.Address)
		if err != nil {
			return nil, fmt.Errorf("simulation.tokens: %w", err)
		}
		metadata.Set(id, t.Decimals)
	}

	gw := memory.New()
	for _, a := range cfg.Accounts {
		account, err := auth.ParseAddress(a.Address)
		if err != nil {
			return nil, fmt.Errorf("simulation.accounts: %w", err)
		}
		id, err := auth.ParseAddress(a.Asset)
		if err != nil {
			return nil, fmt.Errorf("simulation.accounts: %w", err)
		}
		balance, err := uint256.FromDecimal(a.Balance)
		if err != nil {
			return nil, fmt.Errorf("simulation.accounts: balance of %s: %w", account.Hex(), err)
		}
		gw.Credit(id, account, balance)
		if a.Allowance != "" {
			allowance, err := uint256.FromDecimal(a.Allowance)
			if err != nil {
				return nil, fmt.Errorf("simulation.accounts: allowance of %s: %w", account.Hex(), err)
			}
			gw.Approve(id, account, allowance)
		}
	}

	logger.Info("Simulation collaborators ready",
		zap.Int("feeds", len(cfg.Feeds)),
		zap.Int("tokens", len(cfg.Tokens)),
		zap.Int("accounts", len(cfg.Accounts)),
	)
	return &dependencies{prices: source, metadata: metadata, gateway: gw}, nil
}
