package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/custody-vault/pkg/config"
	"github.com/chainsafe/custody-vault/pkg/ethereum/contracts"
)

var (
	// ErrTxReverted is returned when a mined transaction has a failed status.
	ErrTxReverted = errors.New("transaction reverted")
	// ErrNotInbound is returned when a transaction does not pay the custody account.
	ErrNotInbound = errors.New("transaction does not pay custody")
	// ErrTxUnconfirmed is returned when a broadcast transaction has no receipt
	// yet. It may still be mined.
	ErrTxUnconfirmed = errors.New("transaction not confirmed")
)

// Inbound describes a mined native transfer to the custody account.
type Inbound struct {
	From  common.Address
	Value *big.Int
}

// Client represents the custody account on an Ethereum chain
type Client struct {
	config     *config.EthereumConfig
	client     *ethclient.Client
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	logger     *zap.Logger

	// serializes nonce allocation
	mu sync.Mutex
}

// NewClient creates a new Ethereum client signing with key
func NewClient(cfg *config.EthereumConfig, key *ecdsa.PrivateKey, logger *zap.Logger) (*Client, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum RPC: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey)

	logger.Info("Connected to Ethereum",
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL),
		zap.String("custody_address", address.Hex()))

	return &Client{
		config:     cfg,
		client:     client,
		privateKey: key,
		address:    address,
		chainID:    big.NewInt(cfg.ChainID),
		logger:     logger,
	}, nil
}

// Close closes the Ethereum client
func (c *Client) Close() {
	if c.client != nil {
		c.client.Close()
	}
}

// Address returns the custody account.
func (c *Client) Address() common.Address {
	return c.address
}

// Caller returns the read-only contract backend.
func (c *Client) Caller() bind.ContractCaller {
	return c.client
}

// GetTransactor returns a transaction signer
func (c *Client) GetTransactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(c.privateKey, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	auth.Context = ctx
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = c.config.GasLimit

	gasPrice, err := c.gasPrice(ctx)
	if err != nil {
		return nil, err
	}
	auth.GasPrice = gasPrice

	return auth, nil
}

// gasPrice returns the suggested price, clamped to the configured maximum.
func (c *Client) gasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	if c.config.MaxGasPrice == "" {
		return gasPrice, nil
	}

	maxGasPrice, ok := new(big.Int).SetString(c.config.MaxGasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("invalid max gas price %q", c.config.MaxGasPrice)
	}
	if gasPrice.Cmp(maxGasPrice) > 0 {
		c.logger.Warn("Suggested gas price exceeds maximum",
			zap.String("suggested", gasPrice.String()),
			zap.String("max", maxGasPrice.String()))
		return maxGasPrice, nil
	}
	return gasPrice, nil
}

// SendNative pays amount of the native asset from custody to to and waits
// for the receipt. Once the transaction is broadcast the hash is returned
// with any error.
func (c *Client) SendNative(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	auth, err := c.GetTransactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    auth.Nonce.Uint64(),
		To:       &to,
		Value:    amount,
		Gas:      c.config.NativeGasLimit,
		GasPrice: auth.GasPrice,
	})
	signed, err := auth.Signer(c.address, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign native transfer: %w", err)
	}
	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit native transfer: %w", err)
	}

	c.logger.Info("Native transfer submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()))

	return signed.Hash(), c.waitMined(ctx, signed)
}

// TransferToken pays amount of token from custody to to.
func (c *Client) TransferToken(ctx context.Context, token, to common.Address, amount *big.Int) (common.Hash, error) {
	return c.transact(ctx, token, "transfer", func(erc20 *contracts.ERC20, auth *bind.TransactOpts) (*types.Transaction, error) {
		return erc20.Transfer(auth, to, amount)
	})
}

// PullToken moves amount of token from from into custody under a prior allowance.
func (c *Client) PullToken(ctx context.Context, token, from common.Address, amount *big.Int) (common.Hash, error) {
	return c.transact(ctx, token, "transferFrom", func(erc20 *contracts.ERC20, auth *bind.TransactOpts) (*types.Transaction, error) {
		return erc20.TransferFrom(auth, from, c.address, amount)
	})
}

func (c *Client) transact(
	ctx context.Context,
	token common.Address,
	method string,
	send func(*contracts.ERC20, *bind.TransactOpts) (*types.Transaction, error),
) (common.Hash, error) {
	erc20, err := contracts.NewERC20(token, c.client)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to bind token %s: %w", token.Hex(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	auth, err := c.GetTransactor(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	tx, err := send(erc20, auth)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit %s: %w", method, err)
	}

	c.logger.Info("Token transaction submitted",
		zap.String("method", method),
		zap.String("token", token.Hex()),
		zap.String("tx_hash", tx.Hash().Hex()))

	return tx.Hash(), c.waitMined(ctx, tx)
}

// InboundNative verifies that txHash is a mined, successful native transfer
// to custody and returns its sender and value.
func (c *Client) InboundNative(ctx context.Context, txHash common.Hash) (*Inbound, error) {
	tx, pending, err := c.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
	}
	if pending {
		return nil, fmt.Errorf("transaction %s is still pending", txHash.Hex())
	}
	if tx.To() == nil || *tx.To() != c.address {
		return nil, fmt.Errorf("%w: %s", ErrNotInbound, txHash.Hex())
	}

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", txHash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTxReverted, txHash.Hex())
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", txHash.Hex(), err)
	}
	return &Inbound{From: from, Value: tx.Value()}, nil
}

// Decimals reads the precision of token. It implements asset.Metadata.
func (c *Client) Decimals(ctx context.Context, token common.Address) (uint8, error) {
	erc20, err := contracts.NewERC20Caller(token, c.client)
	if err != nil {
		return 0, fmt.Errorf("failed to bind token %s: %w", token.Hex(), err)
	}
	return erc20.Decimals(&bind.CallOpts{Context: ctx})
}

// waitMined waits for tx independently of the caller's cancellation, since
// a broadcast transaction cannot be withdrawn. Errors other than a revert
// match ErrTxUnconfirmed.
func (c *Client) waitMined(ctx context.Context, tx *types.Transaction) error {
	timeout := c.config.ReceiptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.client, tx)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrTxUnconfirmed, tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}
	return nil
}
