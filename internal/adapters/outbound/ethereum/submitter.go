package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
	"github.com/archon-research/cluster-liquidator/internal/ports/outbound"
)

var _ outbound.Submitter = (*Submitter)(nil)

// Gas price tiers applied on top of the node's suggested price.
const (
	GasTierLow    = "low"
	GasTierMedium = "medium"
	GasTierHigh   = "high"
)

// gasTierPercent maps a tier to the percentage added to the suggested price.
var gasTierPercent = map[string]int64{
	GasTierLow:    -10,
	GasTierMedium: 20,
	GasTierHigh:   40,
}

// gasByOperators is the fixed gas limit used when estimation is overridden,
// keyed by the largest operator count of each bucket.
var gasByOperators = []struct {
	operators int
	gas       uint64
}{
	{4, 132700},
	{7, 173600},
	{10, 215300},
	{13, 257200},
}

// SubmitterConfig holds configuration for the transaction submitter.
type SubmitterConfig struct {
	// PrivateKey is the hex encoded signing key, with or without 0x.
	PrivateKey string
	// GasTier is one of low, medium, high.
	GasTier string
	// GasMultiplier is applied to the node's gas estimate.
	GasMultiplier float64
	// GasUsageOverride replaces estimation with a fixed limit per operator count.
	GasUsageOverride bool
	// PollInterval is the delay between receipt lookups.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// SubmitterConfigDefaults returns a config with default values.
func SubmitterConfigDefaults() SubmitterConfig {
	return SubmitterConfig{
		GasTier:       GasTierLow,
		GasMultiplier: 1.2,
		PollInterval:  2 * time.Second,
		Logger:        slog.Default(),
	}
}

// Submitter signs and sends liquidation transactions with the agent's key.
type Submitter struct {
	client  *Client
	config  SubmitterConfig
	key     *ecdsa.PrivateKey
	agent   common.Address
	chainID *big.Int
	logger  *slog.Logger
}

// NewSubmitter creates a submitter. It reads the chain id from the node.
func NewSubmitter(ctx context.Context, client *Client, config SubmitterConfig) (*Submitter, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if config.PrivateKey == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(config.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	defaults := SubmitterConfigDefaults()
	if config.GasTier == "" {
		config.GasTier = defaults.GasTier
	}
	if _, ok := gasTierPercent[config.GasTier]; !ok {
		return nil, fmt.Errorf("unknown gas tier %q", config.GasTier)
	}
	if config.GasMultiplier <= 0 {
		config.GasMultiplier = defaults.GasMultiplier
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	if err := client.wait(ctx); err != nil {
		return nil, err
	}
	chainID, err := client.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	return &Submitter{
		client:  client,
		config:  config,
		key:     key,
		agent:   crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
		logger:  config.Logger.With("component", "submitter"),
	}, nil
}

// AddressFromKey derives the account address of a hex private key.
func AddressFromKey(privateKey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}

func (s *Submitter) Address() common.Address {
	return s.agent
}

func (s *Submitter) Balance(ctx context.Context) (*big.Int, error) {
	if err := s.client.wait(ctx); err != nil {
		return nil, err
	}
	balance, err := s.client.backend.BalanceAt(ctx, s.agent, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", s.agent.Hex(), err)
	}
	return balance, nil
}

// Liquidate signs and sends liquidate(owner, operatorIds, cluster). Estimation
// errors are returned as is so that revert data can be decoded by the caller.
func (s *Submitter) Liquidate(ctx context.Context, c *entity.Cluster) (common.Hash, error) {
	args, err := clusterArgs(c)
	if err != nil {
		return common.Hash{}, err
	}
	data, err := s.client.contract.ABI.Pack("liquidate", args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack liquidate: %w", err)
	}
	to := s.client.contract.Address
	backend := s.client.backend

	if err := s.client.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	nonce, err := backend.PendingNonceAt(ctx, s.agent)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gas, err := s.gasLimit(ctx, c, ethereum.CallMsg{From: s.agent, To: &to, Data: data})
	if err != nil {
		return common.Hash{}, err
	}

	if err := s.client.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	suggested, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}
	gasPrice := AdjustGasPrice(suggested, s.config.GasTier)

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.wait(ctx); err != nil {
		return common.Hash{}, err
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	s.logger.Info("liquidation sent",
		"cluster", c.Key(), "tx", signed.Hash().Hex(), "nonce", nonce, "gas", gas, "gasPrice", gasPrice)
	return signed.Hash(), nil
}

func (s *Submitter) gasLimit(ctx context.Context, c *entity.Cluster, msg ethereum.CallMsg) (uint64, error) {
	if s.config.GasUsageOverride {
		return GasForOperators(len(c.OperatorIDs)), nil
	}
	if err := s.client.wait(ctx); err != nil {
		return 0, err
	}
	estimate, err := s.client.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("failed to estimate gas: %w", err)
	}
	return uint64(math.Ceil(float64(estimate) * s.config.GasMultiplier)), nil
}

// WaitMined polls for the receipt of hash until it is mined or ctx ends. A
// failed receipt is replayed as a call so the revert reason comes back in the
// returned error.
func (s *Submitter) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.receipt(ctx, hash)
		switch {
		case err == nil && receipt.Status == types.ReceiptStatusSuccessful:
			return receipt, nil
		case err == nil:
			return receipt, s.revertReason(ctx, hash, receipt)
		case !errors.Is(err, ethereum.NotFound):
			s.logger.Debug("receipt lookup failed", "tx", hash.Hex(), "error", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Submitter) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	if err := s.client.wait(ctx); err != nil {
		return nil, err
	}
	return s.client.backend.TransactionReceipt(ctx, hash)
}

func (s *Submitter) revertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) error {
	reverted := fmt.Errorf("transaction %s reverted", hash.Hex())

	if err := s.client.wait(ctx); err != nil {
		return reverted
	}
	tx, _, err := s.client.backend.TransactionByHash(ctx, hash)
	if err != nil {
		return reverted
	}

	if err := s.client.wait(ctx); err != nil {
		return reverted
	}
	_, callErr := s.client.backend.CallContract(ctx, ethereum.CallMsg{
		From:     s.agent,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}, receipt.BlockNumber)
	if callErr == nil {
		return reverted
	}
	return fmt.Errorf("%w: %w", reverted, callErr)
}

// AdjustGasPrice applies the tier percentage to the suggested price.
func AdjustGasPrice(suggested *big.Int, tier string) *big.Int {
	pct := gasTierPercent[tier]
	adjusted := new(big.Int).Mul(suggested, big.NewInt(100+pct))
	return adjusted.Quo(adjusted, big.NewInt(100))
}

// GasForOperators returns the fixed gas limit for a cluster of n operators.
func GasForOperators(n int) uint64 {
	for _, bucket := range gasByOperators {
		if n <= bucket.operators {
			return bucket.gas
		}
	}
	return gasByOperators[len(gasByOperators)-1].gas
}
