package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// Resolve builds the earning of a liquidation transaction: its sender, gas
// price and usage, and the reward paid out by the token contract.
func (c *Client) Resolve(ctx context.Context, txHash common.Hash) (*entity.Earning, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	tx, _, err := c.backend.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txHash.Hex(), err)
	}

	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt %s: %w", txHash.Hex(), err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, fmt.Errorf("failed to recover sender of %s: %w", txHash.Hex(), err)
	}

	gasPrice := receipt.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = tx.GasPrice()
	}

	earning := &entity.Earning{
		Hash:     txHash,
		From:     from,
		GasPrice: gasPrice,
		GasUsed:  receipt.GasUsed,
		Earned:   c.reward(receipt, from),
	}
	if receipt.BlockNumber != nil {
		earning.EarnedAtBlock = receipt.BlockNumber.Int64()
	}
	return earning, nil
}

// reward returns the amount of the first token transfer to recipient, or nil.
func (c *Client) reward(receipt *types.Receipt, recipient common.Address) *big.Int {
	token := c.contract.TokenAddress
	for _, log := range receipt.Logs {
		if log.Address != token || len(log.Topics) != 3 || log.Topics[0] != transferTopic {
			continue
		}
		if common.BytesToAddress(log.Topics[2].Bytes()) != recipient {
			continue
		}
		return new(big.Int).SetBytes(log.Data)
	}
	return nil
}
