package entity

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Earning records one liquidation transaction submitted by the agent.
type Earning struct {
	Hash          common.Hash
	From          common.Address
	GasPrice      *big.Int
	GasUsed       uint64
	Earned        *big.Int // nil when no reward transfer was found
	EarnedAtBlock int64
	CreatedAt     time.Time
}

// Cost returns gasPrice * gasUsed in wei.
func (e *Earning) Cost() *big.Int {
	if e.GasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(e.GasPrice, new(big.Int).SetUint64(e.GasUsed))
}

// Validate checks that all fields have valid values.
func (e *Earning) Validate() error {
	if e.Hash == (common.Hash{}) {
		return fmt.Errorf("hash must not be empty")
	}
	if e.From == (common.Address{}) {
		return fmt.Errorf("from must not be the zero address")
	}
	if e.EarnedAtBlock <= 0 {
		return fmt.Errorf("earnedAtBlock must be positive, got %d", e.EarnedAtBlock)
	}
	if e.Earned != nil && e.Earned.Sign() < 0 {
		return fmt.Errorf("earned must be non-negative")
	}
	return nil
}
