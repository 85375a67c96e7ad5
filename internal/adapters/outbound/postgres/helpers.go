package postgres

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// bigIntToNumeric converts a *big.Int to a nullable string for NUMERIC storage.
// Queries bind the value as $n::TEXT::NUMERIC so that no precision is lost.
func bigIntToNumeric(b *big.Int) *string {
	if b == nil {
		return nil
	}
	s := b.String()
	return &s
}

// numericToBigInt parses a NUMERIC column selected as TEXT.
func numericToBigInt(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid numeric value %q", *s)
	}
	return v, nil
}

// addressToText stores addresses as lower-case hex so lookups are case-insensitive.
func addressToText(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func operatorIDsToArray(ids []uint64) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func arrayToOperatorIDs(ids []int64) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

// optionalTime maps the zero time to NULL.
func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
