package ethereum

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/archon-research/cluster-liquidator/internal/domain/entity"
)

func TestSnapshot_EncodeThenDecode(t *testing.T) {
	balance, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	in := ClusterTuple{ValidatorCount: 4, NetworkFeeIndex: 77, Index: 9, Active: true, Balance: balance}

	raw, err := EncodeSnapshot(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !json.Valid(raw) {
		t.Fatalf("invalid json: %s", raw)
	}

	out, err := DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ValidatorCount != 4 || out.NetworkFeeIndex != 77 || out.Index != 9 || !out.Active {
		t.Errorf("unexpected tuple: %+v", out)
	}
	if out.Balance.Cmp(balance) != 0 {
		t.Errorf("expected balance %s, got %s", balance, out.Balance)
	}
}

func TestDecodeSnapshot_AcceptsNumbers(t *testing.T) {
	out, err := DecodeSnapshot(json.RawMessage(`{"validatorCount":2,"networkFeeIndex":5,"index":"6","active":false,"balance":1000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ValidatorCount != 2 || out.NetworkFeeIndex != 5 || out.Index != 6 || out.Balance.Int64() != 1000 {
		t.Errorf("unexpected tuple: %+v", out)
	}
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":           `{`,
		"negative balance":   `{"balance":"-1"}`,
		"overflowing count":  `{"validatorCount":4294967296}`,
		"fractional index":   `{"index":1.5}`,
		"non numeric string": `{"networkFeeIndex":"abc"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeSnapshot(json.RawMessage(raw))
			if !errors.Is(err, entity.ErrInvalidSnapshot) {
				t.Errorf("expected ErrInvalidSnapshot, got %v", err)
			}
		})
	}
}
