package testutil

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/archon-research/cluster-liquidator/internal/pkg/solerr"
)

// ProtocolErrorsABI declares the custom errors the liquidator reacts to.
const ProtocolErrorsABI = `[
	{"type":"error","name":"ClusterIsLiquidated","inputs":[]},
	{"type":"error","name":"ClusterNotLiquidatable","inputs":[]},
	{"type":"error","name":"IncorrectClusterState","inputs":[]},
	{"type":"error","name":"InsufficientBalance","inputs":[]}
]`

// ProtocolDecoder returns a decoder for ProtocolErrorsABI.
func ProtocolDecoder(t *testing.T) *solerr.Decoder {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(ProtocolErrorsABI))
	if err != nil {
		t.Fatalf("parse errors abi: %v", err)
	}
	return solerr.NewDecoder(&parsed)
}

// Revert returns a node error whose revert data is the selector of the
// argument-less custom error name.
func Revert(name string) error {
	return RevertError{Data: solerr.Selector(name + "()")}
}
