// Package solerr decodes Solidity custom errors from revert data.
//
// A contract call that reverts with a custom error returns the 4-byte selector
// keccak256("Name(type1,type2)")[:4] followed by the ABI-encoded arguments. The
// Decoder maps selectors back to their declared signatures.
package solerr

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
)

// Protocol errors the agent reacts to.
const (
	ClusterIsLiquidated    = "ClusterIsLiquidated"
	ClusterNotLiquidatable = "ClusterNotLiquidatable"
	IncorrectClusterState  = "IncorrectClusterState"
)

// Error is a decoded custom error.
type Error struct {
	// Selector is the 0x-prefixed 4-byte selector, e.g. "0x95a0cf33".
	Selector string
	// Signature is the canonical declaration, e.g. "ClusterIsLiquidated()".
	Signature string
}

// Name returns the error name without its argument list.
func (e Error) Name() string {
	if i := strings.IndexByte(e.Signature, '('); i >= 0 {
		return e.Signature[:i]
	}
	return e.Signature
}

// Decoder resolves selectors declared by one contract ABI.
type Decoder struct {
	bySelector map[string]Error
}

// NewDecoder indexes every error declared in contractABI.
func NewDecoder(contractABI *abi.ABI) *Decoder {
	d := &Decoder{bySelector: make(map[string]Error)}
	if contractABI == nil {
		return d
	}
	for _, e := range contractABI.Errors {
		sig := Signature(e.Name, e.Inputs)
		sel := Selector(sig)
		d.bySelector[sel] = Error{Selector: sel, Signature: sig}
	}
	return d
}

// Signature builds the canonical "Name(type1,type2)" string.
func Signature(name string, inputs abi.Arguments) string {
	types := make([]string, len(inputs))
	for i, in := range inputs {
		types[i] = in.Type.String()
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// Selector returns the 0x-prefixed 4-byte selector of a signature.
func Selector(signature string) string {
	return "0x" + hex.EncodeToString(crypto.Keccak256([]byte(signature))[:4])
}

// Len returns the number of known errors.
func (d *Decoder) Len() int {
	return len(d.bySelector)
}

// Decode matches a hex string (selector, or selector followed by encoded
// arguments) against the known selectors.
func (d *Decoder) Decode(hashPrefix string) (Error, bool) {
	hashPrefix = strings.ToLower(strings.TrimSpace(hashPrefix))
	if !strings.HasPrefix(hashPrefix, "0x") {
		hashPrefix = "0x" + hashPrefix
	}
	// 0x + 8 hex characters
	if len(hashPrefix) < 10 {
		return Error{}, false
	}
	e, ok := d.bySelector[hashPrefix[:10]]
	return e, ok
}

// DecodeData decodes raw revert bytes.
func (d *Decoder) DecodeData(data []byte) (Error, bool) {
	if len(data) < 4 {
		return Error{}, false
	}
	return d.Decode(hexutil.Encode(data[:4]))
}

// DecodeErr extracts revert data from a node error and decodes it.
func (d *Decoder) DecodeErr(err error) (Error, bool) {
	data, ok := RevertData(err)
	if !ok {
		return Error{}, false
	}
	return d.DecodeData(data)
}

// ProtocolError returns the signature of a decodable revert carried by err.
func (d *Decoder) ProtocolError(err error) (string, bool) {
	e, ok := d.DecodeErr(err)
	if !ok {
		return "", false
	}
	return e.Signature, true
}

// RevertData pulls the revert payload out of an error returned by the node.
func RevertData(err error) ([]byte, bool) {
	if err == nil {
		return nil, false
	}
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return nil, false
	}
	switch v := dataErr.ErrorData().(type) {
	case string:
		if !strings.HasPrefix(v, "0x") {
			return nil, false
		}
		data, decErr := hexutil.Decode(v)
		if decErr != nil {
			return nil, false
		}
		return data, true
	case []byte:
		return v, true
	case hexutil.Bytes:
		return v, true
	default:
		return nil, false
	}
}

// IsError reports whether a decoded signature names the given error.
func IsError(signature, name string) bool {
	return signature != "" && strings.Contains(signature, name)
}

// IsAny reports whether signature names one of the given errors.
func IsAny(signature string, names ...string) bool {
	for _, name := range names {
		if IsError(signature, name) {
			return true
		}
	}
	return false
}
