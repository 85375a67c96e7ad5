package ethereum

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/*.json
var contractFiles embed.FS

// ErrUnknownContract is returned when no data file exists for an env and group.
var ErrUnknownContract = errors.New("unknown contract")

// contractFile is the layout of the embedded data files.
type contractFile struct {
	ContractAddress string          `json:"contractAddress"`
	ABI             json.RawMessage `json:"abi"`
	GenesisBlock    int64           `json:"genesisBlock"`
	TokenAddress    string          `json:"tokenAddress"`
}

// Contract holds the network and views contracts of one deployment.
type Contract struct {
	Env     string
	Version string
	Network string

	Address      common.Address
	ABI          *abi.ABI
	GenesisBlock int64
	TokenAddress common.Address

	ViewsAddress common.Address
	ViewsABI     *abi.ABI
}

// LoadContract reads the embedded deployment for env (prod, stage) and
// group ("version.network", e.g. "v4.mainnet").
func LoadContract(env, group string) (*Contract, error) {
	if env == "" {
		return nil, fmt.Errorf("contract environment is required")
	}
	parts := strings.Split(group, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid contract group %q, expected version.network", group)
	}

	name := env + "." + group
	core, err := readContractFile(name + ".abi.json")
	if err != nil {
		return nil, err
	}
	if core.ContractAddress == "" || len(core.ABI) == 0 || core.GenesisBlock == 0 {
		return nil, fmt.Errorf("missing core data in %s", name)
	}
	views, err := readContractFile(name + ".views.abi.json")
	if err != nil {
		return nil, err
	}
	if views.ContractAddress == "" || len(views.ABI) == 0 {
		return nil, fmt.Errorf("missing views data in %s", name)
	}

	for _, addr := range []string{core.ContractAddress, views.ContractAddress} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid contract address %q in %s", addr, name)
		}
	}
	if core.TokenAddress != "" && !common.IsHexAddress(core.TokenAddress) {
		return nil, fmt.Errorf("invalid token address %q in %s", core.TokenAddress, name)
	}

	coreABI, err := abi.JSON(bytes.NewReader(core.ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s core ABI: %w", name, err)
	}
	viewsABI, err := abi.JSON(bytes.NewReader(views.ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s views ABI: %w", name, err)
	}

	return &Contract{
		Env:          env,
		Version:      strings.ToUpper(parts[0]),
		Network:      strings.ToUpper(parts[1]),
		Address:      common.HexToAddress(core.ContractAddress),
		ABI:          &coreABI,
		GenesisBlock: core.GenesisBlock,
		TokenAddress: common.HexToAddress(core.TokenAddress),
		ViewsAddress: common.HexToAddress(views.ContractAddress),
		ViewsABI:     &viewsABI,
	}, nil
}

// ErrorsABI merges the error declarations of both contracts so reverts from
// either can be decoded.
func (c *Contract) ErrorsABI() *abi.ABI {
	merged := abi.ABI{Errors: make(map[string]abi.Error)}
	for _, src := range []*abi.ABI{c.ViewsABI, c.ABI} {
		for name, e := range src.Errors {
			merged.Errors[name] = e
		}
	}
	return &merged
}

// Deployments lists the embedded "env.version.network" names.
func Deployments() []string {
	entries, err := fs.ReadDir(contractFiles, "abi")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".abi.json")
		if !ok || strings.HasSuffix(name, ".views") {
			continue
		}
		out = append(out, name)
	}
	return out
}

func readContractFile(name string) (*contractFile, error) {
	data, err := contractFiles.ReadFile("abi/" + name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContract, name)
	}
	var f contractFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return &f, nil
}
