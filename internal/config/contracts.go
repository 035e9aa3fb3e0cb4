package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/moduls/core"
	"gopkg.in/yaml.v3"
)

// Contracts are the platform contract addresses on one chain
type Contracts struct {
	SalesManager common.Address `yaml:"salesManager"`
	Deployer     common.Address `yaml:"deployer"`
}

// ContractBook maps chain ids to contract addresses
type ContractBook map[int64]Contracts

// DefaultContracts covers a local development chain with the addresses of the
// first two deployments from the default dev account.
func DefaultContracts() ContractBook {
	return ContractBook{
		31337: {
			SalesManager: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
			Deployer:     common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"),
		},
	}
}

type contractsFile struct {
	Chains map[string]struct {
		SalesManager string `yaml:"salesManager"`
		Deployer     string `yaml:"deployer"`
	} `yaml:"chains"`
}

// LoadContracts reads a YAML address book on top of the defaults.
// An empty path returns the defaults.
func LoadContracts(path string) (ContractBook, error) {
	book := DefaultContracts()
	if path == "" {
		return book, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read contracts file: %w", err)
	}
	if err := book.merge(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return book, nil
}

func (b ContractBook) merge(data []byte) error {
	var file contractsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse contracts: %w", err)
	}

	for key, entry := range file.Chains {
		chainID, err := strconv.ParseInt(key, 10, 64)
		if err != nil || chainID <= 0 {
			return fmt.Errorf("invalid chain id %q", key)
		}
		for name, addr := range map[string]string{"salesManager": entry.SalesManager, "deployer": entry.Deployer} {
			if !common.IsHexAddress(addr) {
				return fmt.Errorf("chain %d: invalid %s address %q", chainID, name, addr)
			}
		}
		b[chainID] = Contracts{
			SalesManager: common.HexToAddress(entry.SalesManager),
			Deployer:     common.HexToAddress(entry.Deployer),
		}
	}
	return nil
}

// For returns the contracts deployed on chainID
func (b ContractBook) For(chainID int64) (Contracts, error) {
	contracts, ok := b[chainID]
	if !ok {
		return Contracts{}, fmt.Errorf("chain %d: %w", chainID, core.ErrUnknownChain)
	}
	return contracts, nil
}
