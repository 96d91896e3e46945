package config

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// GenesisAccount seeds one address with an initial token balance.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

type Config struct {
	RPCAddress  string           `toml:"RPCAddress"`
	DataDir     string           `toml:"DataDir"`
	RPCToken    string           `toml:"RPCToken"`
	Environment string           `toml:"Environment"`
	Genesis     []GenesisAccount `toml:"Genesis"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./escrowdata"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
}

// Validate checks address and balance fields before the daemon starts.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	for i, acc := range cfg.Genesis {
		if !ethcommon.IsHexAddress(acc.Address) {
			return fmt.Errorf("config: genesis entry %d has invalid address %q", i, acc.Address)
		}
		if _, ok := new(big.Int).SetString(strings.TrimSpace(acc.Balance), 10); !ok {
			return fmt.Errorf("config: genesis entry %d has invalid balance %q", i, acc.Balance)
		}
	}
	return nil
}

// GenesisBalances decodes the configured seed accounts.
func (c *Config) GenesisBalances() ([][20]byte, []*big.Int, error) {
	addrs := make([][20]byte, 0, len(c.Genesis))
	balances := make([]*big.Int, 0, len(c.Genesis))
	for i, acc := range c.Genesis {
		if !ethcommon.IsHexAddress(acc.Address) {
			return nil, nil, fmt.Errorf("config: genesis entry %d has invalid address %q", i, acc.Address)
		}
		balance, ok := new(big.Int).SetString(strings.TrimSpace(acc.Balance), 10)
		if !ok {
			return nil, nil, fmt.Errorf("config: genesis entry %d has invalid balance %q", i, acc.Balance)
		}
		addrs = append(addrs, ethcommon.HexToAddress(acc.Address))
		balances = append(balances, balance)
	}
	return addrs, balances, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
