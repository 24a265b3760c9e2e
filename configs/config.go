package configs

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// Config represents the entire configuration structure from config.yml:
// chain RPC endpoints, one TokenCfg per monitored asset, and the
// balancer rules evaluated against their consolidated prices.
type Config struct {
	RPC       string                  `yaml:"rpc"`
	MySQLDSN  string                  `yaml:"mysql_dsn"`
	Tokens    map[string]TokenYAML    `yaml:"tokens"`
	Rules     []RuleYAML              `yaml:"rules"`
	PythFeeds map[string]string       `yaml:"pyth_feeds"`
	Chainlink map[string]ChainlinkYAML `yaml:"chainlink_feeds"`
}

// TokenYAML is one entry under `tokens:` in config.yml.
type TokenYAML struct {
	ChainID      int64            `yaml:"chainId"`
	TTLSec       map[string]int64 `yaml:"ttlSec"`       // keyed by source tag
	EpsilonNum   int64            `yaml:"epsilonNum"`
	EpsilonDen   int64            `yaml:"epsilonDen"`
	DeltaBps     int64            `yaml:"deltaBps"`
	TWAPWindow   int64            `yaml:"twapWindowSec"`
	MinLiquidity string           `yaml:"minLiquidity"` // decimal string, big.Int
	AllowedPools []string         `yaml:"allowedPools"`
}

// RuleYAML is one entry under `rules:` in config.yml.
type RuleYAML struct {
	RuleID        string `yaml:"id"`
	TokenID       string `yaml:"tokenId"`
	ChainID       int64  `yaml:"chainId"`
	ThresholdUsd  int64  `yaml:"thresholdUsd"`
	Direction     string `yaml:"direction"` // "hot_to_cold" | "cold_to_hot"
	AmountKind    string `yaml:"amountKind"`
	AmountUnits   string `yaml:"amountUnits"` // decimal string, used when AmountKind == "absolute"
	AmountBps     int64  `yaml:"amountBps"`   // used when AmountKind == "percent"
	HotAddr       string `yaml:"hotAddr"`
	ColdAddr      string `yaml:"coldAddr"`
	ExecutionMode string `yaml:"executionMode"`
	HysteresisBps int64  `yaml:"hysteresisBps"`
	CooldownSec   int64  `yaml:"cooldownSec"`
	Enabled       bool   `yaml:"enabled"`
}

// ChainlinkYAML configures a direct Chainlink-style feed contract.
type ChainlinkYAML struct {
	Address string `yaml:"address"`
	ABI     string `yaml:"abi"`
}

// LoadConfig reads and parses config.yml into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configs: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("configs: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ToTokenConfigs converts the parsed YAML into domain.TokenCfg, keyed
// by token ID, suitable for internal/store/configrepo.New.
func (c *Config) ToTokenConfigs() (map[string]domain.TokenCfg, error) {
	out := make(map[string]domain.TokenCfg, len(c.Tokens))
	for tokenID, y := range c.Tokens {
		minLiq := big.NewInt(0)
		if y.MinLiquidity != "" {
			v, ok := new(big.Int).SetString(y.MinLiquidity, 10)
			if !ok {
				return nil, fmt.Errorf("configs: token %s: invalid minLiquidity %q", tokenID, y.MinLiquidity)
			}
			minLiq = v
		}
		ttl := make(map[domain.SourceTag]int64, len(y.TTLSec))
		for src, sec := range y.TTLSec {
			ttl[domain.SourceTag(src)] = sec
		}
		out[tokenID] = domain.TokenCfg{
			TokenID:      tokenID,
			ChainID:      y.ChainID,
			TTLBySource:  ttl,
			EpsilonNum:   y.EpsilonNum,
			EpsilonDen:   y.EpsilonDen,
			DeltaBps:     y.DeltaBps,
			TWAPWindow:   y.TWAPWindow,
			MinLiquidity: minLiq,
			AllowedPools: y.AllowedPools,
		}
	}
	return out, nil
}

// ToRules converts the parsed YAML into domain.Rule values.
func (c *Config) ToRules() ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, len(c.Rules))
	for _, y := range c.Rules {
		amount := domain.Amount{Kind: domain.AmountKind(y.AmountKind), Bps: y.AmountBps}
		if amount.Kind == domain.AmountAbsolute {
			units, ok := new(big.Int).SetString(y.AmountUnits, 10)
			if !ok {
				return nil, fmt.Errorf("configs: rule %s: invalid amountUnits %q", y.RuleID, y.AmountUnits)
			}
			amount.Units = units
		}
		out = append(out, domain.Rule{
			RuleID:        y.RuleID,
			TokenID:       y.TokenID,
			ChainID:       y.ChainID,
			ThresholdUsd:  big.NewInt(y.ThresholdUsd),
			Direction:     domain.Direction(y.Direction),
			Amount:        amount,
			HotAddr:       y.HotAddr,
			ColdAddr:      y.ColdAddr,
			ExecutionMode: domain.ExecutionMode(y.ExecutionMode),
			HysteresisBps: y.HysteresisBps,
			CooldownSec:   y.CooldownSec,
			Enabled:       y.Enabled,
		})
	}
	return out, nil
}
