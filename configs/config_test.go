package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/treasuryd/treasuryd/internal/domain"
)

const sampleYAML = `
rpc: https://rpc.example.com
mysql_dsn: user:pass@tcp(127.0.0.1:3306)/treasuryd
tokens:
  ETH:
    chainId: 1
    ttlSec:
      chainlink: 120
      pyth: 30
    epsilonNum: 1
    epsilonDen: 100
    deltaBps: 50
    twapWindowSec: 600
    minLiquidity: "1000000"
    allowedPools: ["0xpool"]
rules:
  - id: r1
    tokenId: ETH
    chainId: 1
    thresholdUsd: 2000
    direction: hot_to_cold
    amountKind: percent
    amountBps: 2500
    hotAddr: "0xhot"
    coldAddr: "0xcold"
    executionMode: direct_key
    hysteresisBps: 100
    cooldownSec: 300
    enabled: true
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := LoadConfig(path)
	assert.NoError(t, err)
	assert.Equal(t, "https://rpc.example.com", cfg.RPC)
	assert.Len(t, cfg.Tokens, 1)
	assert.Len(t, cfg.Rules, 1)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path.yml")
	assert.Error(t, err)
}

func TestToTokenConfigs(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := LoadConfig(path)
	assert.NoError(t, err)

	tokens, err := cfg.ToTokenConfigs()
	assert.NoError(t, err)
	eth, ok := tokens["ETH"]
	assert.True(t, ok)
	assert.Equal(t, int64(1), eth.ChainID)
	assert.Equal(t, int64(120), eth.TTLFor(domain.SourceChainlink))
	assert.Equal(t, "1000000", eth.MinLiquidity.String())
	assert.Equal(t, []string{"0xpool"}, eth.AllowedPools)
}

func TestToRules(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := LoadConfig(path)
	assert.NoError(t, err)

	rules, err := cfg.ToRules()
	assert.NoError(t, err)
	assert.Len(t, rules, 1)
	r := rules[0]
	assert.Equal(t, "r1", r.RuleID)
	assert.Equal(t, domain.DirectionHotToCold, r.Direction)
	assert.Equal(t, domain.AmountPercent, r.Amount.Kind)
	assert.Equal(t, int64(2500), r.Amount.Bps)
	assert.Equal(t, int64(2000), r.ThresholdUsd.Int64())
	assert.True(t, r.Enabled)
}

func TestToRules_InvalidAmountUnits(t *testing.T) {
	badYAML := `
rpc: https://rpc.example.com
tokens: {}
rules:
  - id: r2
    tokenId: ETH
    amountKind: absolute
    amountUnits: "not-a-number"
`
	path := writeTempConfig(t, badYAML)
	cfg, err := LoadConfig(path)
	assert.NoError(t, err)
	_, err = cfg.ToRules()
	assert.Error(t, err)
}
