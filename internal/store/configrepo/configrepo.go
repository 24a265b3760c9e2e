// Package configrepo is the read-mostly registry of TokenCfg and Rule
// entries the Aggregator and Balancer consult every round. The
// production registry is loaded once from YAML at startup (configs
// package) and held in memory — these entries change on a deploy
// cadence, not a request cadence, so no database round-trip belongs
// here.
package configrepo

import (
	"context"
	"fmt"
	"sync"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// Repo is an in-memory, concurrency-safe TokenCfg/Rule registry.
type Repo struct {
	mu     sync.RWMutex
	tokens map[string]domain.TokenCfg
	rules  []domain.Rule
}

// New constructs a Repo from already-parsed config entries (typically
// via configs.Config.ToTokenConfigs / ToRules).
func New(tokens map[string]domain.TokenCfg, rules []domain.Rule) *Repo {
	r := &Repo{tokens: make(map[string]domain.TokenCfg, len(tokens))}
	for k, v := range tokens {
		r.tokens[k] = v
	}
	r.rules = append([]domain.Rule(nil), rules...)
	return r
}

// GetTokenCfg implements aggregator.ConfigRepo.
func (r *Repo) GetTokenCfg(_ context.Context, tokenID string) (domain.TokenCfg, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tokens[tokenID]
	if !ok {
		return domain.TokenCfg{}, fmt.Errorf("configrepo: no config for token %s", tokenID)
	}
	return cfg, nil
}

// EnabledRules returns every Rule with Enabled == true, in the order
// they were loaded. The Balancer iterates this slice every evaluation
// round.
func (r *Repo) EnabledRules(_ context.Context) ([]domain.Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			out = append(out, rule)
		}
	}
	return out, nil
}

// Replace atomically swaps in a new token/rule set — used when a
// config reload is wired in, so callers have a safe seam for it
// without requiring a process restart.
func (r *Repo) Replace(tokens map[string]domain.TokenCfg, rules []domain.Rule) {
	newTokens := make(map[string]domain.TokenCfg, len(tokens))
	for k, v := range tokens {
		newTokens[k] = v
	}
	newRules := append([]domain.Rule(nil), rules...)

	r.mu.Lock()
	r.tokens = newTokens
	r.rules = newRules
	r.mu.Unlock()
}
