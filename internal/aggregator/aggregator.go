// Package aggregator implements price consolidation: for one token,
// gather quotes from every configured adapter, validate them, choose a
// mode, compute the consolidated price, and persist it as the new
// last-good value.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/treasuryd/treasuryd/internal/adapter"
	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/fixedpoint"
	"github.com/treasuryd/treasuryd/internal/metrics"
	"github.com/treasuryd/treasuryd/internal/validator"
)

// ErrNoPriceAvailable is surfaced when the Frozen path has no
// last-good value to fall back to.
var ErrNoPriceAvailable = errors.New("aggregator: no price available")

// ErrConfigMissing is surfaced when the token has no registered
// TokenCfg.
var ErrConfigMissing = errors.New("aggregator: config missing")

// ConfigRepo resolves TokenCfg entries. Only the method the
// Aggregator needs is declared here (see internal/store/configrepo
// for the concrete implementation).
type ConfigRepo interface {
	GetTokenCfg(ctx context.Context, tokenID string) (domain.TokenCfg, error)
}

// LastGoodStore is the durable per-token last-good map the Aggregator
// reads from (on the Frozen path) and writes to (every run).
type LastGoodStore interface {
	Get(ctx context.Context, tokenID string) (domain.ConsolidatedPrice, bool, error)
	Put(ctx context.Context, cp domain.ConsolidatedPrice) error
}

// Clock abstracts wall-clock time so tests can control "now".
type Clock func() time.Time

// Aggregator runs the consolidate() operation.
type Aggregator struct {
	Config    ConfigRepo
	Store     LastGoodStore
	Adapters  []adapter.Adapter
	FanoutTTL time.Duration // wall-clock deadline for the whole fan-out
	Now       Clock
}

// New constructs an Aggregator. fanoutTTL <= 0 defaults to 2s.
func New(cfg ConfigRepo, store LastGoodStore, adapters []adapter.Adapter, fanoutTTL time.Duration) *Aggregator {
	if fanoutTTL <= 0 {
		fanoutTTL = 2 * time.Second
	}
	return &Aggregator{Config: cfg, Store: store, Adapters: adapters, FanoutTTL: fanoutTTL, Now: time.Now}
}

// Consolidate is the inbound consolidate(tokenId) operation. It
// always either returns a valid ConsolidatedPrice (Normal, Degraded,
// or Frozen are all successful results) or one of ErrConfigMissing /
// ErrNoPriceAvailable.
func (a *Aggregator) Consolidate(ctx context.Context, tokenID string) (domain.ConsolidatedPrice, error) {
	cfg, err := a.Config.GetTokenCfg(ctx, tokenID)
	if err != nil {
		return domain.ConsolidatedPrice{}, fmt.Errorf("%w: %v", ErrConfigMissing, err)
	}

	quotes := a.fetchAll(ctx, cfg)

	now := a.Now().Unix()
	valid := make([]domain.Quote, 0, len(quotes))
	for _, q := range quotes {
		if validator.IsValid(q, cfg, now) {
			valid = append(valid, q)
		}
	}

	cp, err := a.decide(ctx, cfg, valid, now)
	if err != nil {
		return domain.ConsolidatedPrice{}, err
	}

	if err := a.Store.Put(ctx, cp); err != nil {
		return domain.ConsolidatedPrice{}, fmt.Errorf("aggregator: persist last-good: %w", err)
	}
	metrics.ConsolidationMode.WithLabelValues(tokenID).Set(metrics.ModeValue(string(cp.Mode)))
	return cp, nil
}

// fetchAll concurrently fetches one Quote per configured adapter,
// bounded by FanoutTTL. Misses (ErrNoData, context deadline, panic
// recovered as a miss) are absorbed silently — this function never
// returns an error.
func (a *Aggregator) fetchAll(ctx context.Context, cfg domain.TokenCfg) []domain.Quote {
	fctx, cancel := context.WithTimeout(ctx, a.FanoutTTL)
	defer cancel()

	results := make([]domain.Quote, len(a.Adapters))
	ok := make([]bool, len(a.Adapters))

	g, gctx := errgroup.WithContext(fctx)
	for i, ad := range a.Adapters {
		i, ad := i, ad
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("aggregator: %s panicked for %s: %v", ad.Source(), cfg.TokenID, r)
				}
			}()
			q, err := ad.Fetch(gctx, cfg)
			if err != nil {
				log.Printf("aggregator: %s miss for %s: %v", ad.Source(), cfg.TokenID, err)
				return nil
			}
			results[i] = q
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // fetchAll never fails the whole run on one adapter's error

	out := make([]domain.Quote, 0, len(results))
	for i, present := range ok {
		if present {
			out = append(out, results[i])
		}
	}
	return out
}

// decide rescales every valid quote, chooses the consolidation mode
// and value, and emits the (non-rejecting) divergence signal.
func (a *Aggregator) decide(ctx context.Context, cfg domain.TokenCfg, valid []domain.Quote, now int64) (domain.ConsolidatedPrice, error) {
	switch len(valid) {
	case 0:
		return a.frozen(ctx, cfg, now)
	case 1:
		rescaled := fixedpoint.Rescale(valid[0].Price, valid[0].Decimals, domain.CanonicalDecimals)
		return domain.ConsolidatedPrice{
			TokenID:     cfg.TokenID,
			Price:       rescaled,
			Decimals:    domain.CanonicalDecimals,
			At:          now,
			Mode:        domain.ModeDegraded,
			SourcesUsed: valid,
		}, nil
	default:
		rescaledPrices := make([]*big.Int, len(valid))
		for i, q := range valid {
			rescaledPrices[i] = fixedpoint.Rescale(q.Price, q.Decimals, domain.CanonicalDecimals)
		}
		sorted := append([]*big.Int(nil), rescaledPrices...)
		fixedpoint.SortAscending(sorted)
		median := fixedpoint.Median(sorted)

		a.checkDivergence(cfg, valid, rescaledPrices, median)

		return domain.ConsolidatedPrice{
			TokenID:     cfg.TokenID,
			Price:       median,
			Decimals:    domain.CanonicalDecimals,
			At:          now,
			Mode:        domain.ModeNormal,
			SourcesUsed: valid,
		}, nil
	}
}

// frozen implements the |V|=0 branch: fall back to the last-good
// value if one exists, else surface NoPriceAvailable.
func (a *Aggregator) frozen(ctx context.Context, cfg domain.TokenCfg, now int64) (domain.ConsolidatedPrice, error) {
	lastGood, found, err := a.Store.Get(ctx, cfg.TokenID)
	if err != nil {
		return domain.ConsolidatedPrice{}, fmt.Errorf("aggregator: read last-good: %w", err)
	}
	if !found {
		return domain.ConsolidatedPrice{}, fmt.Errorf("%w: token %s", ErrNoPriceAvailable, cfg.TokenID)
	}
	return domain.ConsolidatedPrice{
		TokenID:     cfg.TokenID,
		Price:       new(big.Int).Set(lastGood.Price),
		Decimals:    lastGood.Decimals,
		At:          now,
		Mode:        domain.ModeFrozen,
		SourcesUsed: nil,
	}, nil
}

// checkDivergence emits an advisory observability event for any
// source whose rescaled value deviates from the chosen median by more
// than cfg.DeltaBps. It never rejects a source.
func (a *Aggregator) checkDivergence(cfg domain.TokenCfg, valid []domain.Quote, rescaledPrices []*big.Int, median *big.Int) {
	for i, q := range valid {
		dev := fixedpoint.DeviationBps(rescaledPrices[i], median)
		if dev.Cmp(big.NewInt(cfg.DeltaBps)) > 0 {
			metrics.DivergenceExceeded.WithLabelValues(cfg.TokenID, string(q.Source)).Inc()
			log.Printf("aggregator: divergence: token=%s source=%s dev_bps=%s threshold_bps=%d", cfg.TokenID, q.Source, dev, cfg.DeltaBps)
		}
	}
}
