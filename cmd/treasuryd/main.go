// Command treasuryd runs the two-stage treasury pipeline: Stage A
// consolidates price quotes per token on a fixed interval, Stage B
// evaluates balancer rules against the latest consolidated prices and
// drives any fired transfer to completion.
package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/treasuryd/treasuryd/configs"
	"github.com/treasuryd/treasuryd/internal/adapter"
	"github.com/treasuryd/treasuryd/internal/aggregator"
	"github.com/treasuryd/treasuryd/internal/chainclient"
	"github.com/treasuryd/treasuryd/internal/domain"
	"github.com/treasuryd/treasuryd/internal/evaluator"
	"github.com/treasuryd/treasuryd/internal/execution"
	"github.com/treasuryd/treasuryd/internal/keyedqueue"
	"github.com/treasuryd/treasuryd/internal/store/configrepo"
	"github.com/treasuryd/treasuryd/internal/store/intent"
	"github.com/treasuryd/treasuryd/internal/store/lastgood"
)

func main() {
	_ = godotenv.Load() // optional; real deployments set env directly

	pkHex := os.Getenv("TREASURYD_PRIVATE_KEY")
	if pkHex == "" {
		log.Fatal("TREASURYD_PRIVATE_KEY not set")
	}
	privateKey, err := crypto.HexToECDSA(pkHex)
	if err != nil {
		log.Fatalf("invalid TREASURYD_PRIVATE_KEY: %v", err)
	}

	configPath := os.Getenv("TREASURYD_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yml"
	}
	conf, err := configs.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, aggr, repo, err := wire(ctx, conf, privateKey)
	if err != nil {
		log.Fatalf("wire: %v", err)
	}

	run(ctx, repo, aggr, engine)
}

// wire constructs every stage of the pipeline from loaded config. It
// is split out from main so the full dependency graph is visible in
// one place.
func wire(ctx context.Context, conf *configs.Config, privateKey *ecdsa.PrivateKey) (*execution.Engine, *aggregator.Aggregator, *configrepo.Repo, error) {
	db, err := gorm.Open(mysql.Open(conf.MySQLDSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open mysql: %w", err)
	}

	lastGoodStore, err := lastgood.New(db)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("lastgood store: %w", err)
	}
	intentStore, err := intent.New(db)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("intent store: %w", err)
	}

	tokens, err := conf.ToTokenConfigs()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("token configs: %w", err)
	}
	rules, err := conf.ToRules()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rules: %w", err)
	}
	repo := configrepo.New(tokens, rules)

	chain, err := chainclient.NewEthChainClient(ctx, conf.RPC, privateKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("chain client: %w", err)
	}

	adapters := []adapter.Adapter{
		adapter.NewPythAdapter(nil, "", conf.PythFeeds),
		// Chainlink and TWAP adapters need per-token feed/pool readers
		// that are themselves chain-backed; wiring those concretely is
		// deployment-specific (which feed registry, which pool reader)
		// and is left to the operator's own FeedReader/PoolReader
		// implementations passed in here.
	}

	aggr := aggregator.New(repo, lastGoodStore, adapters, 2*time.Second)

	queue := keyedqueue.New()
	engine := execution.New(intentStore, chain, queue, 5*time.Second)

	return engine, aggr, repo, nil
}

// run drives the steady-state loop: every tick, consolidate the price
// of every token that an enabled rule refers to, then evaluate every
// enabled rule against it and execute anything that fires.
func run(ctx context.Context, repo *configrepo.Repo, aggr *aggregator.Aggregator, engine *execution.Engine) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	lastFireAt := make(map[string]int64)

	for {
		select {
		case <-ctx.Done():
			log.Println("treasuryd: shutting down")
			return
		case <-ticker.C:
			tick(ctx, repo, aggr, engine, lastFireAt)
		}
	}
}

func tick(ctx context.Context, repo *configrepo.Repo, aggr *aggregator.Aggregator, engine *execution.Engine, lastFireAt map[string]int64) {
	rules, err := repo.EnabledRules(ctx)
	if err != nil {
		log.Printf("treasuryd: enabled rules: %v", err)
		return
	}

	prices := make(map[string]domain.ConsolidatedPrice)
	for _, rule := range rules {
		if _, ok := prices[rule.TokenID]; ok {
			continue
		}
		cp, err := aggr.Consolidate(ctx, rule.TokenID)
		if err != nil {
			log.Printf("treasuryd: consolidate %s: %v", rule.TokenID, err)
			continue
		}
		prices[rule.TokenID] = cp
	}

	for _, rule := range rules {
		cp, ok := prices[rule.TokenID]
		if !ok {
			continue
		}
		var lastFire *int64
		if v, ok := lastFireAt[rule.RuleID]; ok {
			lastFire = &v
		}

		// Balance of the source-side address for this direction.
		sourceAddr := rule.HotAddr
		if rule.Direction == domain.DirectionColdToHot {
			sourceAddr = rule.ColdAddr
		}
		balance, err := engine.Chain.GetBalance(ctx, sourceAddr, rule.TokenID)
		if err != nil {
			log.Printf("treasuryd: balance for rule %s: %v", rule.RuleID, err)
			continue
		}

		now := time.Now().Unix()
		signal, err := evaluator.Evaluate(rule, cp, balance, now, lastFire)
		if err != nil {
			log.Printf("treasuryd: evaluate rule %s: %v", rule.RuleID, err)
			continue
		}
		if signal == nil {
			continue
		}

		lastFireAt[rule.RuleID] = now
		if err := engine.Execute(ctx, *signal, rule.ExecutionMode); err != nil {
			log.Printf("treasuryd: execute rule %s: %v", rule.RuleID, err)
		}
	}
}
