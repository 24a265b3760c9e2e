// Package lastgood persists the most recent successful
// ConsolidatedPrice per token, backed by GORM/MySQL in the same style
// as the project's original asset-snapshot recorder: a narrow table,
// big.Int fields stored as decimal strings, AutoMigrate on open.
//
// Put does no per-token serialization of its own, and the Aggregator
// calls it directly rather than through internal/keyedqueue; two
// concurrent Put calls for the same token are ordered only by the
// database, the later upsert winning.
package lastgood

import (
	"context"
	"fmt"
	"math/big"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// Record is the GORM model for the last_good_prices table.
type Record struct {
	TokenID  string `gorm:"primaryKey;type:varchar(64)"`
	Price    string `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	Decimals int    `gorm:"not null"`
	At       int64  `gorm:"not null"`
	Mode     string `gorm:"type:varchar(16);not null"`
}

func (Record) TableName() string { return "last_good_prices" }

// Store is the GORM-backed implementation of aggregator.LastGoodStore.
type Store struct {
	db *gorm.DB
}

// New opens a Store against an already-connected *gorm.DB and ensures
// its table exists.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("lastgood: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Get returns the last persisted ConsolidatedPrice for tokenID, or
// found=false if none exists yet. SourcesUsed is never populated here —
// the Frozen mode this feeds never reports which sources contributed.
func (s *Store) Get(ctx context.Context, tokenID string) (domain.ConsolidatedPrice, bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "token_id = ?", tokenID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.ConsolidatedPrice{}, false, nil
		}
		return domain.ConsolidatedPrice{}, false, fmt.Errorf("lastgood: get: %w", err)
	}

	price, ok := new(big.Int).SetString(rec.Price, 10)
	if !ok {
		return domain.ConsolidatedPrice{}, false, fmt.Errorf("lastgood: corrupt price %q for %s", rec.Price, tokenID)
	}
	return domain.ConsolidatedPrice{
		TokenID:  rec.TokenID,
		Price:    price,
		Decimals: rec.Decimals,
		At:       rec.At,
		Mode:     domain.Mode(rec.Mode),
	}, true, nil
}

// Put upserts the last-good row for cp.TokenID. Only Normal and
// Degraded outputs should ever be written here — callers must not
// persist a Frozen result as the new last-good value, or a chain of
// outages would freeze forever on a stale price.
func (s *Store) Put(ctx context.Context, cp domain.ConsolidatedPrice) error {
	if cp.Mode == domain.ModeFrozen {
		return nil
	}
	rec := Record{
		TokenID:  cp.TokenID,
		Price:    bigIntToString(cp.Price),
		Decimals: cp.Decimals,
		At:       cp.At,
		Mode:     string(cp.Mode),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("lastgood: put: %w", err)
	}
	return nil
}

func bigIntToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
