// Package intent is the durable, GORM/MySQL-backed home for
// domain.TransferIntent rows. A unique index on idem_key is what makes
// the Execution Engine's at-most-once guarantee durable across process
// restarts: two InsertPlanned calls racing on the same key converge on
// one row instead of creating two.
package intent

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/treasuryd/treasuryd/internal/domain"
)

// Record is the GORM model for the transfer_intents table.
type Record struct {
	IdemKey        string `gorm:"primaryKey;type:varchar(64)"`
	RuleID         string `gorm:"index;type:varchar(64);not null"`
	TokenID        string `gorm:"type:varchar(64);not null"`
	PriceAtFire    string `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	DecimalsAtFire int    `gorm:"not null"`
	FiredAt        int64  `gorm:"not null"`
	AmountUnits    string `gorm:"type:varchar(78);not null;comment:big.Int as string"`
	FromAddr       string `gorm:"column:from_addr;type:varchar(64);not null"`
	ToAddr         string `gorm:"column:to_addr;type:varchar(64);not null"`
	Mode           string `gorm:"type:varchar(24);not null"`
	Status         string `gorm:"type:varchar(16);not null;index"`
	TxHash         string `gorm:"type:varchar(80)"`
	ProposalHash   string `gorm:"type:varchar(80)"`
	Note           string `gorm:"type:varchar(256)"`
}

func (Record) TableName() string { return "transfer_intents" }

// Store is the GORM-backed implementation of execution.Store.
type Store struct {
	db *gorm.DB
}

// New opens a Store against an already-connected *gorm.DB and ensures
// its table and unique index exist.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("intent: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) FindByIdemKey(ctx context.Context, key string) (domain.TransferIntent, bool, error) {
	var rec Record
	err := s.db.WithContext(ctx).First(&rec, "idem_key = ?", key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TransferIntent{}, false, nil
		}
		return domain.TransferIntent{}, false, fmt.Errorf("intent: find: %w", err)
	}
	out, err := fromRecord(rec)
	if err != nil {
		return domain.TransferIntent{}, false, err
	}
	return out, true, nil
}

// InsertPlanned creates intent in StatusPlanned. If a row with the
// same IdemKey already exists (a racing caller won the insert first),
// it returns that existing row instead of erroring — the unique index
// is what guarantees only one of the two callers actually created it.
func (s *Store) InsertPlanned(ctx context.Context, intent domain.TransferIntent) (domain.TransferIntent, error) {
	rec := toRecord(intent)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec).Error
	if err != nil {
		return domain.TransferIntent{}, fmt.Errorf("intent: insert planned: %w", err)
	}
	existing, found, err := s.FindByIdemKey(ctx, intent.IdemKey)
	if err != nil {
		return domain.TransferIntent{}, err
	}
	if !found {
		return domain.TransferIntent{}, fmt.Errorf("intent: insert planned: row missing after create for %s", intent.IdemKey)
	}
	return existing, nil
}

func (s *Store) UpdateStatus(ctx context.Context, idemKey string, to domain.Status, txHash, proposalHash, note string) error {
	updates := map[string]any{"status": string(to)}
	if txHash != "" {
		updates["tx_hash"] = txHash
	}
	if proposalHash != "" {
		updates["proposal_hash"] = proposalHash
	}
	if note != "" {
		updates["note"] = note
	}
	res := s.db.WithContext(ctx).Model(&Record{}).Where("idem_key = ?", idemKey).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("intent: update status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("intent: update status: no row for %s", idemKey)
	}
	return nil
}

// FindInFlight returns every non-terminal intent for ruleID, the set a
// crash-recovery pass would hand to execution.Engine.Reconcile. Nothing
// in cmd/treasuryd calls it.
func (s *Store) FindInFlight(ctx context.Context, ruleID string) ([]domain.TransferIntent, error) {
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("rule_id = ? AND status NOT IN ?", ruleID, []string{string(domain.StatusMinedSuccess), string(domain.StatusMinedFailed)}).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("intent: find in-flight: %w", err)
	}
	out := make([]domain.TransferIntent, 0, len(recs))
	for _, rec := range recs {
		ti, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, ti)
	}
	return out, nil
}

func toRecord(ti domain.TransferIntent) Record {
	return Record{
		IdemKey:        ti.IdemKey,
		RuleID:         ti.RuleID,
		TokenID:        ti.TokenID,
		PriceAtFire:    bigIntToString(ti.PriceAtFire),
		DecimalsAtFire: ti.DecimalsAtFire,
		FiredAt:        ti.FiredAt,
		AmountUnits:    bigIntToString(ti.AmountUnits),
		FromAddr:       ti.From,
		ToAddr:         ti.To,
		Mode:           string(ti.Mode),
		Status:         string(ti.Status),
		TxHash:         ti.TxHash,
		ProposalHash:   ti.ProposalHash,
		Note:           ti.Note,
	}
}

func fromRecord(rec Record) (domain.TransferIntent, error) {
	price, ok := new(big.Int).SetString(rec.PriceAtFire, 10)
	if !ok {
		return domain.TransferIntent{}, fmt.Errorf("intent: corrupt price for %s", rec.IdemKey)
	}
	amount, ok := new(big.Int).SetString(rec.AmountUnits, 10)
	if !ok {
		return domain.TransferIntent{}, fmt.Errorf("intent: corrupt amount for %s", rec.IdemKey)
	}
	return domain.TransferIntent{
		IdemKey:        rec.IdemKey,
		RuleID:         rec.RuleID,
		TokenID:        rec.TokenID,
		PriceAtFire:    price,
		DecimalsAtFire: rec.DecimalsAtFire,
		FiredAt:        rec.FiredAt,
		AmountUnits:    amount,
		From:           rec.FromAddr,
		To:             rec.ToAddr,
		Mode:           domain.ExecutionMode(rec.Mode),
		Status:         domain.Status(rec.Status),
		TxHash:         rec.TxHash,
		ProposalHash:   rec.ProposalHash,
		Note:           rec.Note,
	}, nil
}

func bigIntToString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
