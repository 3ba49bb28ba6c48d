package history

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PositionRecord mirrors a position into the database for reporting.
// The JSON ledger stays the source of truth; this table exists for
// queries across many days of trading.
type PositionRecord struct {
	ID            uint   `gorm:"primaryKey"`
	PostHash      string `gorm:"uniqueIndex;size:66"`
	WalletName    string `gorm:"size:64"`
	TokenSymbol   string `gorm:"size:32"`
	TokenAddress  string `gorm:"size:42"`
	AmountETH     string `gorm:"size:32"`
	EntryPrice    string `gorm:"size:64"`
	ExitPrice     string `gorm:"size:64"`
	ExitReason    string `gorm:"size:16"`
	ProfitLossETH string `gorm:"size:64"`
	OpenedAt      time.Time
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Store persists position records. Postgres when a URL is configured,
// SQLite when a path is, disabled otherwise.
type Store struct {
	db      *gorm.DB
	enabled bool
}

func New(databaseURL, databasePath string) (*Store, error) {
	var dialector gorm.Dialector
	switch {
	case databaseURL != "":
		dialector = postgres.Open(databaseURL)
	case databasePath != "":
		dialector = sqlite.Open(databasePath)
	default:
		log.Info().Msg("📊 Position history disabled (no database configured)")
		return &Store{}, nil
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&PositionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Msg("📊 Position history connected")
	return &Store{db: db, enabled: true}, nil
}

// Enabled reports whether a database is connected.
func (s *Store) Enabled() bool {
	return s.enabled
}

// RecordOpen inserts the position when the buy confirms. Replays of the
// same signal keep the first row.
func (s *Store) RecordOpen(postHash, wallet, symbol string, token common.Address, amountETH, entryPrice decimal.Decimal) error {
	if !s.enabled {
		return nil
	}
	rec := PositionRecord{
		PostHash:     postHash,
		WalletName:   wallet,
		TokenSymbol:  symbol,
		TokenAddress: token.Hex(),
		AmountETH:    amountETH.String(),
		EntryPrice:   entryPrice.String(),
		OpenedAt:     time.Now(),
	}
	return s.db.Where("post_hash = ?", postHash).FirstOrCreate(&rec).Error
}

// RecordClose fills in the exit side of the row.
func (s *Store) RecordClose(postHash, reason string, exitPrice, profitLoss decimal.Decimal) error {
	if !s.enabled {
		return nil
	}
	now := time.Now()
	return s.db.Model(&PositionRecord{}).
		Where("post_hash = ?", postHash).
		Updates(map[string]interface{}{
			"exit_price":      exitPrice.String(),
			"exit_reason":     reason,
			"profit_loss_eth": profitLoss.String(),
			"closed_at":       &now,
		}).Error
}

// ClosedPositions returns the most recent closed rows, newest first.
func (s *Store) ClosedPositions(limit int) ([]PositionRecord, error) {
	if !s.enabled {
		return nil, nil
	}
	var recs []PositionRecord
	err := s.db.Where("closed_at IS NOT NULL").
		Order("closed_at DESC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
