package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	db *gorm.DB
}

// NewDatabase opens the transaction store using one of the supported drivers
// (sqlite, postgres, mysql) and migrates the schema.
func NewDatabase(driver, dsn string) (*Database, error) {
	dialector, err := dialectorFor(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&Transaction{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Database{db: db}, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// SaveTransaction inserts tx. CreatedAt is stored in UTC so that range queries
// compare like with like on drivers that keep timestamps as text.
func (d *Database) SaveTransaction(ctx context.Context, tx *Transaction) error {
	if !tx.CreatedAt.IsZero() {
		tx.CreatedAt = tx.CreatedAt.UTC()
	}
	if err := d.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

// Exists reports whether any record matches the payer and amount, whatever its status.
func (d *Database) Exists(ctx context.Context, phoneNumber string, amount int64) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("phone_number = ? AND amount = ?", phoneNumber, amount).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up transaction: %w", err)
	}
	return count > 0, nil
}

// PurgeOlderThan hard-deletes every record created before cutoff.
func (d *Database) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := d.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&Transaction{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge transactions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// RecentTransactions returns the newest records first.
func (d *Database) RecentTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	var txs []Transaction
	err := d.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
