package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hupe1980/dialogmesh/core"
)

// DefaultTableName is the table used when SQLOptions.Table is empty.
const DefaultTableName = "dialog_storage_items"

// storageItem is one persisted state bag. The key column is not named "key"
// because that is reserved in MySQL.
type storageItem struct {
	Key       string    `gorm:"column:item_key;primaryKey;size:512"`
	Value     string    `gorm:"column:item_value;type:text;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// SQLOptions configures a SQLStorage.
type SQLOptions struct {
	// Table overrides the table name.
	Table string
	// AutoMigrate creates or updates the table on construction.
	AutoMigrate bool
}

// SQLStorage is a core.Storage backed by a single key/value table.
type SQLStorage struct {
	db    *gorm.DB
	table string
}

// NewSQLStorage wraps db. With AutoMigrate (the default) the table is created
// when missing.
func NewSQLStorage(db *gorm.DB, optFns ...func(o *SQLOptions)) (*SQLStorage, error) {
	opts := SQLOptions{Table: DefaultTableName, AutoMigrate: true}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Table == "" {
		opts.Table = DefaultTableName
	}
	s := &SQLStorage{db: db, table: opts.Table}
	if opts.AutoMigrate {
		if err := db.Table(opts.Table).AutoMigrate(&storageItem{}); err != nil {
			return nil, fmt.Errorf("failed to auto migrate %s: %w", opts.Table, err)
		}
	}
	return s, nil
}

func (s *SQLStorage) tx(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(s.table)
}

// Read loads the rows for keys.
func (s *SQLStorage) Read(ctx context.Context, keys []string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	for _, k := range keys {
		if k == "" {
			return nil, core.ErrEmptyKey
		}
	}
	var rows []storageItem
	if err := s.tx(ctx).Where("item_key IN ?", keys).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sql read: %w", err)
	}
	for _, row := range rows {
		v, err := decode([]byte(row.Value))
		if err != nil {
			return nil, fmt.Errorf("sql read %q: %w", row.Key, err)
		}
		out[row.Key] = v
	}
	return out, nil
}

// Write upserts every change in one statement.
func (s *SQLStorage) Write(ctx context.Context, changes map[string]any) error {
	if len(changes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]storageItem, 0, len(changes))
	for k, v := range changes {
		if k == "" {
			return core.ErrEmptyKey
		}
		raw, err := marshal(v)
		if err != nil {
			return fmt.Errorf("sql write %q: %w", k, err)
		}
		rows = append(rows, storageItem{Key: k, Value: raw, UpdatedAt: now})
	}
	err := s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"item_value", "updated_at"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("sql write: %w", err)
	}
	return nil
}

// Delete removes the rows for keys.
func (s *SQLStorage) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.tx(ctx).Where("item_key IN ?", keys).Delete(&storageItem{}).Error; err != nil {
		return fmt.Errorf("sql delete: %w", err)
	}
	return nil
}
