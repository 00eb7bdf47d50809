package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	logger2 "tabmon/internal/logger"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

// StateRecord is one persisted key/value pair. Values are JSON so that
// callers can store structured state without schema changes.
type StateRecord struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string
	UpdatedAt time.Time
}

// Store is a small JSON key/value store backed by sqlite. It holds the
// monitor's durable state across restarts.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the sqlite database at dsn and
// migrates the state table. Table names carry the given prefix.
func Open(dsn, prefix string, l logger2.Logger) (*Store, error) {
	if l == nil {
		l = logger2.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: prefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	if err := db.AutoMigrate(&StateRecord{}); err != nil {
		return nil, fmt.Errorf("migrate state table: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode state %q: %w", key, err)
	}
	rec := StateRecord{Key: key, Value: string(raw), UpdatedAt: time.Now()}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("store state %q: %w", key, err)
	}
	return nil
}

// Get loads the value stored under key into out. It reports whether the
// key existed.
func (s *Store) Get(key string, out any) (bool, error) {
	var rec StateRecord
	err := s.db.First(&rec, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load state %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(rec.Value), out); err != nil {
		return true, fmt.Errorf("decode state %q: %w", key, err)
	}
	return true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if err := s.db.Delete(&StateRecord{}, "key = ?", key).Error; err != nil {
		return fmt.Errorf("delete state %q: %w", key, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
