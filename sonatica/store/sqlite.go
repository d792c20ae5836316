package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ResumeRecordModel is one stored blob.
type ResumeRecordModel struct {
	Key       string     `gorm:"column:record_key;primaryKey;size:255"`
	Value     []byte     `gorm:"not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (ResumeRecordModel) TableName() string {
	return "resume_records"
}

// SQLite stores blobs in a local database file, for deployments without
// Redis that still need crash resume.
type SQLite struct {
	db  *gorm.DB
	ns  Namespace
	ttl time.Duration
	now func() time.Time
}

// NewSQLite opens (and migrates) the database at path.
func NewSQLite(path string, ns Namespace, ttl time.Duration, gormLogger logger.Interface) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}
	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormLogger,
	})
	if err != nil {
		return nil, err
	}
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if err := db.AutoMigrate(&ResumeRecordModel{}); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	return &SQLite{db: db, ns: ns, ttl: ttl, now: time.Now}, nil
}

func (s *SQLite) Get(ctx context.Context, key string, dst any) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	var record ResumeRecordModel
	err := s.db.WithContext(ctx).Where("record_key = ?", s.ns.Key(key)).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if record.ExpiresAt != nil && s.now().After(*record.ExpiresAt) {
		if err := s.db.WithContext(ctx).Delete(&ResumeRecordModel{}, "record_key = ?", record.Key).Error; err != nil {
			return false, err
		}
		return false, nil
	}
	if err := json.Unmarshal(record.Value, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLite) Set(ctx context.Context, key string, value any) error {
	if err := checkKey(key); err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	record := ResumeRecordModel{Key: s.ns.Key(key), Value: raw, UpdatedAt: s.now()}
	if expires(key) {
		at := s.now().Add(s.ttl)
		record.ExpiresAt = &at
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "record_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&record).Error
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&ResumeRecordModel{}, "record_key = ?", s.ns.Key(key)).Error
}

// Sweep removes expired records and returns how many were deleted.
func (s *SQLite) Sweep(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at < ?", s.now()).Delete(&ResumeRecordModel{})
	return res.RowsAffected, res.Error
}

func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
