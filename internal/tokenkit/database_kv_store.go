package tokenkit

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sqliteDialector "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var (
	errEmptyDatabaseURL    = errors.New("kv_store.empty_database_url")
	errSQLiteEmptyPath     = errors.New("kv_store.sqlite.empty_path")
	errUnsupportedNoScheme = errors.New("kv_store.unsupported_no_scheme")
)

// DatabaseKeyValueStore persists key-value entries using GORM.
type DatabaseKeyValueStore struct {
	db          *gorm.DB
	driverLabel string
	now         func() time.Time
}

// Driver exposes the selected database driver label.
func (store *DatabaseKeyValueStore) Driver() string {
	return store.driverLabel
}

type keyValueEntry struct {
	EntryKey    string `gorm:"column:entry_key;primaryKey"`
	Value       string `gorm:"column:value;not null"`
	UpdatedUnix int64  `gorm:"column:updated_unix;not null"`
}

func (keyValueEntry) TableName() string {
	return "kv_entries"
}

// NewDatabaseKeyValueStore constructs a GORM-backed store for postgres:// or sqlite:// URLs.
func NewDatabaseKeyValueStore(ctx context.Context, databaseURL string) (*DatabaseKeyValueStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("kv_store.open: %w", errEmptyDatabaseURL)
	}
	dialector, driverLabel, err := resolveDialector(databaseURL)
	if err != nil {
		return nil, err
	}
	gormDB, openErr := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if openErr != nil {
		return nil, fmt.Errorf("kv_store.open.%s: %w", driverLabel, openErr)
	}
	if migrateErr := gormDB.WithContext(ctx).AutoMigrate(&keyValueEntry{}); migrateErr != nil {
		return nil, fmt.Errorf("kv_store.migrate.%s: %w", driverLabel, migrateErr)
	}
	return &DatabaseKeyValueStore{
		db:          gormDB,
		driverLabel: driverLabel,
		now:         time.Now,
	}, nil
}

// Get returns the value stored under key.
func (store *DatabaseKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry keyValueEntry
	err := store.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("kv_store.get.%s: %w", store.driverLabel, err)
	}
	return entry.Value, true, nil
}

// Close releases the underlying connection pool.
func (store *DatabaseKeyValueStore) Close() error {
	sqlDB, err := store.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Put upserts the value stored under key; the last write wins.
func (store *DatabaseKeyValueStore) Put(ctx context.Context, key string, value string) error {
	entry := keyValueEntry{
		EntryKey:    key,
		Value:       value,
		UpdatedUnix: store.now().UTC().Unix(),
	}
	result := store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_unix"}),
	}).Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("kv_store.put.%s: %w", store.driverLabel, result.Error)
	}
	return nil
}

func resolveDialector(databaseURL string) (gorm.Dialector, string, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("kv_store.parse_url: %w", err)
	}
	if parsed.Scheme == "" {
		return nil, "", fmt.Errorf("kv_store.dialect: %w", errUnsupportedNoScheme)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "postgres", "postgresql":
		return postgres.Open(databaseURL), "postgres", nil
	case "sqlite", "sqlite3":
		dsn, dsnErr := sqliteDSN(parsed)
		if dsnErr != nil {
			return nil, "", fmt.Errorf("kv_store.sqlite: %w", dsnErr)
		}
		return sqliteDialector.Open(dsn), "sqlite", nil
	default:
		return nil, "", fmt.Errorf("kv_store.dialect.%s: %w", strings.ToLower(parsed.Scheme), ErrUnsupportedStore)
	}
}

// sqliteDSN accepts sqlite:relative.db, sqlite:///abs/path.db and sqlite://file::memory:?cache=shared.
func sqliteDSN(parsed *url.URL) (string, error) {
	location := parsed.Opaque
	if location == "" {
		location = parsed.Host + parsed.Path
	}
	if location == "" {
		return "", errSQLiteEmptyPath
	}
	if parsed.RawQuery != "" {
		location += "?" + parsed.RawQuery
	}
	return location, nil
}
