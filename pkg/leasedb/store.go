package leasedb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/sharelease/pkg/leasedb/models"
)

// DatabaseType selects the relational backend the LeaseDB opens.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses a single-file, single-process SQLite database
	// (pure-Go driver, no cgo). Default, and the only backend that matches
	// the "opened by exactly one process" constraint literally.
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres uses PostgreSQL, for operators who want lease
	// accounting alongside other relational state.
	DatabaseTypePostgres DatabaseType = "postgres"
)

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string `mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Database     string `mapstructure:"database"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += fmt.Sprintf(" sslmode=%s", c.SSLMode)
	}
	return dsn
}

// Config selects and configures the LeaseDB's backend.
type Config struct {
	Type     DatabaseType   `mapstructure:"type"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`

	// RetainedHistoryEntries bounds the number of crawler_history rows
	// kept; default 10.
	RetainedHistoryEntries int `mapstructure:"retained_history_entries"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = DatabaseTypeSQLite
	}
	if c.Type == DatabaseTypeSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "lease.db"
	}
	if c.Type == DatabaseTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 10
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 2
		}
	}
	if c.RetainedHistoryEntries == 0 {
		c.RetainedHistoryEntries = 10
	}
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Type {
	case DatabaseTypeSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("leasedb: sqlite path is required")
		}
	case DatabaseTypePostgres:
		if c.Postgres.Host == "" {
			return fmt.Errorf("leasedb: postgres host is required")
		}
		if c.Postgres.Database == "" {
			return fmt.Errorf("leasedb: postgres database is required")
		}
		if c.Postgres.User == "" {
			return fmt.Errorf("leasedb: postgres user is required")
		}
	default:
		return fmt.Errorf("leasedb: unsupported database type: %s", c.Type)
	}
	if c.RetainedHistoryEntries < 1 {
		return fmt.Errorf("leasedb: retained_history_entries must be >= 1")
	}
	return nil
}

// gormLeaseDB implements LeaseDB on top of gorm.DB, against either SQLite or
// Postgres depending on Config.Type. It embeds dbOps so its one-shot methods
// (Shares/Leases/Accounts/History) are the same code WithTransaction uses
// against a transaction-scoped *gorm.DB.
type gormLeaseDB struct {
	*dbOps
	db *gorm.DB
}

// New opens (creating if necessary) the configured lease database, runs
// AutoMigrate, and seeds the two well-known accounts.
func New(config *Config) (LeaseDB, error) {
	if config == nil {
		config = &Config{}
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if dir := filepath.Dir(config.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("leasedb: create database directory: %w", err)
			}
		}
		// WAL for concurrent readers with a single writer; busy_timeout so a
		// contending reader/writer waits instead of failing immediately.
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())
	default:
		return nil, fmt.Errorf("leasedb: unsupported database type: %s", config.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("leasedb: connect: %w", err)
	}

	if config.Type == DatabaseTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("leasedb: underlying db: %w", err)
		}
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("leasedb: migrate: %w", err)
	}

	if err := checkSchemaVersion(db); err != nil {
		return nil, err
	}

	store := &gormLeaseDB{
		dbOps: &dbOps{db: db, retainedHistoryEntries: config.RetainedHistoryEntries},
		db:    db,
	}
	if err := store.seedAccounts(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

// checkSchemaVersion seeds the single-row schema_version table to
// models.CurrentSchemaVersion on first open, and on every later open rejects
// a database stamped with a version this implementation does not understand.
func checkSchemaVersion(db *gorm.DB) error {
	var row models.SchemaVersion
	err := db.First(&row, "id = ?", 1).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		row = models.SchemaVersion{ID: 1, Version: models.CurrentSchemaVersion}
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("leasedb: seed schema version: %w", err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("leasedb: read schema version: %w", err)
	case row.Version != models.CurrentSchemaVersion:
		return fmt.Errorf("%w: database is at version %d, this build understands version %d",
			ErrSchemaMismatch, row.Version, models.CurrentSchemaVersion)
	}
	return nil
}

// WithTransaction runs fn against a transaction-scoped dbOps, committing on
// a nil return and rolling back otherwise.
func (s *gormLeaseDB) WithTransaction(ctx context.Context, fn func(tx Transaction) error) error {
	return s.db.WithContext(ctx).Transaction(func(txDB *gorm.DB) error {
		return fn(&dbOps{db: txDB, retainedHistoryEntries: s.retainedHistoryEntries})
	})
}

// seedAccounts ensures the two well-known accounts (anonymous, starter)
// always exist, per §3's schema-install invariant.
func (s *gormLeaseDB) seedAccounts(ctx context.Context) error {
	seeds := []models.Account{
		{ID: models.AccountIDAnonymous, Pubkey: "anonymous", CreationTime: 0},
		{ID: models.AccountIDStarter, Pubkey: "starter", CreationTime: 0},
	}
	for _, seed := range seeds {
		var existing models.Account
		err := s.db.WithContext(ctx).First(&existing, "id = ?", seed.ID).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("leasedb: seed accounts: %w", err)
		}
		// An explicit INSERT, because Create omits a zero autoIncrement ID.
		if err := s.db.WithContext(ctx).Exec(
			"INSERT INTO accounts (id, pubkey, creation_time) VALUES (?, ?, ?)",
			seed.ID, seed.Pubkey, seed.CreationTime).Error; err != nil {
			return fmt.Errorf("leasedb: seed account %d: %w", seed.ID, err)
		}
	}
	if s.db.Dialector.Name() == "postgres" {
		// Move the id sequence past the explicitly inserted seed rows.
		if err := s.db.WithContext(ctx).Exec(
			"SELECT setval(pg_get_serial_sequence('accounts', 'id'), (SELECT MAX(id) FROM accounts))").Error; err != nil {
			return fmt.Errorf("leasedb: seed accounts: %w", err)
		}
	}
	return nil
}

// Healthcheck pings the underlying connection.
func (s *gormLeaseDB) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection.
func (s *gormLeaseDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isUniqueConstraintError checks whether err is a unique-constraint
// violation, across both supported backends' differing error text.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
