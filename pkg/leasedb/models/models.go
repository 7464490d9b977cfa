// Package models defines the GORM-mapped rows of the lease database: shares,
// leases, accounts, account attributes, and crawler history, mirroring the
// tagging conventions of this codebase's control-plane models package.
package models

import "time"

// ShareState is the lifecycle state of a Share row.
type ShareState string

const (
	ShareStateComing ShareState = "COMING"
	ShareStateStable ShareState = "STABLE"
	ShareStateGoing  ShareState = "GOING"
)

// Sharetype classifies a share's content.
type Sharetype string

const (
	SharetypeImmutable Sharetype = "immutable"
	SharetypeMutable   Sharetype = "mutable"
	SharetypeCorrupted Sharetype = "corrupted"
	SharetypeUnknown   Sharetype = "unknown"
)

// Well-known account ids, seeded at schema install.
const (
	AccountIDAnonymous int64 = 0
	AccountIDStarter   int64 = 1
)

// Share is one erasure-coded fragment of a file, identified by
// (storage_index, shnum).
type Share struct {
	StorageIndex string     `gorm:"primaryKey;size:26"`
	Shnum        int        `gorm:"primaryKey"`
	Prefix       string     `gorm:"index;size:2;not null"`
	BackendKey   *string    `gorm:"size:512"`
	UsedSpace    int64      `gorm:"not null;default:0"`
	Sharetype    Sharetype  `gorm:"size:16;not null"`
	State        ShareState `gorm:"size:16;not null"`

	Leases []Lease `gorm:"foreignKey:StorageIndex,Shnum;references:StorageIndex,Shnum;constraint:OnDelete:CASCADE"`
}

// TableName pins the table name so it never drifts with GORM's pluralization
// rules across versions.
func (Share) TableName() string { return "shares" }

// Lease is an account-scoped claim on a share with a renewal and expiration
// timestamp, both seconds since the Unix epoch.
type Lease struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	StorageIndex   string `gorm:"uniqueIndex:idx_lease_identity;not null"`
	Shnum          int    `gorm:"uniqueIndex:idx_lease_identity"`
	AccountID      int64  `gorm:"uniqueIndex:idx_lease_identity;index;not null"`
	RenewalTime    int64  `gorm:"index;not null"`
	ExpirationTime int64  `gorm:"not null"`
}

// TableName pins the table name.
func (Lease) TableName() string { return "leases" }

// Account is an owner of leases, identified by its public key.
type Account struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Pubkey       string `gorm:"uniqueIndex;not null;size:512"`
	CreationTime int64  `gorm:"not null"`
}

// TableName pins the table name.
func (Account) TableName() string { return "accounts" }

// AccountAttribute is an arbitrary (account_id, name) -> value side table.
type AccountAttribute struct {
	AccountID int64  `gorm:"primaryKey"`
	Name      string `gorm:"primaryKey;size:255"`
	Value     string
}

// TableName pins the table name.
func (AccountAttribute) TableName() string { return "account_attributes" }

// CrawlerHistoryEntry is one completed cycle's statistics, serialized as
// JSON. At most retained_history_entries rows are kept; the oldest is
// pruned on insert past the limit.
type CrawlerHistoryEntry struct {
	Cycle       int64  `gorm:"primaryKey"`
	JSONPayload string `gorm:"not null"`
	CreatedAt   time.Time
}

// TableName pins the table name.
func (CrawlerHistoryEntry) TableName() string { return "crawler_history" }

// CurrentSchemaVersion is the only version this implementation understands.
// A database opened with a different value in its SchemaVersion row is
// rejected at startup.
const CurrentSchemaVersion = 1

// SchemaVersion is a single-row table recording the schema version the
// database was created with, checked on every open.
type SchemaVersion struct {
	ID      int `gorm:"primaryKey"`
	Version int `gorm:"not null"`
}

// TableName pins the table name.
func (SchemaVersion) TableName() string { return "schema_version" }

// AllModels returns every model this package defines, for AutoMigrate.
func AllModels() []any {
	return []any{
		&Share{},
		&Lease{},
		&Account{},
		&AccountAttribute{},
		&CrawlerHistoryEntry{},
		&SchemaVersion{},
	}
}
