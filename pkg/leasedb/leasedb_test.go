package leasedb_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/marmos91/sharelease/pkg/leasedb"
	"github.com/marmos91/sharelease/pkg/leasedb/models"
)

func newTestDB(t *testing.T) leasedb.LeaseDB {
	t.Helper()
	dir := t.TempDir()
	db, err := leasedb.New(&leasedb.Config{
		Type:   leasedb.DatabaseTypeSQLite,
		SQLite: leasedb.SQLiteConfig{Path: filepath.Join(dir, "lease.db")},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSeedAccounts(t *testing.T) {
	db := newTestDB(t)
	accounts, err := db.GetAllAccounts(context.Background())
	if err != nil {
		t.Fatalf("GetAllAccounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != 0 || accounts[1].ID != 1 {
		t.Fatalf("expected pre-seeded anonymous/starter accounts, got %+v", accounts)
	}
}

func TestAddNewShare_DuplicateRejected(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	if err := db.AddNewShare(ctx, "aaaaaaaaaaaaaaaaaaaaaaaaaa", 0, 1000, "unknown"); err != nil {
		t.Fatalf("AddNewShare: %v", err)
	}
	err := db.AddNewShare(ctx, "aaaaaaaaaaaaaaaaaaaaaaaaaa", 0, 1000, "unknown")
	if !errors.Is(err, leasedb.ErrShareAlreadyInDatabase) {
		t.Fatalf("expected ErrShareAlreadyInDatabase, got %v", err)
	}
}

func TestMarkShareAsStable_MissingShare(t *testing.T) {
	db := newTestDB(t)
	err := db.MarkShareAsStable(context.Background(), "missing", 0, 0, nil)
	if !errors.Is(err, leasedb.ErrNonExistentShare) {
		t.Fatalf("expected ErrNonExistentShare, got %v", err)
	}
}

func TestMarkShareAsGoing_GuardsComing(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	si := "bbbbbbbbbbbbbbbbbbbbbbbbbb"

	if err := db.AddNewShare(ctx, si, 0, 10, "immutable"); err != nil {
		t.Fatalf("AddNewShare: %v", err)
	}
	// Share is still COMING: mark-as-going must fail per the state machine.
	if err := db.MarkShareAsGoing(ctx, si, 0); !errors.Is(err, leasedb.ErrNonExistentShare) {
		t.Fatalf("expected going-from-coming to be rejected, got %v", err)
	}

	if err := db.MarkShareAsStable(ctx, si, 0, 10, nil); err != nil {
		t.Fatalf("MarkShareAsStable: %v", err)
	}
	if err := db.MarkShareAsGoing(ctx, si, 0); err != nil {
		t.Fatalf("MarkShareAsGoing: %v", err)
	}
}

// TestAddOrRenewLeases_Upsert mirrors spec scenario 5.
func TestAddOrRenewLeases_Upsert(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	si := "cccccccccccccccccccccccccc"
	shnum := 0

	if err := db.AddNewShare(ctx, si, shnum, 10, "immutable"); err != nil {
		t.Fatalf("AddNewShare: %v", err)
	}
	if err := db.AddOrRenewLeases(ctx, si, &shnum, 7, 1000, 2000); err != nil {
		t.Fatalf("AddOrRenewLeases (first): %v", err)
	}
	if err := db.AddOrRenewLeases(ctx, si, &shnum, 7, 3000, 4000); err != nil {
		t.Fatalf("AddOrRenewLeases (renew): %v", err)
	}

	leases, err := db.GetLeases(ctx, si, 7)
	if err != nil {
		t.Fatalf("GetLeases: %v", err)
	}
	if len(leases) != 1 {
		t.Fatalf("expected exactly one lease row, got %d", len(leases))
	}
	if leases[0].RenewalTime != 3000 || leases[0].ExpirationTime != 4000 {
		t.Fatalf("expected renewed timestamps (3000, 4000), got (%d, %d)", leases[0].RenewalTime, leases[0].ExpirationTime)
	}
}

func TestRemoveDeletedShare_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.RemoveDeletedShare(context.Background(), "nonexistent", 0); err != nil {
		t.Fatalf("RemoveDeletedShare on absent share must be a no-op, got %v", err)
	}
}

// TestHistoryPruning mirrors spec scenario 6.
func TestHistoryPruning(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	for cycle := int64(1); cycle <= 5; cycle++ {
		if err := db.AddHistoryEntry(ctx, cycle, map[string]int64{"cycle": cycle}, 3); err != nil {
			t.Fatalf("AddHistoryEntry(%d): %v", cycle, err)
		}
	}

	history, err := db.GetHistory(ctx)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(history))
	}
	for _, want := range []int64{3, 4, 5} {
		if _, ok := history[want]; !ok {
			t.Fatalf("expected cycle %d to be retained, history=%v", want, history)
		}
	}
}

func TestNew_SeedsSchemaVersionOnFirstOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lease.db")

	db := mustOpen(t, path)
	db.Close()

	raw := mustOpenRaw(t, path)
	var row models.SchemaVersion
	if err := raw.First(&row, "id = ?", 1).Error; err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if row.Version != models.CurrentSchemaVersion {
		t.Fatalf("expected seeded version %d, got %d", models.CurrentSchemaVersion, row.Version)
	}
}

func TestNew_RejectsSchemaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lease.db")

	db := mustOpen(t, path)
	db.Close()

	raw := mustOpenRaw(t, path)
	if err := raw.Model(&models.SchemaVersion{}).Where("id = ?", 1).Update("version", 99).Error; err != nil {
		t.Fatalf("bump schema_version: %v", err)
	}
	closeRaw(t, raw)

	_, err := leasedb.New(&leasedb.Config{
		Type:   leasedb.DatabaseTypeSQLite,
		SQLite: leasedb.SQLiteConfig{Path: path},
	})
	if !errors.Is(err, leasedb.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func mustOpen(t *testing.T, path string) leasedb.LeaseDB {
	t.Helper()
	db, err := leasedb.New(&leasedb.Config{
		Type:   leasedb.DatabaseTypeSQLite,
		SQLite: leasedb.SQLiteConfig{Path: path},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return db
}

// mustOpenRaw opens the sqlite file directly with gorm, bypassing
// leasedb.New's schema-version check, so tests can inspect or corrupt the
// schema_version row it maintains.
func mustOpenRaw(t *testing.T, path string) *gorm.DB {
	t.Helper()
	raw, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	return raw
}

func closeRaw(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("underlying db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close raw db: %v", err)
	}
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	si := "dddddddddddddddddddddddddd"

	sentinel := errors.New("boom")
	err := db.WithTransaction(ctx, func(tx leasedb.Transaction) error {
		if err := tx.AddNewShare(ctx, si, 0, 10, "unknown"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	shares, err := db.GetSharesForPrefix(ctx, si[:2])
	if err != nil {
		t.Fatalf("GetSharesForPrefix: %v", err)
	}
	if len(shares) != 0 {
		t.Fatalf("expected rollback to discard the share insert, got %v", shares)
	}
}
