package leasedb

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/marmos91/sharelease/pkg/leasedb/models"
)

// dbOps implements Transaction against a *gorm.DB, which may be either the
// top-level connection (one-shot calls) or a transaction-scoped handle
// (calls made inside WithTransaction).
type dbOps struct {
	db                     *gorm.DB
	retainedHistoryEntries int
}

// GetSharesForPrefix returns every share whose prefix column matches.
func (o *dbOps) GetSharesForPrefix(ctx context.Context, prefix string) (map[ShareKey]ShareInfo, error) {
	var rows []models.Share
	if err := o.db.WithContext(ctx).Where("prefix = ?", prefix).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leasedb: get shares for prefix %q: %w", prefix, err)
	}

	result := make(map[ShareKey]ShareInfo, len(rows))
	for _, row := range rows {
		result[ShareKey{StorageIndex: row.StorageIndex, Shnum: row.Shnum}] = ShareInfo{
			UsedSpace: row.UsedSpace,
			Sharetype: string(row.Sharetype),
		}
	}
	return result, nil
}

// AddNewShare inserts a share row in state COMING.
func (o *dbOps) AddNewShare(ctx context.Context, storageIndex string, shnum int, usedSpace int64, sharetype string) error {
	share := models.Share{
		StorageIndex: storageIndex,
		Shnum:        shnum,
		Prefix:       prefixOf(storageIndex),
		UsedSpace:    usedSpace,
		Sharetype:    models.Sharetype(sharetype),
		State:        models.ShareStateComing,
	}
	if err := o.db.WithContext(ctx).Create(&share).Error; err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: (%s, %d)", ErrShareAlreadyInDatabase, storageIndex, shnum)
		}
		return fmt.Errorf("leasedb: add new share: %w", err)
	}
	return nil
}

// MarkShareAsStable transitions a share to STABLE unless it is GOING.
func (o *dbOps) MarkShareAsStable(ctx context.Context, storageIndex string, shnum int, usedSpace int64, backendKey *string) error {
	result := o.db.WithContext(ctx).
		Model(&models.Share{}).
		Where("storage_index = ? AND shnum = ? AND state <> ?", storageIndex, shnum, models.ShareStateGoing).
		Updates(map[string]any{
			"state":       models.ShareStateStable,
			"used_space":  usedSpace,
			"backend_key": backendKey,
		})
	if result.Error != nil {
		return fmt.Errorf("leasedb: mark share stable: %w", result.Error)
	}
	if result.RowsAffected < 1 {
		return fmt.Errorf("%w: (%s, %d)", ErrNonExistentShare, storageIndex, shnum)
	}
	return nil
}

// MarkShareAsGoing transitions a share to GOING unless it is COMING.
func (o *dbOps) MarkShareAsGoing(ctx context.Context, storageIndex string, shnum int) error {
	result := o.db.WithContext(ctx).
		Model(&models.Share{}).
		Where("storage_index = ? AND shnum = ? AND state <> ?", storageIndex, shnum, models.ShareStateComing).
		Update("state", models.ShareStateGoing)
	if result.Error != nil {
		return fmt.Errorf("leasedb: mark share going: %w", result.Error)
	}
	if result.RowsAffected < 1 {
		return fmt.Errorf("%w: (%s, %d)", ErrNonExistentShare, storageIndex, shnum)
	}
	return nil
}

// RemoveDeletedShare deletes all leases on the share, then the share row.
// Idempotent: absence of the share is not an error.
func (o *dbOps) RemoveDeletedShare(ctx context.Context, storageIndex string, shnum int) error {
	if err := o.db.WithContext(ctx).
		Where("storage_index = ? AND shnum = ?", storageIndex, shnum).
		Delete(&models.Lease{}).Error; err != nil {
		return fmt.Errorf("leasedb: remove deleted share: delete leases: %w", err)
	}
	if err := o.db.WithContext(ctx).
		Where("storage_index = ? AND shnum = ?", storageIndex, shnum).
		Delete(&models.Share{}).Error; err != nil {
		return fmt.Errorf("leasedb: remove deleted share: delete share: %w", err)
	}
	return nil
}

// ChangeShareSpace updates a share's used_space.
func (o *dbOps) ChangeShareSpace(ctx context.Context, storageIndex string, shnum int, usedSpace int64) error {
	result := o.db.WithContext(ctx).
		Model(&models.Share{}).
		Where("storage_index = ? AND shnum = ?", storageIndex, shnum).
		Update("used_space", usedSpace)
	if result.Error != nil {
		return fmt.Errorf("leasedb: change share space: %w", result.Error)
	}
	if result.RowsAffected < 1 {
		return fmt.Errorf("%w: (%s, %d)", ErrNonExistentShare, storageIndex, shnum)
	}
	return nil
}

// prefixOf returns the first two characters of a base-32 storage index, the
// denormalized range-scan key stored on every share row.
func prefixOf(storageIndexB32 string) string {
	if len(storageIndexB32) < 2 {
		return storageIndexB32
	}
	return storageIndexB32[:2]
}
