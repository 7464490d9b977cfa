package leasedb

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/marmos91/sharelease/pkg/leasedb/models"
)

// AddOrRenewLeases upserts a lease per selected share. Backdating is
// permitted: the LDB does not enforce monotonicity on renewal times.
func (o *dbOps) AddOrRenewLeases(ctx context.Context, storageIndex string, shnum *int, accountID int64, renewalTime, expirationTime int64) error {
	var shares []models.Share
	q := o.db.WithContext(ctx).Where("storage_index = ?", storageIndex)
	if shnum != nil {
		q = q.Where("shnum = ?", *shnum)
	}
	if err := q.Find(&shares).Error; err != nil {
		return fmt.Errorf("leasedb: add or renew leases: lookup shares: %w", err)
	}

	if len(shares) == 0 {
		if shnum != nil {
			return fmt.Errorf("%w: (%s, %d)", ErrNonExistentShare, storageIndex, *shnum)
		}
		// shnum == nil and no shares under the storage index: silent no-op.
		return nil
	}

	for _, share := range shares {
		var existing models.Lease
		err := o.db.WithContext(ctx).
			Where("storage_index = ? AND shnum = ? AND account_id = ?", share.StorageIndex, share.Shnum, accountID).
			First(&existing).Error

		switch {
		case err == nil:
			existing.RenewalTime = renewalTime
			existing.ExpirationTime = expirationTime
			if err := o.db.WithContext(ctx).Save(&existing).Error; err != nil {
				return fmt.Errorf("leasedb: renew lease: %w", err)
			}
		case err == gorm.ErrRecordNotFound:
			lease := models.Lease{
				StorageIndex:   share.StorageIndex,
				Shnum:          share.Shnum,
				AccountID:      accountID,
				RenewalTime:    renewalTime,
				ExpirationTime: expirationTime,
			}
			if err := o.db.WithContext(ctx).Create(&lease).Error; err != nil {
				return fmt.Errorf("leasedb: add lease: %w", err)
			}
		default:
			return fmt.Errorf("leasedb: lookup existing lease: %w", err)
		}
	}

	return nil
}

// GetLeases returns every lease an account holds on a storage index.
func (o *dbOps) GetLeases(ctx context.Context, storageIndex string, accountID int64) ([]LeaseInfo, error) {
	var rows []models.Lease
	if err := o.db.WithContext(ctx).
		Where("storage_index = ? AND account_id = ?", storageIndex, accountID).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leasedb: get leases: %w", err)
	}

	result := make([]LeaseInfo, 0, len(rows))
	for _, row := range rows {
		result = append(result, LeaseInfo{
			ID:             row.ID,
			AccountID:      row.AccountID,
			RenewalTime:    row.RenewalTime,
			ExpirationTime: row.ExpirationTime,
		})
	}
	return result, nil
}

// GetLeaseAges returns now - renewal_time for every lease on a share.
func (o *dbOps) GetLeaseAges(ctx context.Context, storageIndex string, shnum int, now int64) ([]int64, error) {
	var rows []models.Lease
	if err := o.db.WithContext(ctx).
		Where("storage_index = ? AND shnum = ?", storageIndex, shnum).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leasedb: get lease ages: %w", err)
	}

	ages := make([]int64, 0, len(rows))
	for _, row := range rows {
		ages = append(ages, now-row.RenewalTime)
	}
	return ages, nil
}

// GetUnleasedShares returns shares with zero leases via a left-anti-join on
// (storage_index, shnum), returning storage_index, shnum, sharetype and
// used_space for each (see DESIGN.md's resolution of the 2- vs 3-tuple open
// question).
func (o *dbOps) GetUnleasedShares(ctx context.Context, limit int) ([]UnleasedShare, error) {
	q := o.db.WithContext(ctx).
		Table("shares AS s").
		Joins("LEFT JOIN leases AS l ON l.storage_index = s.storage_index AND l.shnum = s.shnum").
		Where("l.id IS NULL").
		Select("s.storage_index AS storage_index, s.shnum AS shnum, s.sharetype AS sharetype, s.used_space AS used_space").
		Order("s.storage_index, s.shnum")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []struct {
		StorageIndex string
		Shnum        int
		Sharetype    string
		UsedSpace    int64
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leasedb: get unleased shares: %w", err)
	}

	result := make([]UnleasedShare, 0, len(rows))
	for _, row := range rows {
		result = append(result, UnleasedShare{
			StorageIndex: row.StorageIndex,
			Shnum:        row.Shnum,
			Sharetype:    row.Sharetype,
			UsedSpace:    row.UsedSpace,
		})
	}
	return result, nil
}

// RemoveExpiredLeases deletes every lease the policy judges expired. It
// loads every lease row, asks policy.ShouldExpire about each one in Go, and
// deletes the matching rows by id in one statement, whatever the policy's
// mode.
func (o *dbOps) RemoveExpiredLeases(ctx context.Context, policy ExpirationEvaluator, now int64) (int64, error) {
	var rows []models.Lease
	if err := o.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("leasedb: remove expired leases: scan: %w", err)
	}

	var expiredIDs []int64
	for _, row := range rows {
		if policy.ShouldExpire(now, row.RenewalTime, row.ExpirationTime) {
			expiredIDs = append(expiredIDs, row.ID)
		}
	}
	if len(expiredIDs) == 0 {
		return 0, nil
	}

	result := o.db.WithContext(ctx).Where("id IN ?", expiredIDs).Delete(&models.Lease{})
	if result.Error != nil {
		return 0, fmt.Errorf("leasedb: remove expired leases: delete: %w", result.Error)
	}
	return result.RowsAffected, nil
}
