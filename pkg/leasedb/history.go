package leasedb

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/marmos91/sharelease/pkg/leasedb/models"
)

// AddHistoryEntry serializes entry as JSON, inserts it under a unique
// cycle number, and prunes the oldest rows so at most
// retainedHistoryEntries-1 remain before this insert (leaving at most
// retainedHistoryEntries afterward). Always commits, per the LDB's
// autocommit contract for this one method.
func (o *dbOps) AddHistoryEntry(ctx context.Context, cycle int64, entry any, retainedHistoryEntries int) error {
	if retainedHistoryEntries <= 0 {
		retainedHistoryEntries = o.retainedHistoryEntries
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("leasedb: marshal history entry: %w", err)
	}

	return o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.CrawlerHistoryEntry{}).Count(&count).Error; err != nil {
			return fmt.Errorf("leasedb: count history: %w", err)
		}

		if count >= int64(retainedHistoryEntries) {
			excess := count - int64(retainedHistoryEntries) + 1
			var stale []models.CrawlerHistoryEntry
			if err := tx.Order("cycle ASC").Limit(int(excess)).Find(&stale).Error; err != nil {
				return fmt.Errorf("leasedb: find stale history: %w", err)
			}
			for _, row := range stale {
				if err := tx.Delete(&models.CrawlerHistoryEntry{}, "cycle = ?", row.Cycle).Error; err != nil {
					return fmt.Errorf("leasedb: prune history: %w", err)
				}
			}
		}

		row := models.CrawlerHistoryEntry{Cycle: cycle, JSONPayload: string(payload)}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("leasedb: insert history entry: %w", err)
		}
		return nil
	})
}

// GetHistory returns every retained history entry's raw JSON payload, keyed
// by cycle, for the caller to unmarshal into its own history type.
func (o *dbOps) GetHistory(ctx context.Context) (map[int64]string, error) {
	var rows []models.CrawlerHistoryEntry
	if err := o.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leasedb: get history: %w", err)
	}

	result := make(map[int64]string, len(rows))
	for _, row := range rows {
		result[row.Cycle] = row.JSONPayload
	}
	return result, nil
}
