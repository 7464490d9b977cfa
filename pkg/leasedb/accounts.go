package leasedb

import (
	"context"
	"fmt"
	"strings"

	"github.com/marmos91/sharelease/pkg/leasedb/models"
)

// GetAccountCreationTime returns when an account was created.
func (o *dbOps) GetAccountCreationTime(ctx context.Context, accountID int64) (int64, error) {
	var account models.Account
	if err := o.db.WithContext(ctx).First(&account, "id = ?", accountID).Error; err != nil {
		return 0, fmt.Errorf("leasedb: get account creation time: %w", err)
	}
	return account.CreationTime, nil
}

// GetAllAccounts returns every account ordered by id ascending.
func (o *dbOps) GetAllAccounts(ctx context.Context) ([]Account, error) {
	var rows []models.Account
	if err := o.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("leasedb: get all accounts: %w", err)
	}

	result := make([]Account, 0, len(rows))
	for _, row := range rows {
		result = append(result, Account{ID: row.ID, Pubkey: row.Pubkey})
	}
	return result, nil
}

// CreateAccount inserts a new account. Returns ErrBadAccountName if pubkey
// is blank.
func (o *dbOps) CreateAccount(ctx context.Context, pubkey string, creationTime int64) (int64, error) {
	if strings.TrimSpace(pubkey) == "" {
		return 0, ErrBadAccountName
	}

	account := models.Account{Pubkey: pubkey, CreationTime: creationTime}
	if err := o.db.WithContext(ctx).Create(&account).Error; err != nil {
		if isUniqueConstraintError(err) {
			return 0, fmt.Errorf("%w: pubkey already registered", ErrBadAccountName)
		}
		return 0, fmt.Errorf("leasedb: create account: %w", err)
	}
	return account.ID, nil
}
