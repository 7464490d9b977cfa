// Package leasedb implements the transactional lease database: the
// persistent catalog of shares, leases, accounts, and crawler history that
// backs the accounting crawler's reconciliation and expiration sweep.
package leasedb

import "context"

// ShareKey identifies a share by its natural composite key.
type ShareKey struct {
	StorageIndex string
	Shnum        int
}

// ShareInfo is the value side of GetSharesForPrefix's map: a share's size
// and classification.
type ShareInfo struct {
	UsedSpace int64
	Sharetype string
}

// UnleasedShare is one row of GetUnleasedShares' result: a share with zero
// leases, including its sharetype and used space so the crawler's expiration
// sweep has everything it records when reclaiming the share (see DESIGN.md
// for why this implementation always returns the full row).
type UnleasedShare struct {
	StorageIndex string
	Shnum        int
	Sharetype    string
	UsedSpace    int64
}

// LeaseInfo is one row returned by GetLeases.
type LeaseInfo struct {
	ID             int64
	AccountID      int64
	RenewalTime    int64
	ExpirationTime int64
}

// Shares groups the share lifecycle operations.
type Shares interface {
	// GetSharesForPrefix returns every share whose prefix column matches,
	// keyed by (storage_index, shnum).
	GetSharesForPrefix(ctx context.Context, prefix string) (map[ShareKey]ShareInfo, error)

	// AddNewShare inserts a share row in state COMING with a null backend
	// key. Returns ErrShareAlreadyInDatabase if the pair already exists.
	AddNewShare(ctx context.Context, storageIndex string, shnum int, usedSpace int64, sharetype string) error

	// MarkShareAsStable transitions a share to STABLE unless it is already
	// GOING. Returns ErrNonExistentShare if no row matched.
	MarkShareAsStable(ctx context.Context, storageIndex string, shnum int, usedSpace int64, backendKey *string) error

	// MarkShareAsGoing transitions a share to GOING unless it is still
	// COMING. Returns ErrNonExistentShare if no row matched.
	MarkShareAsGoing(ctx context.Context, storageIndex string, shnum int) error

	// RemoveDeletedShare deletes all leases on the share, then the share
	// row. Idempotent: absence of the share is not an error.
	RemoveDeletedShare(ctx context.Context, storageIndex string, shnum int) error

	// ChangeShareSpace updates used_space. Returns ErrNonExistentShare on
	// miss.
	ChangeShareSpace(ctx context.Context, storageIndex string, shnum int, usedSpace int64) error
}

// Leases groups the lease lifecycle operations.
type Leases interface {
	// AddOrRenewLeases upserts a lease per (storage_index, shnum, account_id)
	// for every share selected. If shnum is nil, every share under
	// storageIndex is targeted; if none exist the call is a silent no-op.
	// If shnum is non-nil and the share does not exist, returns
	// ErrNonExistentShare. Backdating (earlier timestamps than the existing
	// lease) is permitted.
	AddOrRenewLeases(ctx context.Context, storageIndex string, shnum *int, accountID int64, renewalTime, expirationTime int64) error

	// GetLeases returns every lease an account holds on a storage index.
	GetLeases(ctx context.Context, storageIndex string, accountID int64) ([]LeaseInfo, error)

	// GetLeaseAges returns now - renewal_time for every lease on a share.
	GetLeaseAges(ctx context.Context, storageIndex string, shnum int, now int64) ([]int64, error)

	// GetUnleasedShares returns shares with zero leases, ordered by
	// (storage_index, shnum), up to limit rows (0 means unbounded).
	GetUnleasedShares(ctx context.Context, limit int) ([]UnleasedShare, error)

	// RemoveExpiredLeases deletes every lease the policy judges expired at
	// instant now and returns how many were deleted.
	RemoveExpiredLeases(ctx context.Context, policy ExpirationEvaluator, now int64) (int64, error)
}

// ExpirationEvaluator is the subset of expiration.Policy the LeaseDB needs,
// kept narrow so this package does not import expiration's validator
// dependency into every caller's build graph.
type ExpirationEvaluator interface {
	ShouldExpire(now, renewalTime, expirationTime int64) bool
}

// Accounts groups account bookkeeping operations.
type Accounts interface {
	// GetAccountCreationTime returns when an account was created.
	GetAccountCreationTime(ctx context.Context, accountID int64) (int64, error)

	// GetAllAccounts returns every account ordered by id ascending.
	GetAllAccounts(ctx context.Context) ([]Account, error)

	// CreateAccount inserts a new account with the given public key.
	// Returns ErrBadAccountName if pubkey is empty.
	CreateAccount(ctx context.Context, pubkey string, creationTime int64) (int64, error)
}

// Account is one row of GetAllAccounts.
type Account struct {
	ID     int64
	Pubkey string
}

// History groups crawler cycle history persistence.
type History interface {
	// AddHistoryEntry serializes entry as JSON and inserts it under a
	// unique cycle number, pruning the oldest rows so at most
	// retainedHistoryEntries remain afterward. Always commits.
	AddHistoryEntry(ctx context.Context, cycle int64, entry any, retainedHistoryEntries int) error

	// GetHistory returns every retained history entry, cycle -> raw JSON
	// payload, for the caller to unmarshal into its own history type.
	GetHistory(ctx context.Context) (map[int64]string, error)
}

// Transaction is the full set of operations available within one
// WithTransaction call.
type Transaction interface {
	Shares
	Leases
	Accounts
	History
}

// Transactor runs fn within a single database transaction, committing on a
// nil return and rolling back otherwise.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(tx Transaction) error) error
}

// LeaseDB is the full store: one-shot convenience methods for callers
// outside a crawler slice, plus Transactor for batched multi-step mutations.
type LeaseDB interface {
	Transaction
	Transactor

	// Healthcheck verifies the underlying connection is reachable.
	Healthcheck(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
