package leasedb

import "errors"

// Sentinel errors for the LeaseDB's error taxonomy. Callers use errors.Is;
// wrapping with fmt.Errorf("...: %w", ...) preserves the sentinel through
// any number of nested calls.
var (
	// ErrShareAlreadyInDatabase is returned by AddNewShare when
	// (storage_index, shnum) already has a row.
	ErrShareAlreadyInDatabase = errors.New("leasedb: share already in database")

	// ErrNonExistentShare is returned by mutations that target a share that
	// is not present.
	ErrNonExistentShare = errors.New("leasedb: share does not exist")

	// ErrBadAccountName is returned by account creation with a malformed
	// public key.
	ErrBadAccountName = errors.New("leasedb: bad account name")

	// ErrSchemaMismatch is returned when opening a database whose schema
	// version is not the one this implementation understands. Fatal to
	// startup.
	ErrSchemaMismatch = errors.New("leasedb: schema version mismatch")
)
