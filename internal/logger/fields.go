package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the lease accounting core.
// Use these keys consistently so cycle/share/account events can be aggregated
// and queried the same way regardless of which component emitted them.
const (
	// ========================================================================
	// Crawler
	// ========================================================================
	KeyCycle       = "cycle"        // Crawler cycle number
	KeyPrefix      = "prefix"       // Two-character base-32 prefix being processed
	KeySlice       = "slice"        // Slice sequence number within a cycle
	KeyDurationMs  = "duration_ms"  // Operation duration in milliseconds

	// ========================================================================
	// Share / Lease identity
	// ========================================================================
	KeyStorageIndex = "storage_index" // Base-32 rendering of a share's storage index
	KeyShnum        = "shnum"         // Share number within its storage index
	KeyAccountID    = "account_id"    // Owning account id
	KeySharetype    = "sharetype"     // immutable, mutable, corrupted, unknown
	KeyState        = "state"         // COMING, STABLE, GOING
	KeyUsedSpace    = "used_space"    // Share size in bytes

	// ========================================================================
	// Backend
	// ========================================================================
	KeyBackend = "backend" // Backend kind: disk, s3
	KeyBucket  = "bucket"  // S3 bucket name

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyError     = "error"     // Error message
	KeySource    = "source"    // Component emitting the log line
	KeyOperation = "operation" // Sub-operation name
)

// Cycle returns a slog.Attr for the crawler cycle number.
func Cycle(n int) slog.Attr {
	return slog.Int(KeyCycle, n)
}

// Prefix returns a slog.Attr for the prefix under scan.
func Prefix(p string) slog.Attr {
	return slog.String(KeyPrefix, p)
}

// StorageIndex returns a slog.Attr for a base-32 storage index.
func StorageIndex(siB32 string) slog.Attr {
	return slog.String(KeyStorageIndex, siB32)
}

// Shnum returns a slog.Attr for a share number.
func Shnum(shnum int) slog.Attr {
	return slog.Int(KeyShnum, shnum)
}

// AccountID returns a slog.Attr for an account id.
func AccountID(id int64) slog.Attr {
	return slog.Int64(KeyAccountID, id)
}

// Sharetype returns a slog.Attr for a share's type.
func Sharetype(t string) slog.Attr {
	return slog.String(KeySharetype, t)
}

// UsedSpace returns a slog.Attr for a share's size in bytes.
func UsedSpace(bytes int64) slog.Attr {
	return slog.Int64(KeyUsedSpace, bytes)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Source returns a slog.Attr for the emitting component.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}

// Operation returns a slog.Attr for a sub-operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Bucket returns a slog.Attr for an S3 bucket name.
func Bucket(name string) slog.Attr {
	return slog.String(KeyBucket, name)
}
