// Package expiration implements the pure lease-expiration predicate consumed
// by the accounting crawler's sweep pass. A Policy is immutable after
// construction; should_expire-equivalent evaluation never mutates state and
// depends only on its three arguments plus the policy's own configuration.
package expiration

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Mode selects how a lease's age is judged against the policy.
type Mode string

const (
	// ModeAge expires leases based on the share's own renewal/expiration
	// timestamps, optionally overridden by a fixed lease duration.
	ModeAge Mode = "age"

	// ModeCutoffDate expires every lease renewed before a fixed instant,
	// regardless of the lease's own expiration timestamp.
	ModeCutoffDate Mode = "cutoff-date"
)

// Sharetype enumerates the share classifications a policy can apply to.
type Sharetype string

const (
	SharetypeMutable   Sharetype = "mutable"
	SharetypeImmutable Sharetype = "immutable"
)

var validate = validator.New()

// config is the struct-tag-validated shape of Policy's constructor
// arguments. It exists separately from Policy so validator can check
// cross-field constraints before the exported type is ever constructed.
type config struct {
	Enabled               bool   `validate:"-"`
	Mode                  Mode   `validate:"required,oneof=age cutoff-date"`
	OverrideLeaseDuration *int64 `validate:"omitempty,gte=0"`
	CutoffDate            *int64 `validate:"omitempty,gte=0"`
}

// Policy is the immutable expiration decision for the accounting crawler's
// sweep pass, ported from the original ExpirationPolicy with a single
// behavioral resolution: remove_expired_leases is treated as fully specified
// by the three should_expire branches below rather than left unimplemented.
type Policy struct {
	enabled               bool
	mode                  Mode
	overrideLeaseDuration *int64
	cutoffDate            *int64
}

// New constructs a Policy, validating the mode-dependent field combinations:
// OverrideLeaseDuration is only meaningful in ModeAge, CutoffDate is required
// in ModeCutoffDate and forbidden otherwise.
func New(enabled bool, mode Mode, overrideLeaseDuration, cutoffDate *int64) (*Policy, error) {
	cfg := config{
		Enabled:               enabled,
		Mode:                  mode,
		OverrideLeaseDuration: overrideLeaseDuration,
		CutoffDate:            cutoffDate,
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("expiration: invalid policy configuration: %w", err)
	}

	switch mode {
	case ModeAge:
		if cutoffDate != nil {
			return nil, fmt.Errorf("expiration: cutoff_date is forbidden in mode %q", ModeAge)
		}
	case ModeCutoffDate:
		if cutoffDate == nil {
			return nil, fmt.Errorf("expiration: cutoff_date is required in mode %q", ModeCutoffDate)
		}
		if overrideLeaseDuration != nil {
			return nil, fmt.Errorf("expiration: override_lease_duration is forbidden in mode %q", ModeCutoffDate)
		}
	default:
		return nil, fmt.Errorf("expiration: unknown mode %q", mode)
	}

	return &Policy{
		enabled:               enabled,
		mode:                  mode,
		overrideLeaseDuration: overrideLeaseDuration,
		cutoffDate:            cutoffDate,
	}, nil
}

// ShouldExpire reports whether a lease with the given renewal and expiration
// timestamps has expired at instant now, under this policy.
func (p *Policy) ShouldExpire(now, renewalTime, expirationTime int64) bool {
	if !p.enabled {
		return false
	}

	switch p.mode {
	case ModeAge:
		if p.overrideLeaseDuration == nil {
			return now >= expirationTime
		}
		return now >= renewalTime+*p.overrideLeaseDuration
	case ModeCutoffDate:
		return renewalTime < *p.cutoffDate
	default:
		return false
	}
}

// IsEnabled reports whether the policy will ever expire leases.
func (p *Policy) IsEnabled() bool {
	return p.enabled
}

// Parameters is the four-tuple the crawler embeds verbatim in per-cycle
// history entries.
type Parameters struct {
	Mode                  Mode
	OverrideLeaseDuration *int64
	CutoffDate            *int64
	SubjectSharetypes     []Sharetype
}

// GetParameters returns the policy's configuration, including the set of
// sharetypes subject to expiration: both mutable and immutable when enabled,
// empty when disabled.
func (p *Policy) GetParameters() Parameters {
	params := Parameters{
		Mode:                  p.mode,
		OverrideLeaseDuration: p.overrideLeaseDuration,
		CutoffDate:            p.cutoffDate,
	}
	if p.enabled {
		params.SubjectSharetypes = []Sharetype{SharetypeMutable, SharetypeImmutable}
	}
	return params
}
