/*
errors.go - Centralized error types for the depreciation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Stores and the engine wrap these errors with additional context.

ERROR CATEGORIES:
  1. Ledger errors - Posting conflicts (already posted, lost book value race)
  2. Configuration errors - Asset parameters that cannot be depreciated
  3. Lookup errors - Missing assets or tenants

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, generic.ErrAlreadyPosted) {
        // another run posted this asset for the period; nothing to do
    }

SEE ALSO:
  - depreciation/engine.go: Classifies per-asset outcomes with these errors
  - store/sqlite/sqlite.go: Maps UNIQUE violations to ErrAlreadyPosted
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrAlreadyPosted is returned when a ledger entry already exists for the
	// (asset, period type, period start) tuple. This is expected behavior for
	// retried or overlapping runs.
	ErrAlreadyPosted = errors.New("depreciation already posted for period")

	// ErrConcurrentModification is returned when an asset's book value changed
	// between the eligibility read and the posting transaction.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrAssetNotFound is returned when a referenced asset doesn't exist.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrInvalidAssetConfig is returned when an asset's financial parameters
	// cannot produce a valid depreciation amount.
	ErrInvalidAssetConfig = errors.New("invalid asset configuration")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrTenantRequired is returned when a run is requested without a tenant.
	ErrTenantRequired = errors.New("tenant is required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ConfigError attributes a configuration problem to one asset field.
type ConfigError struct {
	AssetID AssetID
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("asset %s: invalid %s: %s", e.AssetID, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidAssetConfig
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on a later run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAssetConfig) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrTenantRequired)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAssetNotFound)
}
