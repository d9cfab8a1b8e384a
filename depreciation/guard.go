package depreciation

import (
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// ELIGIBILITY SELECTOR
// =============================================================================

// IsCandidate is the uniform eligibility predicate: active, not deleted,
// method set, purchase price set and positive. Stores may push the same
// predicate into their query; the engine applies it again in memory.
//
// An active asset whose stored row could not be decoded is always a
// candidate, so the run reports it as failed instead of dropping it.
func IsCandidate(a Asset) bool {
	if a.Status != StatusActive || a.DeletedAt != nil {
		return false
	}
	if a.DecodeErr != nil {
		return true
	}
	return a.Method != "" &&
		a.PurchasePrice.Valid &&
		a.PurchasePrice.Decimal.IsPositive()
}

// SelectCandidates filters assets down to the candidate set for a run.
func SelectCandidates(assets []Asset) []Asset {
	out := make([]Asset, 0, len(assets))
	for _, a := range assets {
		if IsCandidate(a) {
			out = append(out, a)
		}
	}
	return out
}

// =============================================================================
// IDEMPOTENCY GUARD
// =============================================================================

// Skip records a candidate excluded by the guard.
type Skip struct {
	AssetID generic.AssetID
	Reason  SkipReason
}

// Guard removes candidates that must not be posted for a period.
//
// posted holds the assets that already have a live entry for the period. This
// check is a fast path only: the storage uniqueness constraint is the
// authoritative guard, and a lost race surfaces as generic.ErrAlreadyPosted
// at write time.
func Guard(candidates []Asset, posted map[generic.AssetID]bool, period generic.Period) (eligible []Asset, skipped []Skip) {
	for _, a := range candidates {
		switch {
		case posted[a.ID]:
			skipped = append(skipped, Skip{AssetID: a.ID, Reason: SkipAlreadyPosted})
		case a.DecodeErr != nil:
			// in-service date and book value are unreliable; post fails it
			eligible = append(eligible, a)
		case !a.InServiceDate.IsZero() && a.InServiceDate.After(period.End):
			skipped = append(skipped, Skip{AssetID: a.ID, Reason: SkipNotInService})
		case a.FullyDepreciated():
			skipped = append(skipped, Skip{AssetID: a.ID, Reason: SkipFullyDepreciated})
		default:
			eligible = append(eligible, a)
		}
	}
	return eligible, skipped
}
