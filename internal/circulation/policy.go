// internal/circulation/policy.go
package circulation

import "libman/internal/membership"

// TierFor maps an accumulated penalty amount to a penalty tier. The tier
// is always recomputed from the running total, never stepped up or down
// independently, so it is monotonic in the amount with no hysteresis.
//
//	0        -> NONE
//	(0, 10)  -> WARNING
//	[10, 50) -> SUSPENDED
//	[50, ∞)  -> BANNED
func TierFor(accumulated float64) membership.PenaltyTier {
	switch {
	case accumulated <= 0:
		return membership.TierNone
	case accumulated < 10:
		return membership.TierWarning
	case accumulated < 50:
		return membership.TierSuspended
	default:
		return membership.TierBanned
	}
}
