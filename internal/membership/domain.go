// internal/membership/domain.go
package membership

import (
	"fmt"

	"github.com/google/uuid"
)

// PenaltyTier classifies a member's standing, ordered by severity.
// Members at TierSuspended or above cannot borrow.
type PenaltyTier int

const (
	TierNone PenaltyTier = iota
	TierWarning
	TierSuspended
	TierBanned
)

func (t PenaltyTier) String() string {
	switch t {
	case TierNone:
		return "NONE"
	case TierWarning:
		return "WARNING"
	case TierSuspended:
		return "SUSPENDED"
	case TierBanned:
		return "BANNED"
	default:
		return fmt.Sprintf("PenaltyTier(%d)", int(t))
	}
}

// ParseTier reads the string form produced by String.
func ParseTier(s string) (PenaltyTier, error) {
	switch s {
	case "NONE":
		return TierNone, nil
	case "WARNING":
		return TierWarning, nil
	case "SUSPENDED":
		return TierSuspended, nil
	case "BANNED":
		return TierBanned, nil
	default:
		return TierNone, fmt.Errorf("unknown penalty tier %q", s)
	}
}

// TierFromLevel converts a stored level, defaulting to TierNone for
// out-of-range values.
func TierFromLevel(level int) PenaltyTier {
	if level < int(TierNone) || level > int(TierBanned) {
		return TierNone
	}
	return PenaltyTier(level)
}

// MarshalJSON renders the tier by name.
func (t PenaltyTier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts the name form.
func (t *PenaltyTier) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("penalty tier must be a string")
	}
	parsed, err := ParseTier(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Member represents a library member.
//
// OpenLoanCount always equals the number of the member's loans with no
// return date; AccumulatedPenalty is the total assessed at close time for
// late returns. PenaltyTier follows AccumulatedPenalty through the penalty
// policy but may be administratively overridden.
type Member struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	Surname            string      `json:"surname"`
	PenaltyTier        PenaltyTier `json:"penalty_tier"`
	AccumulatedPenalty float64     `json:"accumulated_penalty"`
	OpenLoanCount      int         `json:"open_loan_count"`
}

// Validate checks intrinsic member attributes.
func (m Member) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Surname == "" {
		return fmt.Errorf("surname is required")
	}
	return nil
}

// Update describes a partial member edit. Nil fields are left alone.
// Tier is the administrative override; it does not touch the accumulated
// penalty.
type Update struct {
	Name    *string
	Surname *string
	Tier    *PenaltyTier
}
