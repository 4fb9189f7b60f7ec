package domain

import (
	"time"

	"github.com/google/uuid"
)

// VerifyOutcome is the result of reconciling a listing against the ledger.
type VerifyOutcome string

const (
	VerifyActive   VerifyOutcome = "active"   // listing resource still present
	VerifySold     VerifyOutcome = "sold"     // resource gone and moment left the seller's holdings
	VerifyUnlisted VerifyOutcome = "unlisted" // resource gone but the seller still holds the moment
	VerifyUnknown  VerifyOutcome = "unknown"  // a source was unavailable; no state was changed
)

// VerifyResult is returned to callers of the on-demand verification check.
type VerifyResult struct {
	ID        uuid.UUID
	ItemID    string
	Outcome   VerifyOutcome
	Reason    string
	CheckedAt time.Time
}
