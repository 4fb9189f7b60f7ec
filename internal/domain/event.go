package domain

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerEvent is a single marketplace event decoded from the ledger gateway.
// The opaque, schema-tagged payload has already been flattened into Fields;
// all values are the string form emitted by the chain.
type LedgerEvent struct {
	Type        string // fully-qualified on-chain event type
	BlockHeight uint64
	TxID        string
	EventIndex  int
	Fields      map[string]string
}

// Str returns the named field, or "" when absent.
func (e LedgerEvent) Str(name string) string {
	return e.Fields[name]
}

// Uint parses the named field as an unsigned integer, returning 0 when the
// field is absent or malformed.
func (e LedgerEvent) Uint(name string) uint64 {
	v, err := strconv.ParseUint(e.Fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Int parses the named field as a signed integer, returning 0 when the field
// is absent or malformed.
func (e LedgerEvent) Int(name string) int64 {
	v, err := strconv.ParseInt(e.Fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// Decimal parses the named field as a decimal, returning zero when the field
// is absent or malformed.
func (e LedgerEvent) Decimal(name string) decimal.Decimal {
	v, err := decimal.NewFromString(e.Fields[name])
	if err != nil {
		return decimal.Decimal{}
	}
	return v
}

// Bool parses the named field as a boolean, returning false when the field is
// absent or malformed.
func (e LedgerEvent) Bool(name string) bool {
	v, err := strconv.ParseBool(e.Fields[name])
	if err != nil {
		return false
	}
	return v
}

// EventWindow is a half-open block range (Start, End] fetched in one poll
// cycle, together with the events the gateway returned for it.
type EventWindow struct {
	Start     uint64
	End       uint64
	Events    []LedgerEvent
	FetchedAt time.Time
}
