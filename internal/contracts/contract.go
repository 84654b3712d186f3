// Package contracts implements the contract catalogue (spec component
// C2): ingesting contract metadata, indexing it by id and label, deriving
// put/call pairs and per-expiry strike ladders, and tracking expirations.
package contracts

import "time"

// ID is the exchange-assigned contract identifier.
type ID int64

// DerivativeType enumerates the contract kinds the catalogue tracks.
type DerivativeType string

// Known derivative types.
const (
	Future       DerivativeType = "future"
	Option       DerivativeType = "option"
	DayAheadSwap DerivativeType = "day_ahead_swap"
)

// Contract is one entry of the catalogue. IsCall and StrikePrice are only
// meaningful when DerivativeType == Option.
type Contract struct {
	ID              ID
	Label           string
	DerivativeType  DerivativeType
	UnderlyingAsset string
	DateExpires     time.Time
	Active          bool
	IsNextDay       bool
	IsCall          bool
	StrikePrice     int64 // cents, option strike only
}

// expiringWithin is the spec's "about to expire" window: a contract whose
// DateExpires is less than this far in the future is treated as expired
// even before an explicit contract_removed event arrives.
const expiringWithin = 10 * time.Second
