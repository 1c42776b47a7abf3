package credits

import "github.com/xraph/credits/types"

// Re-export common types for convenience so users don't have to import types package.

// Credits is re-exported from types package.
type Credits = types.Credits

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Credits constructors
var (
	Micro            = types.Micro
	FromUnits        = types.FromUnits
	FromMilli        = types.FromMilli
	ZeroCredits      = types.ZeroCredits
	ParseCredits     = types.ParseCredits
	MustParseCredits = types.MustParseCredits
	SumCredits       = types.SumCredits
)

// Re-export Money constructors
var (
	USD       = types.USD
	EUR       = types.EUR
	GBP       = types.GBP
	Fiat      = types.Fiat
	ZeroMoney = types.ZeroMoney
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
