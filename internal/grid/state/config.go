package state

import (
	"market_maker/internal/core"

	"github.com/shopspring/decimal"
)

// GridConfig is the fully-resolved, validated set of parameters a single
// grid strategy instance runs with. Field names track the config keys in
// spec §6 so config.go can populate this struct mechanically.
type GridConfig struct {
	MarketID  string
	Symbol    string
	Direction core.Direction

	GridCount  int
	GridAmount decimal.Decimal
	GridSpread decimal.Decimal // fractional, e.g. 0.0005 for 0.05%

	MaxTotalOrders int
	MaxPosition    decimal.Decimal
	AlertPosition  decimal.Decimal
	// DecreasePosition is the inventory threshold past which reduce mode is
	// eligible to engage; zero disables it.
	DecreasePosition decimal.Decimal

	ATRThreshold decimal.Decimal

	PriceDecimals int
	SizeDecimals  int

	ProxyURL string

	NotifierWebhook string
	NotifierKeyword string
}
