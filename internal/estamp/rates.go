package estamp

import (
	"strings"

	"lexhub.org/internal/money"
)

// dutyRate is a state's stamp duty: basis points of the consideration amount
// with a floor in minor units.
type dutyRate struct {
	BasisPoints int64
	Minimum     int64
}

// dutyRates is the static per-state rate table. Rates follow the common
// agreement-stamping slabs; states not listed fall back to defaultRate.
var dutyRates = map[string]dutyRate{
	"andhra pradesh": {BasisPoints: 500, Minimum: 10000},
	"delhi":          {BasisPoints: 300, Minimum: 5000},
	"gujarat":        {BasisPoints: 350, Minimum: 10000},
	"karnataka":      {BasisPoints: 500, Minimum: 10000},
	"kerala":         {BasisPoints: 800, Minimum: 10000},
	"maharashtra":    {BasisPoints: 500, Minimum: 10000},
	"punjab":         {BasisPoints: 600, Minimum: 10000},
	"rajasthan":      {BasisPoints: 500, Minimum: 10000},
	"tamil nadu":     {BasisPoints: 700, Minimum: 10000},
	"telangana":      {BasisPoints: 500, Minimum: 10000},
	"uttar pradesh":  {BasisPoints: 700, Minimum: 10000},
	"west bengal":    {BasisPoints: 600, Minimum: 10000},
}

var defaultRate = dutyRate{BasisPoints: 500, Minimum: 10000}

// DefaultStampValue computes the duty for a state and consideration amount
// from the static rate table.
func DefaultStampValue(state string, consideration int64) int64 {
	rate, ok := dutyRates[strings.ToLower(strings.TrimSpace(state))]
	if !ok {
		rate = defaultRate
	}
	duty := money.RoundBasisPoints(consideration, rate.BasisPoints)
	if duty < rate.Minimum {
		duty = rate.Minimum
	}
	return duty
}

// KnownState reports whether the state has an explicit rate entry.
func KnownState(state string) bool {
	_, ok := dutyRates[strings.ToLower(strings.TrimSpace(state))]
	return ok
}
