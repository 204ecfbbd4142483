package fetcher

import (
	"context"
)

// RateSource retrieves current funding rates keyed by contract name.
// Implementations never fail: an unreachable or malformed upstream yields an
// empty map, indistinguishable from every pair being absent.
type RateSource interface {
	FetchRates(ctx context.Context) map[string]float64
}

// Static serves a fixed set of rates.
type Static map[string]float64

// FetchRates returns a copy of the configured rates.
func (s Static) FetchRates(context.Context) map[string]float64 {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

var _ RateSource = Static(nil)
