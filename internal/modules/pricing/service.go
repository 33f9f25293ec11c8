// README: Pricing service resolves the active per-km rate and quotes rides.
package pricing

import (
	"context"

	"towline/internal/types"
)

// RateKey is the settings key holding the per-km rate override.
const RateKey = "pricing.rate_per_km"

// RateSource reads operator-tunable numbers; absent keys report ok=false.
type RateSource interface {
	Float(ctx context.Context, key string) (float64, bool, error)
}

type Service struct {
	rates       RateSource
	defaultRate float64
}

// NewService builds a pricing service. rates may be nil, in which case the
// default rate always applies.
func NewService(rates RateSource, defaultRate float64) *Service {
	return &Service{rates: rates, defaultRate: defaultRate}
}

func (s *Service) RatePerKm(ctx context.Context) float64 {
	if s.rates != nil {
		if v, ok, err := s.rates.Float(ctx, RateKey); err == nil && ok && v > 0 {
			return v
		}
	}
	return s.defaultRate
}

// Quote computes the billable distance and fare for a pair of waypoints.
func (s *Service) Quote(ctx context.Context, pickup, dropoff types.Waypoint) (distanceKm, fare float64, err error) {
	km := DistanceKm(pickup, dropoff)
	return km, Fare(km, s.RatePerKm(ctx)), nil
}
