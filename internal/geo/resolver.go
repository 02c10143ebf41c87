package geo

import (
	"context"
	"log/slog"
	"time"
)

// PositionProvider yields the device's current position. Implementations
// should honor ctx cancellation; the resolver bounds every call with its
// own timeout regardless.
type PositionProvider interface {
	CurrentPosition(ctx context.Context) (Point, error)
}

// StaticProvider is a PositionProvider that always returns a fixed point.
type StaticProvider Point

// CurrentPosition returns the fixed point.
func (p StaticProvider) CurrentPosition(ctx context.Context) (Point, error) {
	return Point(p), nil
}

// Default resolver policy values.
const (
	// DefaultResolveTimeout bounds a single position acquisition.
	DefaultResolveTimeout = 10 * time.Second

	// DefaultMaxDistanceKm is the radius beyond which a real position is
	// discarded in favor of the fallback point.
	DefaultMaxDistanceKm = 50.0
)

// Resolver acquires the user position with a fallback policy: any
// failure, and any position outside the serviced region, yields the
// configured fallback point. Resolve never fails.
type Resolver struct {
	// Provider supplies the live position. Nil means the platform has
	// no location support; the fallback is used unconditionally.
	Provider PositionProvider

	// Fallback is the reference point for the serviced municipality.
	Fallback Point

	// MaxDistanceKm overrides DefaultMaxDistanceKm when positive.
	MaxDistanceKm float64

	// Timeout overrides DefaultResolveTimeout when positive.
	Timeout time.Duration

	Logger *slog.Logger
}

// Resolve returns the user position, or the fallback when the position
// is unavailable, times out, or lies outside the serviced region.
func (r *Resolver) Resolve(ctx context.Context) Point {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Provider == nil {
		logger.Debug("no position provider, using fallback", "lat", r.Fallback.Lat, "lon", r.Fallback.Lon)
		return r.Fallback
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := r.Provider.CurrentPosition(ctx)
	if err != nil {
		logger.Warn("position acquisition failed, using fallback", "error", err)
		return r.Fallback
	}

	maxKm := r.MaxDistanceKm
	if maxKm <= 0 {
		maxKm = DefaultMaxDistanceKm
	}

	if d := DistanceKm(pos, r.Fallback); d > maxKm {
		logger.Info("position outside serviced region, using fallback",
			"distance_km", d, "max_km", maxKm)
		return r.Fallback
	}

	return pos
}
