package geo

import (
	"context"
	"errors"
	"testing"
	"time"
)

var apalit = Point{14.9495, 120.7587}

type errProvider struct{ err error }

func (p errProvider) CurrentPosition(ctx context.Context) (Point, error) {
	return Point{}, p.err
}

type slowProvider struct{ pos Point }

func (p slowProvider) CurrentPosition(ctx context.Context) (Point, error) {
	select {
	case <-ctx.Done():
		return Point{}, ctx.Err()
	case <-time.After(time.Hour):
		return p.pos, nil
	}
}

func TestResolveNilProviderUsesFallback(t *testing.T) {
	r := &Resolver{Fallback: apalit}
	if got := r.Resolve(context.Background()); got != apalit {
		t.Errorf("got %v, want fallback %v", got, apalit)
	}
}

func TestResolveProviderErrorUsesFallback(t *testing.T) {
	r := &Resolver{
		Provider: errProvider{err: errors.New("position unavailable")},
		Fallback: apalit,
	}
	if got := r.Resolve(context.Background()); got != apalit {
		t.Errorf("got %v, want fallback %v", got, apalit)
	}
}

func TestResolveTimeoutUsesFallback(t *testing.T) {
	r := &Resolver{
		Provider: slowProvider{pos: Point{14.95, 120.76}},
		Fallback: apalit,
		Timeout:  10 * time.Millisecond,
	}
	if got := r.Resolve(context.Background()); got != apalit {
		t.Errorf("got %v, want fallback %v", got, apalit)
	}
}

func TestResolveNearbyPositionKept(t *testing.T) {
	nearby := Point{14.9368921, 120.7579668} // ~1.4 km from fallback
	r := &Resolver{
		Provider: StaticProvider(nearby),
		Fallback: apalit,
	}
	if got := r.Resolve(context.Background()); got != nearby {
		t.Errorf("got %v, want real position %v", got, nearby)
	}
}

func TestResolveFarPositionSubstituted(t *testing.T) {
	london := Point{51.5074, -0.1278}
	r := &Resolver{
		Provider: StaticProvider(london),
		Fallback: apalit,
	}
	if got := r.Resolve(context.Background()); got != apalit {
		t.Errorf("got %v, want fallback %v for out-of-region position", got, apalit)
	}
}

func TestResolveCustomRadius(t *testing.T) {
	manila := Point{14.5995, 120.9842} // ~45 km from Apalit
	r := &Resolver{
		Provider:      StaticProvider(manila),
		Fallback:      apalit,
		MaxDistanceKm: 30,
	}
	if got := r.Resolve(context.Background()); got != apalit {
		t.Errorf("got %v, want fallback when radius tightened to 30 km", got)
	}

	r.MaxDistanceKm = 50
	if got := r.Resolve(context.Background()); got != manila {
		t.Errorf("got %v, want real position inside default radius", got)
	}
}
