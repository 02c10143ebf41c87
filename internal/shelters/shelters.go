// Package shelters provides the evacuation center directory and
// proximity ranking.
package shelters

import (
	"sort"

	"github.com/garrellmacarilay/floodguard-agent/internal/geo"
)

// Status describes a shelter's current intake state.
type Status string

const (
	StatusOpen   Status = "Open"
	StatusFull   Status = "Full"
	StatusClosed Status = "Closed"
)

// Shelter is a static evacuation center record. Distance is never
// stored here; it is request-scoped and lives on [Ranked].
type Shelter struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	City     string    `json:"city"`
	Location geo.Point `json:"location"`
	Phone    string    `json:"phone"`
	Status   Status    `json:"status"`
}

// Ranked pairs a shelter with its distance from a request origin.
type Ranked struct {
	Shelter
	DistanceKm float64 `json:"distance_km"`
}

// DefaultRankLimit caps RankNearest results when k is not positive.
const DefaultRankLimit = 8

// RankNearest computes the distance from origin to every candidate,
// sorts ascending (stable, so ties keep input order), and returns at
// most k results. The input slice is not modified.
func RankNearest(origin geo.Point, candidates []Shelter, k int) []Ranked {
	if k <= 0 {
		k = DefaultRankLimit
	}

	ranked := make([]Ranked, len(candidates))
	for i, c := range candidates {
		ranked[i] = Ranked{
			Shelter:    c,
			DistanceKm: geo.DistanceKm(origin, c.Location),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
