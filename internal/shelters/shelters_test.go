package shelters

import (
	"testing"

	"github.com/garrellmacarilay/floodguard-agent/internal/geo"
)

var apalitCenter = geo.Point{Lat: 14.9495, Lon: 120.7587}

func TestRankNearestOrdering(t *testing.T) {
	ranked := RankNearest(apalitCenter, Directory(), 0)

	if len(ranked) == 0 {
		t.Fatal("no results")
	}
	for i := 1; i < len(ranked); i++ {
		if ranked[i].DistanceKm < ranked[i-1].DistanceKm {
			t.Errorf("distances not non-decreasing at %d: %v after %v",
				i, ranked[i].DistanceKm, ranked[i-1].DistanceKm)
		}
	}

	// From the municipal center, Sulipan Covered Court is closer than
	// the Capalangan evacuation center.
	var sulipan, capalangan = -1, -1
	for i, r := range ranked {
		switch r.Name {
		case "Sulipan Covered Court":
			sulipan = i
		case "Capalangan Permanent Evacuation Center":
			capalangan = i
		}
	}
	if sulipan == -1 || capalangan == -1 {
		t.Fatalf("expected shelters missing from ranking: sulipan=%d capalangan=%d", sulipan, capalangan)
	}
	if sulipan > capalangan {
		t.Errorf("Sulipan ranked at %d, after Capalangan at %d", sulipan, capalangan)
	}
}

func TestRankNearestLimit(t *testing.T) {
	dir := Directory()

	tests := []struct {
		name string
		k    int
		want int
	}{
		{"limit below size", 2, 2},
		{"limit above size", 100, len(dir)},
		{"zero uses default cap", 0, min(len(dir), DefaultRankLimit)},
		{"negative uses default cap", -1, min(len(dir), DefaultRankLimit)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := RankNearest(apalitCenter, dir, tc.k)
			if len(got) != tc.want {
				t.Errorf("got %d results, want %d", len(got), tc.want)
			}
		})
	}
}

func TestRankNearestDoesNotMutateInput(t *testing.T) {
	dir := Directory()
	first := dir[0].Name
	RankNearest(apalitCenter, dir, 3)
	if dir[0].Name != first {
		t.Errorf("input slice reordered: got %q first, want %q", dir[0].Name, first)
	}
}

func TestDirectoryReturnsCopy(t *testing.T) {
	a := Directory()
	a[0].Name = "mutated"
	b := Directory()
	if b[0].Name == "mutated" {
		t.Error("Directory returned shared backing data")
	}
}

func TestRankNearestEmptyCandidates(t *testing.T) {
	if got := RankNearest(apalitCenter, nil, 5); len(got) != 0 {
		t.Errorf("got %d results for empty candidates, want 0", len(got))
	}
}
