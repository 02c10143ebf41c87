package prompts

import (
	"strings"
	"testing"

	"github.com/garrellmacarilay/floodguard-agent/internal/geo"
	"github.com/garrellmacarilay/floodguard-agent/internal/shelters"
)

func TestBuildEmptyCandidatesUnchanged(t *testing.T) {
	const text = "Where is the nearest evacuation center?"
	if got := Build(text, nil); got != text {
		t.Errorf("got %q, want unchanged input", got)
	}
}

func TestBuildAppendsContext(t *testing.T) {
	ranked := []shelters.Ranked{
		{
			Shelter: shelters.Shelter{
				Name:     "Sulipan Covered Court",
				City:     "Apalit",
				Status:   shelters.StatusOpen,
				Location: geo.Point{Lat: 14.9368921, Lon: 120.7579668},
			},
			DistanceKm: 1.41,
		},
	}

	got := Build("Am I in a risk zone?", ranked)

	if !strings.HasPrefix(got, "Am I in a risk zone?") {
		t.Errorf("user text not preserved as prefix: %q", got)
	}
	for _, want := range []string{"Sulipan Covered Court", "Apalit", "1.41 km", "open"} {
		if !strings.Contains(got, want) {
			t.Errorf("enriched prompt missing %q:\n%s", want, got)
		}
	}
}

func TestQuickPromptsGating(t *testing.T) {
	tests := []struct {
		transcriptLen int
		wantShown     bool
	}{
		{0, true},
		{1, true},
		{2, true},
		{3, false},
		{50, false},
	}
	for _, tc := range tests {
		got := QuickPrompts(tc.transcriptLen)
		if shown := len(got) > 0; shown != tc.wantShown {
			t.Errorf("transcript len %d: shown=%v, want %v", tc.transcriptLen, shown, tc.wantShown)
		}
	}
}
