package assistant

import (
	"context"

	"github.com/garrellmacarilay/floodguard-agent/internal/geo"
	"github.com/garrellmacarilay/floodguard-agent/internal/prompts"
	"github.com/garrellmacarilay/floodguard-agent/internal/shelters"
)

// LocationPromptBuilder returns a PromptBuilder that resolves the user
// position, ranks the k nearest shelters, and appends them as context
// to every outgoing prompt.
func LocationPromptBuilder(resolver *geo.Resolver, directory []shelters.Shelter, k int) PromptBuilder {
	return func(ctx context.Context, userText string) string {
		origin := resolver.Resolve(ctx)
		ranked := shelters.RankNearest(origin, directory, k)
		return prompts.Build(userText, ranked)
	}
}
