package router

import (
	"context"

	"github.com/Anykei/telegram-ha-bot/internal/presentation"
	"github.com/Anykei/telegram-ha-bot/internal/store"
)

func iconFor(domain, state string) string {
	return presentation.Icon(domain, "", state)
}

// stateFor humanizes a header value, preferring the user-taught alias for
// this entity and state over the generic translation.
func stateFor(ctx context.Context, repo *store.Repo, entityID, domain, state string) string {
	if alias, ok, err := repo.StateAliasFor(ctx, entityID, state); err == nil && ok {
		return alias
	}
	return presentation.StateValue(domain, "", state)
}
