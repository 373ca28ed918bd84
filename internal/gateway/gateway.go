// Package gateway is the request/response side of the game store: full
// snapshots, a player's private detail and card text.
package gateway

import (
	"context"

	"github.com/DoyleJ11/cardparty-sync/internal/game"
)

// Gateway lookups return a nil result with a nil error when the row does
// not exist. An error always means the lookup itself failed.
type Gateway interface {
	// FetchGameSnapshot loads the joined view of a game. An empty gameID
	// selects the most recent game that is not over.
	FetchGameSnapshot(ctx context.Context, gameID string) (*game.GameClientState, error)
	FetchPlayerDetail(ctx context.Context, playerID, gameID string) (*game.PlayerClientState, error)
	FetchCardText(ctx context.Context, cardID string) (string, bool, error)
}
