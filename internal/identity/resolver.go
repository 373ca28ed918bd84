// Package identity answers "which player am I" for this device in a game.
package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/game"
)

// PlayerLookup is the slice of the gateway the resolver needs.
type PlayerLookup interface {
	FetchPlayerDetail(ctx context.Context, playerID, gameID string) (*game.PlayerClientState, error)
}

type Resolver struct {
	deviceID string
	store    Store
	lookup   PlayerLookup
	logger   *zap.Logger
}

func NewResolver(deviceID string, store Store, lookup PlayerLookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{deviceID: deviceID, store: store, lookup: lookup, logger: logger}
}

// Resolve returns the player id this device holds in gameID. players is
// the roster from the snapshot just fetched. A stored id that is neither
// in the roster nor known to the gateway is forgotten; it is never retried.
func (r *Resolver) Resolve(ctx context.Context, gameID string, players []game.PlayerClientState) (string, bool, error) {
	log := r.logger.With(zap.String("game_id", gameID))

	playerID, ok, err := r.store.Get(ctx, r.deviceID, gameID)
	if err != nil {
		return "", false, fmt.Errorf("read identity: %w", err)
	}
	if !ok || playerID == "" {
		return "", false, nil
	}

	for _, p := range players {
		if p.ID == playerID {
			return playerID, true, nil
		}
	}

	// The snapshot may predate a join that just completed.
	detail, err := r.lookup.FetchPlayerDetail(ctx, playerID, gameID)
	if err != nil {
		return "", false, fmt.Errorf("verify identity %s: %w", playerID, err)
	}
	if detail != nil {
		return playerID, true, nil
	}

	log.Info("forgetting stale identity", zap.String("player_id", playerID))
	if err := r.store.Delete(ctx, r.deviceID, gameID); err != nil {
		return "", false, fmt.Errorf("clear identity: %w", err)
	}
	return "", false, nil
}

// Remember records a successful join.
func (r *Resolver) Remember(ctx context.Context, gameID, playerID string) error {
	return r.store.Put(ctx, r.deviceID, gameID, playerID)
}

func (r *Resolver) Forget(ctx context.Context, gameID string) error {
	return r.store.Delete(ctx, r.deviceID, gameID)
}
