package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cardparty-sync/internal/cdc"
	"github.com/DoyleJ11/cardparty-sync/internal/game"
	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
)

type stubGateway struct{}

func (stubGateway) FetchGameSnapshot(_ context.Context, gameID string) (*game.GameClientState, error) {
	return &game.GameClientState{GameID: gameID, Phase: game.PhaseLobby}, nil
}

func (stubGateway) FetchPlayerDetail(context.Context, string, string) (*game.PlayerClientState, error) {
	return nil, nil
}

func (stubGateway) FetchCardText(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func TestSession_OpenSameGame_SamePointer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSession(ctx, reconciler.Deps{Gateway: stubGateway{}, Transport: cdc.NewMemory()})

	rc1, err := s.Open(ctx, "g1")
	require.NoError(t, err)
	rc2, err := s.Open(ctx, "g1")
	require.NoError(t, err)

	if rc1 == nil || rc2 == nil || rc1 != rc2 {
		t.Fatalf("expected same reconciler pointer")
	}
	assert.Equal(t, rc1, s.Current(ctx))
}

func TestSession_SwitchingGamesTearsDownPrevious(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := cdc.NewMemory()
	s := NewSession(ctx, reconciler.Deps{Gateway: stubGateway{}, Transport: bus})

	rc1, err := s.Open(ctx, "g1")
	require.NoError(t, err)
	rc2, err := s.Open(ctx, "g2")
	require.NoError(t, err)

	select {
	case <-rc1.Done():
	case <-time.After(time.Second):
		t.Fatalf("previous reconciler still running")
	}
	assert.Equal(t, 1, bus.Subscribers())
	assert.Equal(t, "g2", rc2.GameID())
}

func TestSession_CloseGame(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewSession(ctx, reconciler.Deps{Gateway: stubGateway{}, Transport: cdc.NewMemory()})

	rc, err := s.Open(ctx, "g1")
	require.NoError(t, err)

	reply := make(chan struct{})
	s.Inbox() <- CloseGame{Reply: reply}
	<-reply

	<-rc.Done()
	assert.Nil(t, s.Current(ctx))
}

func TestSession_ShutdownClosesCurrent(t *testing.T) {
	s := NewSession(context.Background(), reconciler.Deps{Gateway: stubGateway{}, Transport: cdc.NewMemory()})
	rc, err := s.Open(context.Background(), "g1")
	require.NoError(t, err)

	s.Inbox() <- ShutdownSession{}

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session did not stop")
	}
	<-rc.Done()
}
