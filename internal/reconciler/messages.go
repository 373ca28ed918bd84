package reconciler

import (
	"github.com/DoyleJ11/cardparty-sync/internal/cdc"
	"github.com/DoyleJ11/cardparty-sync/internal/game"
)

type Msg interface{ isReconcilerMsg() }

type Subscribe struct {
	ClientID string
	Outbox   chan Snapshot // where this consumer wants to receive snapshots
}

func (Subscribe) isReconcilerMsg() {}

type Unsubscribe struct{ ClientID string }

func (Unsubscribe) isReconcilerMsg() {}

// SetTransition is sent by consumers; they are also responsible for
// sending TransitionIdle once the phase work is done.
type SetTransition struct {
	State game.TransitionState
}

func (SetTransition) isReconcilerMsg() {}

// SetLocalPlayer records a successful join from this device.
type SetLocalPlayer struct {
	PlayerID string
	Reply    chan error
}

func (SetLocalPlayer) isReconcilerMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isReconcilerMsg() {}

type Shutdown struct{}

func (Shutdown) isReconcilerMsg() {}

// Internal messages: transport deliveries and gateway completions.

type changeArrived struct{ ev cdc.Event }

func (changeArrived) isReconcilerMsg() {}

type snapshotLoaded struct {
	seq   int
	state *game.GameClientState
	err   error
}

func (snapshotLoaded) isReconcilerMsg() {}

type handLoaded struct {
	seq      int
	playerID string
	detail   *game.PlayerClientState
	err      error
}

func (handLoaded) isReconcilerMsg() {}

type cardTextLoaded struct {
	sub   game.Submission
	found bool
	err   error
}

func (cardTextLoaded) isReconcilerMsg() {}

// Snapshot is what subscribers receive. A nil State means there is no
// active game.
type Snapshot struct {
	Version int
	State   *game.GameClientState
}

type View struct {
	Version    int
	NumClients int
	Loaded     bool
	State      *game.GameClientState
}
