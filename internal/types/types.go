package types

import "github.com/DoyleJ11/cardparty-sync/internal/game"

type ClientMessage struct {
	Type     string `json:"type"` // "SetTransition" | "SetLocalPlayer"
	State    string `json:"state,omitempty"`
	PlayerID string `json:"player_id,omitempty"`
}

type ServerMessage struct {
	Type    string                `json:"type"` // "StateSnapshot" | "NotInGame" | "Error"
	Version int                   `json:"version,omitempty"`
	State   *game.GameClientState `json:"state,omitempty"`
	Error   string                `json:"error,omitempty"`
}

type NavResponse struct {
	Path     string `json:"path"`
	Navigate bool   `json:"navigate"`
	Target   string `json:"target,omitempty"`
	Loading  bool   `json:"loading"`
}
