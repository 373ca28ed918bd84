package game

import "errors"

var ErrUnknownPhase = errors.New("unknown game phase")
var ErrMissingPlayerID = errors.New("row has no player id")

type Phase string

const (
	PhaseLobby              Phase = "lobby"
	PhaseCategorySelection  Phase = "category_selection"
	PhasePlayerSubmission   Phase = "player_submission"
	PhaseJudging            Phase = "judging"
	PhaseWinnerAnnouncement Phase = "winner_announcement"
	PhaseGameOver           Phase = "game_over"
)

func ParsePhase(s string) (Phase, error) {
	switch p := Phase(s); p {
	case PhaseLobby, PhaseCategorySelection, PhasePlayerSubmission,
		PhaseJudging, PhaseWinnerAnnouncement, PhaseGameOver:
		return p, nil
	}
	return "", ErrUnknownPhase
}

type Card struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type PlayerClientState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar"`
	Score   int    `json:"score"`
	IsJudge bool   `json:"is_judge"`
	IsReady bool   `json:"is_ready"`
	Hand    []Card `json:"hand"` // local player only
}

type Submission struct {
	PlayerID string `json:"player_id"`
	CardID   string `json:"card_id"`
	CardText string `json:"card_text"`
}

type GameClientState struct {
	GameID            string              `json:"game_id"`
	Phase             Phase               `json:"game_phase"`
	TransitionState   TransitionState     `json:"transition_state"`
	TransitionMessage string              `json:"transition_message"`
	Round             int                 `json:"round"`
	Category          string              `json:"category,omitempty"`
	Players           []PlayerClientState `json:"players"`
	CurrentJudgeID    string              `json:"current_judge_id,omitempty"`
	Submissions       []Submission        `json:"submissions"`
	WinningPlayerID   string              `json:"winning_player_id,omitempty"`
	LocalPlayerID     string              `json:"local_player_id,omitempty"`
	Version           int                 `json:"version"`
}

// Clone returns a deep copy so published snapshots never share slices
// with the canonical state.
func (s *GameClientState) Clone() *GameClientState {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = make([]PlayerClientState, len(s.Players))
	for i, p := range s.Players {
		if p.Hand != nil {
			p.Hand = append([]Card(nil), p.Hand...)
		}
		c.Players[i] = p
	}
	c.Submissions = append([]Submission{}, s.Submissions...)
	return &c
}

func (s *GameClientState) PlayerIndex(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *GameClientState) Player(id string) (PlayerClientState, bool) {
	if i := s.PlayerIndex(id); i >= 0 {
		return s.Players[i], true
	}
	return PlayerClientState{}, false
}

func (s *GameClientState) HasSubmission(playerID, cardID string) bool {
	for _, sub := range s.Submissions {
		if sub.PlayerID == playerID && sub.CardID == cardID {
			return true
		}
	}
	return false
}

func (s *GameClientState) HasLocalPlayer() bool {
	return s.LocalPlayerID != ""
}

// DeriveJudges recomputes IsJudge for every player from CurrentJudgeID.
func (s *GameClientState) DeriveJudges() {
	for i := range s.Players {
		s.Players[i].IsJudge = s.Players[i].ID == s.CurrentJudgeID
	}
}
