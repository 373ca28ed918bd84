package game

type TransitionState string

const (
	TransitionIdle                  TransitionState = "idle"
	TransitionStartingGame          TransitionState = "starting_game"
	TransitionDealingCards          TransitionState = "dealing_cards"
	TransitionSelectingScenario     TransitionState = "selecting_scenario"
	TransitionProcessingSubmissions TransitionState = "processing_submissions"
	TransitionAnnouncingWinner      TransitionState = "announcing_winner"
	TransitionNextRound             TransitionState = "next_round"
	TransitionGameEnding            TransitionState = "game_ending"
	TransitionResettingGame         TransitionState = "resetting_game"
)

const DefaultTransitionMessage = "Loading..."

var transitionMessages = map[TransitionState]string{
	TransitionIdle:                  "",
	TransitionStartingGame:          "Starting game...",
	TransitionDealingCards:          "Dealing cards...",
	TransitionSelectingScenario:     "Selecting scenario...",
	TransitionProcessingSubmissions: "Processing submissions...",
	TransitionAnnouncingWinner:      "Announcing winner...",
	TransitionNextRound:             "Starting next round...",
	TransitionGameEnding:            "Ending game...",
	TransitionResettingGame:         "Resetting game...",
}

// TransitionMessage projects a transition state onto its display text.
// Values this client does not know about get the generic message.
func TransitionMessage(ts TransitionState) string {
	if msg, ok := transitionMessages[ts]; ok {
		return msg
	}
	return DefaultTransitionMessage
}

// IsIdle treats the empty value as idle, which is what a freshly
// fetched snapshot carries.
func (ts TransitionState) IsIdle() bool {
	return ts == TransitionIdle || ts == ""
}

// SetTransition moves s to ts and refreshes the message.
func SetTransition(s *GameClientState, ts TransitionState) bool {
	if ts == "" {
		ts = TransitionIdle
	}
	msg := TransitionMessage(ts)
	if s.TransitionState == ts && s.TransitionMessage == msg {
		return false
	}
	s.TransitionState = ts
	s.TransitionMessage = msg
	return true
}
