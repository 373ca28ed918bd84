package game

import "testing"

func TestTransitionMessage(t *testing.T) {
	cases := []struct {
		state TransitionState
		want  string
	}{
		{TransitionIdle, ""},
		{TransitionStartingGame, "Starting game..."},
		{TransitionDealingCards, "Dealing cards..."},
		{TransitionSelectingScenario, "Selecting scenario..."},
		{TransitionProcessingSubmissions, "Processing submissions..."},
		{TransitionAnnouncingWinner, "Announcing winner..."},
		{TransitionNextRound, "Starting next round..."},
		{TransitionGameEnding, "Ending game..."},
		{TransitionResettingGame, "Resetting game..."},
		{TransitionState("shuffling_deck"), DefaultTransitionMessage},
	}

	for _, tc := range cases {
		t.Run(string(tc.state), func(t *testing.T) {
			if got := TransitionMessage(tc.state); got != tc.want {
				t.Fatalf("TransitionMessage(%q) = %q, want %q", tc.state, got, tc.want)
			}
		})
	}
}

func TestSetTransition(t *testing.T) {
	s := &GameClientState{}

	if !SetTransition(s, TransitionNextRound) {
		t.Fatalf("expected change")
	}
	if s.TransitionMessage != "Starting next round..." {
		t.Fatalf("unexpected message %q", s.TransitionMessage)
	}
	if SetTransition(s, TransitionNextRound) {
		t.Fatalf("repeat should be a no-op")
	}
	SetTransition(s, "")
	if !s.TransitionState.IsIdle() || s.TransitionMessage != "" {
		t.Fatalf("empty value should reset to idle, got %q / %q", s.TransitionState, s.TransitionMessage)
	}
}

func TestParsePhase(t *testing.T) {
	if _, err := ParsePhase("judging"); err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if _, err := ParsePhase("halftime"); err != ErrUnknownPhase {
		t.Fatalf("want ErrUnknownPhase, got %v", err)
	}
}
