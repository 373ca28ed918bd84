package game

import "fmt"

// Merge functions mutate one well-defined sub-field of the state and
// report whether anything changed. All of them are idempotent.

// MergePlayer updates an existing player in place or appends a new one.
func MergePlayer(s *GameClientState, row PlayerRow) (bool, error) {
	if row.ID == "" {
		return false, ErrMissingPlayerID
	}

	i := s.PlayerIndex(row.ID)
	if i < 0 {
		p := PlayerClientState{ID: row.ID, IsJudge: row.ID == s.CurrentJudgeID}
		applyPlayerRow(&p, row)
		s.Players = append(s.Players, p)
		return true, nil
	}

	before := s.Players[i]
	p := &s.Players[i]
	applyPlayerRow(p, row)
	p.IsJudge = p.ID == s.CurrentJudgeID
	return before.Name != p.Name || before.Avatar != p.Avatar || before.Score != p.Score ||
		before.IsReady != p.IsReady || before.IsJudge != p.IsJudge, nil
}

func applyPlayerRow(p *PlayerClientState, row PlayerRow) {
	if row.Name != nil {
		p.Name = *row.Name
	}
	if row.AvatarSrc != nil {
		p.Avatar = *row.AvatarSrc
	}
	if row.Score != nil && *row.Score >= 0 {
		p.Score = *row.Score
	}
	if row.IsReady != nil {
		p.IsReady = *row.IsReady
	}
}

// SubmissionCardID returns the card id a response is recorded under.
// Free-text responses have no card, so one is synthesized per player and round.
func SubmissionCardID(row ResponseRow, currentRound int) string {
	if row.ResponseCardID != nil && *row.ResponseCardID != "" {
		return *row.ResponseCardID
	}
	round := currentRound
	if row.RoundNumber != nil {
		round = *row.RoundNumber
	}
	return fmt.Sprintf("custom-%s-%d", row.PlayerID, round)
}

// SubmittedText returns the free text of a response, if any.
func SubmittedText(row ResponseRow) (string, bool) {
	if row.SubmittedText == nil || *row.SubmittedText == "" {
		return "", false
	}
	return *row.SubmittedText, true
}

// AddSubmission appends sub unless (PlayerID, CardID) is already recorded.
func AddSubmission(s *GameClientState, sub Submission) bool {
	if s.HasSubmission(sub.PlayerID, sub.CardID) {
		return false
	}
	s.Submissions = append(s.Submissions, sub)
	return true
}

// ReplaceHand swaps the local player's hand wholesale. Hands for anyone
// else are never stored.
func ReplaceHand(s *GameClientState, playerID string, hand []Card) bool {
	if playerID == "" || playerID != s.LocalPlayerID {
		return false
	}
	i := s.PlayerIndex(playerID)
	if i < 0 {
		return false
	}
	if hand == nil {
		hand = []Card{}
	}
	s.Players[i].Hand = append([]Card{}, hand...)
	return true
}

// ReplaceSnapshot builds the new canonical state from a freshly fetched
// snapshot. Fields the reconciler owns (identity, local hand, transition)
// carry over from prev; hands of other players are dropped.
func ReplaceSnapshot(prev, next *GameClientState) *GameClientState {
	out := next.Clone()
	if out.Submissions == nil {
		out.Submissions = []Submission{}
	}
	if prev != nil {
		if out.LocalPlayerID == "" {
			out.LocalPlayerID = prev.LocalPlayerID
		}
		out.TransitionState = prev.TransitionState
		out.TransitionMessage = prev.TransitionMessage
		out.Version = prev.Version
	}
	if out.TransitionState == "" {
		out.TransitionState = TransitionIdle
	}

	var prevHand []Card
	if prev != nil && prev.LocalPlayerID != "" {
		if p, ok := prev.Player(prev.LocalPlayerID); ok {
			prevHand = p.Hand
		}
	}
	for i := range out.Players {
		p := &out.Players[i]
		if p.ID != out.LocalPlayerID {
			p.Hand = nil
			continue
		}
		if p.Hand == nil {
			p.Hand = append([]Card(nil), prevHand...)
		}
	}
	out.DeriveJudges()
	return out
}
