package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newLobbyState() *GameClientState {
	s := &GameClientState{
		GameID:          "g1",
		Phase:           PhaseLobby,
		TransitionState: TransitionIdle,
		Players: []PlayerClientState{
			{ID: "p1", Name: "Ana", Avatar: "/avatars/1.png"},
			{ID: "p2", Name: "Ben", Avatar: "🐐"},
		},
		CurrentJudgeID: "p1",
		Submissions:    []Submission{},
	}
	s.DeriveJudges()
	return s
}

func TestMergePlayer(t *testing.T) {
	cases := []struct {
		name        string
		row         PlayerRow
		wantChanged bool
		wantLen     int
		check       func(t *testing.T, s *GameClientState)
	}{
		{
			name:        "ready toggle updates in place",
			row:         PlayerRow{ID: "p2", IsReady: ptr(true)},
			wantChanged: true,
			wantLen:     2,
			check: func(t *testing.T, s *GameClientState) {
				assert.Equal(t, "p2", s.Players[1].ID)
				assert.True(t, s.Players[1].IsReady)
				assert.Equal(t, "Ben", s.Players[1].Name)
			},
		},
		{
			name:        "same values is a no-op",
			row:         PlayerRow{ID: "p1", Name: ptr("Ana")},
			wantChanged: false,
			wantLen:     2,
		},
		{
			name:        "unknown id appends with empty hand",
			row:         PlayerRow{ID: "p3", Name: ptr("Cat"), Score: ptr(0)},
			wantChanged: true,
			wantLen:     3,
			check: func(t *testing.T, s *GameClientState) {
				assert.Equal(t, "p3", s.Players[2].ID)
				assert.Empty(t, s.Players[2].Hand)
				assert.False(t, s.Players[2].IsJudge)
			},
		},
		{
			name:        "negative score is ignored",
			row:         PlayerRow{ID: "p1", Score: ptr(-1)},
			wantChanged: false,
			wantLen:     2,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newLobbyState()
			changed, err := MergePlayer(s, tc.row)
			require.NoError(t, err)
			assert.Equal(t, tc.wantChanged, changed)
			assert.Len(t, s.Players, tc.wantLen)
			if tc.check != nil {
				tc.check(t, s)
			}
		})
	}
}

func TestMergePlayer_KeepsHandAndJudge(t *testing.T) {
	s := newLobbyState()
	s.LocalPlayerID = "p1"
	s.Players[0].Hand = []Card{{ID: "c1", Text: "A llama"}}
	s.DeriveJudges()

	_, err := MergePlayer(s, PlayerRow{ID: "p1", Score: ptr(3)})
	require.NoError(t, err)

	assert.Equal(t, 3, s.Players[0].Score)
	assert.Equal(t, []Card{{ID: "c1", Text: "A llama"}}, s.Players[0].Hand)
	assert.True(t, s.Players[0].IsJudge)
}

func TestMergePlayer_RejectsMissingID(t *testing.T) {
	s := newLobbyState()
	_, err := MergePlayer(s, PlayerRow{})
	if !errors.Is(err, ErrMissingPlayerID) {
		t.Fatalf("want ErrMissingPlayerID, got %v", err)
	}
}

func TestSubmissionCardID(t *testing.T) {
	cases := []struct {
		name  string
		row   ResponseRow
		round int
		want  string
	}{
		{"card response", ResponseRow{PlayerID: "p1", ResponseCardID: ptr("c9")}, 2, "c9"},
		{"custom text uses current round", ResponseRow{PlayerID: "p1", SubmittedText: ptr("Goat yoga")}, 2, "custom-p1-2"},
		{"custom text uses row round", ResponseRow{PlayerID: "p1", RoundNumber: ptr(4)}, 2, "custom-p1-4"},
		{"empty card id is custom", ResponseRow{PlayerID: "p2", ResponseCardID: ptr("")}, 1, "custom-p2-1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SubmissionCardID(tc.row, tc.round); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAddSubmission_Deduplicates(t *testing.T) {
	s := newLobbyState()
	sub := Submission{PlayerID: "p2", CardID: "c1", CardText: "A llama"}

	assert.True(t, AddSubmission(s, sub))
	assert.False(t, AddSubmission(s, sub))
	assert.True(t, AddSubmission(s, Submission{PlayerID: "p2", CardID: "c2"}))
	assert.Len(t, s.Submissions, 2)
}

func TestReplaceHand_OnlyLocalPlayer(t *testing.T) {
	s := newLobbyState()
	s.LocalPlayerID = "p1"

	assert.False(t, ReplaceHand(s, "p2", []Card{{ID: "c1"}}))
	assert.Empty(t, s.Players[1].Hand)

	assert.True(t, ReplaceHand(s, "p1", []Card{{ID: "c2"}}))
	assert.Equal(t, []Card{{ID: "c2"}}, s.Players[0].Hand)
}

func TestReplaceSnapshot_CarriesOwnedFields(t *testing.T) {
	prev := newLobbyState()
	prev.LocalPlayerID = "p2"
	prev.Players[1].Hand = []Card{{ID: "c1", Text: "A llama"}}
	SetTransition(prev, TransitionDealingCards)
	prev.Version = 7

	next := &GameClientState{
		GameID: "g1",
		Phase:  PhaseCategorySelection,
		Round:  1,
		Players: []PlayerClientState{
			{ID: "p1", Name: "Ana", Hand: []Card{{ID: "leak"}}},
			{ID: "p2", Name: "Ben"},
		},
		CurrentJudgeID: "p2",
	}

	out := ReplaceSnapshot(prev, next)

	assert.Equal(t, "p2", out.LocalPlayerID)
	assert.Equal(t, TransitionDealingCards, out.TransitionState)
	assert.Equal(t, 7, out.Version)
	assert.Empty(t, out.Players[0].Hand)
	assert.Equal(t, []Card{{ID: "c1", Text: "A llama"}}, out.Players[1].Hand)
	assert.True(t, out.Players[1].IsJudge)
	assert.False(t, out.Players[0].IsJudge)
	assert.NotNil(t, out.Submissions)

	// next must not be aliased
	next.Players[1].Name = "changed"
	assert.Equal(t, "Ben", out.Players[1].Name)
}

func TestClone_IsDeep(t *testing.T) {
	s := newLobbyState()
	s.Players[0].Hand = []Card{{ID: "c1"}}
	c := s.Clone()

	c.Players[0].Hand[0].ID = "other"
	c.Players[1].Score = 10
	c.Submissions = append(c.Submissions, Submission{PlayerID: "p1", CardID: "x"})

	assert.Equal(t, "c1", s.Players[0].Hand[0].ID)
	assert.Equal(t, 0, s.Players[1].Score)
	assert.Empty(t, s.Submissions)
}

func TestDecodeRow(t *testing.T) {
	row, err := DecodeRow[PlayerRow](map[string]any{
		"id":       "p1",
		"game_id":  "g1",
		"score":    float64(5),
		"is_ready": true,
	})
	require.NoError(t, err)
	assert.Equal(t, "p1", row.ID)
	require.NotNil(t, row.Score)
	assert.Equal(t, 5, *row.Score)
	assert.Nil(t, row.Name)
}
