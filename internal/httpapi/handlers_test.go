package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cardparty-sync/internal/cdc"
	"github.com/DoyleJ11/cardparty-sync/internal/game"
	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
	"github.com/DoyleJ11/cardparty-sync/internal/session"
	"github.com/DoyleJ11/cardparty-sync/internal/types"
)

type lobbyGateway struct{}

func (lobbyGateway) FetchGameSnapshot(_ context.Context, gameID string) (*game.GameClientState, error) {
	return &game.GameClientState{
		GameID: gameID,
		Phase:  game.PhaseLobby,
		Players: []game.PlayerClientState{
			{ID: "p1", Name: "Ana"},
			{ID: "p2", Name: "Ben"},
		},
	}, nil
}

func (lobbyGateway) FetchPlayerDetail(_ context.Context, playerID, _ string) (*game.PlayerClientState, error) {
	return &game.PlayerClientState{ID: playerID, Hand: []game.Card{{ID: "c1", Text: "A wet sock"}}}, nil
}

func (lobbyGateway) FetchCardText(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := session.NewSession(ctx, reconciler.Deps{Gateway: lobbyGateway{}, Transport: cdc.NewMemory()})
	var opened []string
	srv := httptest.NewServer(SetupRoutes(Deps{
		Session: s,
		OnOpen:  func(rc *reconciler.Reconciler) { opened = append(opened, rc.GameID()) },
	}))
	t.Cleanup(srv.Close)
	return srv, &opened
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// fetchState returns the open game's state, or nil when /state is not 200.
func fetchState(srv *httptest.Server) *game.GameClientState {
	resp, err := http.Get(srv.URL + "/state")
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var msg types.ServerMessage
	if json.NewDecoder(resp.Body).Decode(&msg) != nil {
		return nil
	}
	return msg.State
}

// waitState polls /state until the game has loaded.
func waitState(t *testing.T, srv *httptest.Server) *game.GameClientState {
	t.Helper()
	var s *game.GameClientState
	require.Eventually(t, func() bool {
		s = fetchState(srv)
		return s != nil
	}, 2*time.Second, 10*time.Millisecond)
	return s
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestState_NotInGame(t *testing.T) {
	srv, _ := newTestServer(t)
	for _, path := range []string{"/state", "/nav?path=/home"} {
		resp := do(t, http.MethodGet, srv.URL+path, "")
		require.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		msg := decode[types.ServerMessage](t, resp)
		assert.Equal(t, "Error", msg.Type)
		assert.Equal(t, "not in game", msg.Error)
	}
}

func TestOpenGame_ThenState(t *testing.T) {
	srv, opened := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/games/g1/open", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"g1"}, *opened)
	waitState(t, srv)

	resp = do(t, http.MethodGet, srv.URL+"/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msg := decode[types.ServerMessage](t, resp)
	assert.Equal(t, "StateSnapshot", msg.Type)
	require.NotNil(t, msg.State)
	assert.Equal(t, "g1", msg.State.GameID)
	assert.Equal(t, game.PhaseLobby, msg.State.Phase)
	assert.Len(t, msg.State.Players, 2)
}

func TestNavigation_LobbyGoesToSetup(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/games/g1/open", "")
	waitState(t, srv)

	resp := do(t, http.MethodGet, srv.URL+"/nav?path=/home", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	nr := decode[types.NavResponse](t, resp)
	assert.True(t, nr.Navigate)
	assert.Equal(t, "/setup", nr.Target)

	resp = do(t, http.MethodGet, srv.URL+"/nav?path=/setup", "")
	nr = decode[types.NavResponse](t, resp)
	assert.False(t, nr.Navigate)
}

func TestTransition(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/games/g1/open", "")
	waitState(t, srv)

	resp := do(t, http.MethodPost, srv.URL+"/transition", `{"state":"dealing_cards"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	body := decode[map[string]string](t, resp)
	assert.Equal(t, "Dealing cards...", body["message"])

	require.Eventually(t, func() bool {
		s := fetchState(srv)
		return s != nil && s.TransitionState == game.TransitionDealingCards
	}, time.Second, 10*time.Millisecond)
}

func TestIdentity(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/games/g1/open", "")
	waitState(t, srv)

	resp := do(t, http.MethodPost, srv.URL+"/identity", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/identity", `{"player_id":"p1"}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool {
		s := fetchState(srv)
		if s == nil {
			return false
		}
		p, ok := s.Player("p1")
		return s.LocalPlayerID == "p1" && ok && len(p.Hand) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseGame(t *testing.T) {
	srv, _ := newTestServer(t)
	do(t, http.MethodPost, srv.URL+"/games/g1/open", "")
	waitState(t, srv)

	resp := do(t, http.MethodPost, srv.URL+"/games/close", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/state", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebsocketStreamsSnapshots(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/ws", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	do(t, http.MethodPost, srv.URL+"/games/g1/open", "")
	waitState(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "StateSnapshot", msg.Type)
	require.NotNil(t, msg.State)
	assert.Equal(t, "g1", msg.State.GameID)

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"SetTransition","state":"starting_game"}`)))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, game.TransitionStartingGame, msg.State.TransitionState)
	assert.Equal(t, "Starting game...", msg.State.TransitionMessage)
}
