package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/game"
	"github.com/DoyleJ11/cardparty-sync/internal/nav"
	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
	"github.com/DoyleJ11/cardparty-sync/internal/session"
	"github.com/DoyleJ11/cardparty-sync/internal/types"
)

const errNotInGame = "not in game"

// Deps is what the handlers need from the rest of the client.
type Deps struct {
	Session   *session.Session
	Navigator nav.Navigator // optional; /nav falls back to the ?path= query
	Loading   func() bool   // optional
	OnOpen    func(*reconciler.Reconciler)
	Logger    *zap.Logger
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ServerMessage{Type: "Error", Error: msg})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func OpenGame(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		rc, err := d.Session.Open(r.Context(), gameID)
		if err != nil {
			d.Logger.Warn("open game", zap.String("game_id", gameID), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "failed to open game")
			return
		}
		if d.OnOpen != nil {
			d.OnOpen(rc)
		}
		writeJSON(w, http.StatusOK, struct {
			GameID string `json:"game_id"`
		}{GameID: rc.GameID()})
	}
}

func CloseGame(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan struct{})
		select {
		case d.Session.Inbox() <- session.CloseGame{Reply: reply}:
		case <-r.Context().Done():
			return
		}
		select {
		case <-reply:
		case <-r.Context().Done():
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// current returns the open game's view, or writes a 404 and returns ok=false.
func current(d Deps, w http.ResponseWriter, r *http.Request) (*reconciler.Reconciler, reconciler.View, bool) {
	rc := d.Session.Current(r.Context())
	if rc == nil {
		writeError(w, http.StatusNotFound, errNotInGame)
		return nil, reconciler.View{}, false
	}
	view, err := rc.State(r.Context())
	if err != nil || view.State == nil {
		writeError(w, http.StatusNotFound, errNotInGame)
		return nil, reconciler.View{}, false
	}
	return rc, view, true
}

func GetState(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, view, ok := current(d, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, types.ServerMessage{Type: "StateSnapshot", Version: view.Version, State: view.State})
	}
}

func SetIdentity(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			PlayerID string `json:"player_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.PlayerID == "" {
			writeError(w, http.StatusBadRequest, "player_id is required")
			return
		}
		rc, _, ok := current(d, w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := rc.SetLocalPlayer(ctx, body.PlayerID); err != nil {
			if errors.Is(err, reconciler.ErrNoGame) || errors.Is(err, reconciler.ErrClosed) {
				writeError(w, http.StatusNotFound, errNotInGame)
				return
			}
			d.Logger.Warn("remember identity", zap.String("player_id", body.PlayerID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to record identity")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func SetTransition(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
		rc, _, ok := current(d, w, r)
		if !ok {
			return
		}
		if err := rc.SetTransition(r.Context(), game.TransitionState(body.State)); err != nil {
			writeError(w, http.StatusNotFound, errNotInGame)
			return
		}
		writeJSON(w, http.StatusAccepted, struct {
			State   string `json:"state"`
			Message string `json:"message"`
		}{State: body.State, Message: game.TransitionMessage(game.TransitionState(body.State))})
	}
}

func Navigation(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" && d.Navigator != nil {
			path = d.Navigator.Path()
		}
		_, view, ok := current(d, w, r)
		if !ok {
			return
		}
		s := view.State
		dec := nav.Decide(s.Phase, s.TransitionState, s.HasLocalPlayer(), path)
		resp := types.NavResponse{Path: path, Navigate: dec.Navigate, Target: dec.Target}
		if d.Loading != nil {
			resp.Loading = d.Loading()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
