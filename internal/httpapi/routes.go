package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/ws"
)

func SetupRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)

	r.Post("/games/{gameID}/open", OpenGame(d))
	r.Post("/games/close", CloseGame(d))

	r.Get("/state", GetState(d))
	r.Post("/identity", SetIdentity(d))
	r.Post("/transition", SetTransition(d))
	r.Get("/nav", Navigation(d))

	r.Get("/ws", ws.Handler(d.Session, d.Logger))
	return r
}
