package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/game"
	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
	"github.com/DoyleJ11/cardparty-sync/internal/session"
	"github.com/DoyleJ11/cardparty-sync/internal/types"
)

// Handler streams snapshots of the open game to a render consumer and
// accepts the few commands consumers are allowed to send back.
func Handler(s *session.Session, logger *zap.Logger) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rc := s.Current(r.Context())
		if rc == nil {
			http.Error(w, "not in game", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan reconciler.Snapshot, 8)
		clientID := uuid.NewString()
		log := logger.With(zap.String("client_id", clientID), zap.String("game_id", rc.GameID()))

		if err := rc.Subscribe(r.Context(), clientID, out); err != nil {
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = rc.Unsubscribe(ctx, clientID)
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case snap, ok := <-out:
					if !ok {
						// Outbox closed: game closed or we were too slow.
						conn.Close(websocket.StatusGoingAway, "game closed")
						return
					}
					msg := types.ServerMessage{Type: "StateSnapshot", Version: snap.Version, State: snap.State}
					if snap.State == nil {
						msg = types.ServerMessage{Type: "NotInGame", Version: snap.Version}
					}
					payload, _ := json.Marshal(msg)
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("consumer disconnected", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}
			if err := dispatch(r.Context(), rc, cm); err != nil {
				writeError(r.Context(), conn, err.Error())
			}
		}
	}
}

type unknownTypeError string

func (e unknownTypeError) Error() string { return "unknown type " + string(e) }

func dispatch(ctx context.Context, rc *reconciler.Reconciler, cm types.ClientMessage) error {
	switch cm.Type {
	case "SetTransition":
		return rc.SetTransition(ctx, game.TransitionState(cm.State))
	case "SetLocalPlayer":
		return rc.SetLocalPlayer(ctx, cm.PlayerID)
	default:
		return unknownTypeError(cm.Type)
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
