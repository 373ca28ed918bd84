package cdc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Realtime subscribes to postgres_changes over a Supabase Realtime
// (Phoenix channel) websocket.
type Realtime struct {
	URL       string // e.g. wss://project.supabase.co/realtime/v1/websocket
	APIKey    string
	Schema    string
	Heartbeat time.Duration
	Backoff   Backoff
	Logger    *zap.Logger
}

func NewRealtime(rawURL, apiKey string, logger *zap.Logger) *Realtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Realtime{
		URL:       rawURL,
		APIKey:    apiKey,
		Schema:    "public",
		Heartbeat: 25 * time.Second,
		Backoff:   DefaultBackoff,
		Logger:    logger,
	}
}

type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type pgChangeConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []pgChangeConfig `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type changePayload struct {
	Data struct {
		Schema string         `json:"schema"`
		Table  string         `json:"table"`
		Type   string         `json:"type"`
		Record map[string]any `json:"record"`
	} `json:"data"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

func (r *Realtime) Subscribe(ctx context.Context, gameID string, filters []Filter) (Subscription, error) {
	if _, err := r.endpoint(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go r.run(ctx, s, gameID, filters)
	return s, nil
}

func (r *Realtime) endpoint() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	if r.APIKey != "" {
		q.Set("apikey", r.APIKey)
	}
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Realtime) run(ctx context.Context, s *stream, gameID string, filters []Filter) {
	defer s.finish()
	log := r.Logger.With(zap.String("game_id", gameID))
	endpoint, _ := r.endpoint()

	for attempt := 0; ; attempt++ {
		conn, _, err := websocket.Dial(ctx, endpoint, nil)
		if err == nil {
			attempt = 0
			err = r.session(ctx, conn, s, gameID, filters)
			conn.Close(websocket.StatusNormalClosure, "bye")
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("realtime connection lost", zap.Error(err), zap.Int("attempt", attempt))
		s.report(err)
		if !sleep(ctx, r.Backoff.Next(attempt)) {
			return
		}
	}
}

func (r *Realtime) session(ctx context.Context, conn *websocket.Conn, s *stream, gameID string, filters []Filter) error {
	conn.SetReadLimit(1 << 20)
	topic := "realtime:game-" + gameID
	joinRef := uuid.NewString()
	var refs atomic.Int64

	join, err := r.joinMessage(topic, joinRef, filters)
	if err != nil {
		return err
	}
	if err := writeJSON(ctx, conn, join); err != nil {
		return err
	}

	hbCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		t := time.NewTicker(r.Heartbeat)
		defer t.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-t.C:
				ref := strconv.FormatInt(refs.Add(1), 10)
				hb := phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: &ref}
				if err := writeJSON(hbCtx, conn, hb); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		ev, ok, err := decodeFrame(data, topic)
		if err != nil {
			return err
		}
		if !ok || !matchesAny(filters, ev) {
			continue
		}
		if !s.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

func (r *Realtime) joinMessage(topic, joinRef string, filters []Filter) (phxMessage, error) {
	var p joinPayload
	for _, f := range filters {
		p.Config.PostgresChanges = append(p.Config.PostgresChanges, pgChangeConfig{
			Event:  string(f.Operation),
			Schema: r.Schema,
			Table:  string(f.Table),
			Filter: f.Expr(),
		})
	}
	p.AccessToken = r.APIKey
	raw, err := json.Marshal(p)
	if err != nil {
		return phxMessage{}, err
	}
	return phxMessage{Topic: topic, Event: "phx_join", Payload: raw, Ref: &joinRef, JoinRef: &joinRef}, nil
}

// decodeFrame turns one Phoenix frame into a change event. ok is false for
// frames that carry no change (replies, heartbeats, presence).
func decodeFrame(data []byte, topic string) (Event, bool, error) {
	var msg phxMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, false, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if msg.Topic != topic {
		return Event{}, false, nil
	}

	switch msg.Event {
	case "postgres_changes":
		var p changePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return Event{}, false, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if p.Data.Record == nil {
			p.Data.Record = map[string]any{}
		}
		return Event{
			Table:     Table(p.Data.Table),
			Operation: Operation(p.Data.Type),
			NewRow:    p.Data.Record,
		}, true, nil

	case "phx_reply":
		var p replyPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return Event{}, false, fmt.Errorf("%w: %v", ErrBadFrame, err)
		}
		if p.Status != "ok" {
			return Event{}, false, fmt.Errorf("channel join rejected: %s", p.Response)
		}
		return Event{}, false, nil

	case "phx_error", "phx_close":
		return Event{}, false, fmt.Errorf("channel %s: %s", msg.Event, topic)
	}
	return Event{}, false, nil
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
