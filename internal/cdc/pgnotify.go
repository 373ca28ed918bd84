package cdc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// PGNotify reads change events straight from Postgres. A trigger on each
// watched table is expected to pg_notify the channel with
// {"table": ..., "type": ..., "record": {...}}.
type PGNotify struct {
	DSN     string
	Channel string
	Backoff Backoff
	Logger  *zap.Logger
}

func NewPGNotify(dsn, channel string, logger *zap.Logger) *PGNotify {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PGNotify{DSN: dsn, Channel: channel, Backoff: DefaultBackoff, Logger: logger}
}

type notifyPayload struct {
	Table  string         `json:"table"`
	Type   string         `json:"type"`
	Record map[string]any `json:"record"`
}

func (p *PGNotify) Subscribe(ctx context.Context, gameID string, filters []Filter) (Subscription, error) {
	if p.Channel == "" {
		return nil, fmt.Errorf("pg notify: empty channel")
	}
	ctx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go p.run(ctx, s, gameID, filters)
	return s, nil
}

func (p *PGNotify) run(ctx context.Context, s *stream, gameID string, filters []Filter) {
	defer s.finish()
	log := p.Logger.With(zap.String("game_id", gameID), zap.String("channel", p.Channel))

	for attempt := 0; ; attempt++ {
		conn, err := pgx.Connect(ctx, p.DSN)
		if err == nil {
			attempt = 0
			err = p.listen(ctx, conn, s, filters)
			conn.Close(context.Background())
		}
		if ctx.Err() != nil {
			return
		}
		log.Warn("pg notify connection lost", zap.Error(err), zap.Int("attempt", attempt))
		s.report(err)
		if !sleep(ctx, p.Backoff.Next(attempt)) {
			return
		}
	}
}

func (p *PGNotify) listen(ctx context.Context, conn *pgx.Conn, s *stream, filters []Filter) error {
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{p.Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := decodeNotification(n.Payload)
		if err != nil {
			p.Logger.Warn("dropping notification", zap.Error(err))
			continue
		}
		if !matchesAny(filters, ev) {
			continue
		}
		if !s.emit(ctx, ev) {
			return ctx.Err()
		}
	}
}

func decodeNotification(payload string) (Event, error) {
	var n notifyPayload
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if n.Table == "" || n.Type == "" {
		return Event{}, ErrBadFrame
	}
	if n.Record == nil {
		n.Record = map[string]any{}
	}
	return Event{Table: Table(n.Table), Operation: Operation(n.Type), NewRow: n.Record}, nil
}
