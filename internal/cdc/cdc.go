// Package cdc carries row-level change events for the tables a game
// client watches.
package cdc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var ErrBadFrame = errors.New("malformed change frame")

type Table string

const (
	TableGames       Table = "games"
	TablePlayers     Table = "players"
	TableResponses   Table = "responses"
	TablePlayerHands Table = "player_hands"
)

type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
	OpAny    Operation = "*"
)

// Event is one row change. NewRow holds the row after the change and is
// empty for deletes.
type Event struct {
	Table     Table
	Operation Operation
	NewRow    map[string]any
}

type Filter struct {
	Table     Table
	Operation Operation
	Column    string
	Value     string
}

// Expr renders the filter in PostgREST form, e.g. "game_id=eq.42".
func (f Filter) Expr() string {
	return fmt.Sprintf("%s=eq.%s", f.Column, f.Value)
}

func (f Filter) Matches(ev Event) bool {
	if ev.Table != f.Table {
		return false
	}
	if f.Operation != OpAny && ev.Operation != f.Operation {
		return false
	}
	if f.Column == "" {
		return true
	}
	v, ok := ev.NewRow[f.Column]
	if !ok || v == nil {
		// Deletes often carry no row and cannot be attributed.
		return ev.Operation == OpDelete
	}
	return columnString(v) == f.Value
}

// columnString renders a decoded JSON value the way it appears in a filter.
func columnString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(v)
	}
}

// GameFilters is the set of tables a client watches for one game.
func GameFilters(gameID string) []Filter {
	return []Filter{
		{Table: TableGames, Operation: OpUpdate, Column: "id", Value: gameID},
		{Table: TablePlayers, Operation: OpAny, Column: "game_id", Value: gameID},
		{Table: TableResponses, Operation: OpInsert, Column: "game_id", Value: gameID},
		{Table: TablePlayerHands, Operation: OpAny, Column: "game_id", Value: gameID},
	}
}

func matchesAny(filters []Filter, ev Event) bool {
	for _, f := range filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

type Subscription interface {
	Events() <-chan Event
	// Errors reports transport failures. The transport reconnects on its own.
	Errors() <-chan error
	Close() error
}

type Transport interface {
	Subscribe(ctx context.Context, gameID string, filters []Filter) (Subscription, error)
}

// Backoff is the reconnect schedule shared by the transports.
type Backoff struct {
	Min time.Duration
	Max time.Duration
}

var DefaultBackoff = Backoff{Min: 250 * time.Millisecond, Max: 10 * time.Second}

func (b Backoff) Next(attempt int) time.Duration {
	d := b.Min
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// stream is the channel plumbing shared by the transports.
type stream struct {
	events chan Event
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
}

func newStream(cancel context.CancelFunc) *stream {
	return &stream{
		events: make(chan Event, 64),
		errs:   make(chan error, 8),
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

func (s *stream) Events() <-chan Event { return s.events }
func (s *stream) Errors() <-chan error { return s.errs }

func (s *stream) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *stream) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// report never blocks; errors are advisory.
func (s *stream) report(err error) {
	select {
	case s.errs <- err:
	default:
	}
}

func (s *stream) finish() {
	close(s.events)
	close(s.errs)
	close(s.done)
}
