// Package reconciler owns the canonical client view of one game and keeps
// it in step with the CDC stream.
package reconciler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/cdc"
	"github.com/DoyleJ11/cardparty-sync/internal/game"
	"github.com/DoyleJ11/cardparty-sync/internal/gateway"
)

var ErrClosed = errors.New("reconciler closed")
var ErrNoGame = errors.New("no active game")

type IdentityResolver interface {
	Resolve(ctx context.Context, gameID string, players []game.PlayerClientState) (string, bool, error)
	Remember(ctx context.Context, gameID, playerID string) error
}

type Deps struct {
	Gateway   gateway.Gateway
	Transport cdc.Transport
	Identity  IdentityResolver // optional
	Logger    *zap.Logger
}

// patch is an in-place merge recorded while a full refresh is in flight,
// so it can be replayed on top of the refreshed snapshot.
type patch func(*game.GameClientState) bool

type Reconciler struct {
	inbox   chan Msg
	gameID  string
	state   *game.GameClientState
	loaded  bool
	version int
	clients map[string]chan Snapshot

	deps   Deps
	logger *zap.Logger
	sub    cdc.Subscription
	events <-chan cdc.Event
	errs   <-chan error

	seq          int
	refreshSeq   int // seq of the refresh we are waiting on, 0 when none
	journal      []patch
	handSeq      int
	handDirty    bool // a hand change arrived before the first snapshot
	pendingCards map[[2]string]bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Open subscribes to the game's change stream and starts the initial
// snapshot load. The subscription is established first so no change
// between the two is lost.
func Open(parent context.Context, gameID string, deps Deps) (*Reconciler, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	sub, err := deps.Transport.Subscribe(ctx, gameID, cdc.GameFilters(gameID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", gameID, err)
	}

	r := &Reconciler{
		inbox:        make(chan Msg, 64),
		gameID:       gameID,
		clients:      make(map[string]chan Snapshot),
		deps:         deps,
		logger:       deps.Logger.With(zap.String("game_id", gameID)),
		sub:          sub,
		events:       sub.Events(),
		errs:         sub.Errors(),
		pendingCards: make(map[[2]string]bool),
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	r.seq++
	r.refreshSeq = r.seq
	r.spawn(r.initialLoad(r.seq))

	go r.loop()
	return r, nil
}

func (r *Reconciler) GameID() string { return r.gameID }

// Inbox exposes the message channel so callers can drive the reconciler.
func (r *Reconciler) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the reconciler has torn down.
func (r *Reconciler) Done() <-chan struct{} { return r.done }

func (r *Reconciler) Close() {
	r.cancel()
	<-r.done
}

func (r *Reconciler) send(ctx context.Context, m Msg) error {
	select {
	case r.inbox <- m:
		return nil
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (r *Reconciler) SetTransition(ctx context.Context, ts game.TransitionState) error {
	return r.send(ctx, SetTransition{State: ts})
}

func (r *Reconciler) SetLocalPlayer(ctx context.Context, playerID string) error {
	reply := make(chan error, 1)
	if err := r.send(ctx, SetLocalPlayer{PlayerID: playerID, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) Subscribe(ctx context.Context, clientID string, outbox chan Snapshot) error {
	return r.send(ctx, Subscribe{ClientID: clientID, Outbox: outbox})
}

func (r *Reconciler) Unsubscribe(ctx context.Context, clientID string) error {
	return r.send(ctx, Unsubscribe{ClientID: clientID})
}

func (r *Reconciler) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case ev, ok := <-r.events:
			if !ok {
				r.events = nil
				continue
			}
			r.handleChange(ev)

		case err, ok := <-r.errs:
			if !ok {
				r.errs = nil
				continue
			}
			r.logger.Warn("change stream error", zap.Error(err))

		case m := <-r.inbox:
			if stop := r.handle(m); stop {
				r.shutdown()
				return
			}
		}
	}
}

func (r *Reconciler) handle(m Msg) bool {
	switch msg := m.(type) {
	case Subscribe:
		r.clients[msg.ClientID] = msg.Outbox
		select {
		case msg.Outbox <- Snapshot{Version: r.version, State: r.state.Clone()}:
		default:
		}

	case Unsubscribe:
		delete(r.clients, msg.ClientID)

	case changeArrived:
		r.handleChange(msg.ev)

	case snapshotLoaded:
		r.applySnapshot(msg)

	case handLoaded:
		r.applyHand(msg)

	case cardTextLoaded:
		r.applyCardText(msg)

	case SetTransition:
		r.apply(func(s *game.GameClientState) bool {
			return game.SetTransition(s, msg.State)
		})

	case SetLocalPlayer:
		r.setLocalPlayer(msg)

	case GetState:
		msg.Reply <- View{
			Version:    r.version,
			NumClients: len(r.clients),
			Loaded:     r.loaded,
			State:      r.state.Clone(),
		}

	case Shutdown:
		return true
	}
	return false
}

func (r *Reconciler) shutdown() {
	r.cancel()
	if r.sub != nil {
		_ = r.sub.Close()
	}
	r.state = nil
	for id, ch := range r.clients {
		close(ch) // no more snapshots
		delete(r.clients, id)
	}
}

// spawn runs a gateway call off the loop. Its result is only delivered
// while the reconciler is alive.
func (r *Reconciler) spawn(fn func(ctx context.Context) Msg) {
	go func() {
		m := fn(r.ctx)
		if r.ctx.Err() != nil {
			return
		}
		select {
		case r.inbox <- m:
		case <-r.ctx.Done():
		}
	}()
}

// apply runs p against canonical state, journals it if a refresh is in
// flight, and publishes on change.
func (r *Reconciler) apply(p patch) {
	if r.refreshSeq != 0 {
		r.journal = append(r.journal, p)
	}
	if r.state == nil {
		return
	}
	if p(r.state) {
		r.publish()
	}
}

// publish shares one copy among all subscribers; they must treat it as
// read-only.
func (r *Reconciler) publish() {
	r.version++
	if r.state != nil {
		r.state.Version = r.version
	}
	r.broadcast(Snapshot{Version: r.version, State: r.state.Clone()})
}

func (r *Reconciler) broadcast(snap Snapshot) {
	for id, ch := range r.clients {
		select {
		case ch <- snap:
			// ok
		default:
			// Consumer is slow/full - drop them.
			close(ch)
			delete(r.clients, id)
		}
	}
}
