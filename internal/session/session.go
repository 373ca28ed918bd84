// Package session keeps at most one game open on this client.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
)

type SessionMsg interface{ isSessionMsg() }

type OpenResult struct {
	Reconciler *reconciler.Reconciler
	Err        error
}

// OpenGame switches to GameID, closing whatever game was open before.
// Opening the game that is already open returns the same reconciler.
type OpenGame struct {
	GameID string
	Reply  chan OpenResult
}

type CurrentGame struct {
	Reply chan *reconciler.Reconciler // may be nil
}

type CloseGame struct {
	Reply chan struct{}
}

type ShutdownSession struct{}

func (OpenGame) isSessionMsg()        {}
func (CurrentGame) isSessionMsg()     {}
func (CloseGame) isSessionMsg()       {}
func (ShutdownSession) isSessionMsg() {}

type Session struct {
	inbox   chan SessionMsg
	current *reconciler.Reconciler
	deps    reconciler.Deps
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewSession(parent context.Context, deps reconciler.Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{
		inbox:  make(chan SessionMsg, 64),
		deps:   deps,
		logger: deps.Logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) Inbox() chan<- SessionMsg { return s.inbox }

func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) Open(ctx context.Context, gameID string) (*reconciler.Reconciler, error) {
	reply := make(chan OpenResult, 1)
	select {
	case s.inbox <- OpenGame{GameID: gameID, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Reconciler, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) Current(ctx context.Context) *reconciler.Reconciler {
	reply := make(chan *reconciler.Reconciler, 1)
	select {
	case s.inbox <- CurrentGame{Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case rc := <-reply:
		return rc
	case <-ctx.Done():
		return nil
	}
}

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.closeCurrent()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case OpenGame:
				if s.current != nil && s.current.GameID() == msg.GameID {
					msg.Reply <- OpenResult{Reconciler: s.current}
					break
				}
				// One subscription per client: tear down before opening.
				s.closeCurrent()
				rc, err := reconciler.Open(s.ctx, msg.GameID, s.deps)
				if err != nil {
					s.logger.Warn("open game failed", zap.String("game_id", msg.GameID), zap.Error(err))
					msg.Reply <- OpenResult{Err: err}
					break
				}
				s.logger.Info("opened game", zap.String("game_id", msg.GameID))
				s.current = rc
				msg.Reply <- OpenResult{Reconciler: rc}

			case CurrentGame:
				msg.Reply <- s.current

			case CloseGame:
				s.closeCurrent()
				if msg.Reply != nil {
					close(msg.Reply)
				}

			case ShutdownSession:
				s.closeCurrent()
				s.cancel()
				return
			}
		}
	}
}

func (s *Session) closeCurrent() {
	if s.current == nil {
		return
	}
	s.logger.Info("closing game", zap.String("game_id", s.current.GameID()))
	s.current.Close()
	s.current = nil
}
