// Package nav decides which screen the client should be on and moves it
// there with a loading indicator that always clears.
package nav

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cardparty-sync/internal/game"
	"github.com/DoyleJ11/cardparty-sync/internal/reconciler"
)

const (
	ScreenGame  = "/game"
	ScreenSetup = "/setup"
)

type Decision struct {
	Navigate bool
	Target   string
}

func onScreen(path, screen string) bool {
	return path == screen || strings.HasPrefix(path, screen+"/")
}

// Decide maps the current game position to a navigation, if one is needed.
func Decide(phase game.Phase, ts game.TransitionState, hasLocalPlayer bool, currentPath string) Decision {
	if ts.IsIdle() && phase != game.PhaseLobby && hasLocalPlayer && !onScreen(currentPath, ScreenGame) {
		return Decision{Navigate: true, Target: ScreenGame}
	}
	if phase == game.PhaseLobby && !onScreen(currentPath, ScreenSetup) {
		return Decision{Navigate: true, Target: ScreenSetup}
	}
	return Decision{}
}

type Navigator interface {
	Path() string
	Navigate(ctx context.Context, path string) error
}

type LoadingIndicator interface {
	SetLoading(visible bool)
}

type Options struct {
	Debounce        time.Duration
	Settle          time.Duration
	NavigateTimeout time.Duration
	Logger          *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 100 * time.Millisecond
	}
	if o.Settle <= 0 {
		o.Settle = 500 * time.Millisecond
	}
	if o.NavigateTimeout <= 0 {
		o.NavigateTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type Orchestrator struct {
	mu      sync.Mutex
	nav     Navigator
	loading LoadingIndicator
	opts    Options

	ctx    context.Context
	cancel context.CancelFunc
	alive  bool

	gen       int // bumped per scheduled navigation
	pending   *time.Timer
	visible   bool
	shownGen  int
	hideTimer *time.Timer
}

func NewOrchestrator(nav Navigator, loading LoadingIndicator, opts Options) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		nav:     nav,
		loading: loading,
		opts:    opts.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
		alive:   true,
	}
}

// Observe schedules a debounced navigation for s. A newer observation
// replaces any navigation that has not fired yet.
func (o *Orchestrator) Observe(s *game.GameClientState) Decision {
	var d Decision
	if s != nil {
		d = Decide(s.Phase, s.TransitionState, s.HasLocalPlayer(), o.nav.Path())
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive {
		return Decision{}
	}
	if o.pending != nil {
		o.pending.Stop()
		o.pending = nil
		// A callback already past its timer must see it was superseded.
		o.gen++
	}
	if !d.Navigate {
		return d
	}

	o.gen++
	gen := o.gen
	o.pending = time.AfterFunc(o.opts.Debounce, func() { o.fire(gen, d.Target) })
	return d
}

// Follow feeds published snapshots into Observe until ch closes or ctx ends.
func (o *Orchestrator) Follow(ctx context.Context, ch <-chan reconciler.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			o.Observe(snap.State)
		}
	}
}

func (o *Orchestrator) fire(gen int, target string) {
	o.mu.Lock()
	if !o.alive || gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.pending = nil
	if o.hideTimer != nil {
		o.hideTimer.Stop()
		o.hideTimer = nil
	}
	o.shownGen = gen
	if !o.visible {
		o.visible = true
		o.loading.SetLoading(true)
	}
	// The navigator may ignore its ctx and never return; this hide fires
	// regardless.
	o.hideTimer = time.AfterFunc(o.opts.NavigateTimeout+o.opts.Settle, func() { o.hide(gen) })
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(o.ctx, o.opts.NavigateTimeout)
	err := o.nav.Navigate(ctx, target)
	cancel()
	if err != nil {
		o.opts.Logger.Warn("navigation failed", zap.String("target", target), zap.Error(err))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.shownGen != gen || !o.visible {
		return
	}
	if o.hideTimer != nil {
		o.hideTimer.Stop()
	}
	// Hide after the settle window no matter how the navigation went.
	o.hideTimer = time.AfterFunc(o.opts.Settle, func() { o.hide(gen) })
}

// Source is a stream of published snapshots, such as an open reconciler.
type Source interface {
	Subscribe(ctx context.Context, clientID string, outbox chan reconciler.Snapshot) error
	Done() <-chan struct{}
}

// Watch feeds src into Observe until src is done or ctx ends. If src
// drops the subscription for being slow, Watch subscribes again.
func (o *Orchestrator) Watch(ctx context.Context, src Source) {
	for {
		out := make(chan reconciler.Snapshot, 16)
		if err := src.Subscribe(ctx, "nav", out); err != nil {
			o.opts.Logger.Debug("navigation feed ended", zap.Error(err))
			return
		}
		if !o.drain(ctx, src.Done(), out) {
			return
		}
		o.opts.Logger.Info("navigation feed dropped, resubscribing")
	}
}

// drain reports true when out was closed while src is still alive.
func (o *Orchestrator) drain(ctx context.Context, done <-chan struct{}, out <-chan reconciler.Snapshot) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case <-done:
			return false
		case snap, ok := <-out:
			if !ok {
				select {
				case <-done:
					return false
				case <-ctx.Done():
					return false
				default:
					return true
				}
			}
			o.Observe(snap.State)
		}
	}
}

func (o *Orchestrator) hide(gen int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.shownGen || !o.visible {
		return
	}
	o.visible = false
	o.hideTimer = nil
	o.loading.SetLoading(false)
}

func (o *Orchestrator) Loading() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

// Close abandons any pending or in-flight navigation and clears the
// indicator.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.alive {
		return
	}
	o.alive = false
	o.cancel()
	if o.pending != nil {
		o.pending.Stop()
		o.pending = nil
	}
	if o.hideTimer != nil {
		o.hideTimer.Stop()
		o.hideTimer = nil
	}
	if o.visible {
		o.visible = false
		o.loading.SetLoading(false)
	}
}
