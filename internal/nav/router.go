package nav

import (
	"context"
	"sync"
	"sync/atomic"
)

// MountFunc brings up the view for path. It may fail, or hang without
// honoring ctx; the loading indicator still clears.
type MountFunc func(ctx context.Context, path string) error

// Router is the client's notion of the current screen.
type Router struct {
	mu    sync.RWMutex
	path  string
	mount MountFunc
}

func NewRouter(initial string, mount MountFunc) *Router {
	return &Router{path: initial, mount: mount}
}

func (r *Router) Path() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.path
}

func (r *Router) Navigate(ctx context.Context, path string) error {
	r.mu.Lock()
	r.path = path
	mount := r.mount
	r.mu.Unlock()
	if mount == nil {
		return nil
	}
	return mount(ctx, path)
}

type Indicator struct {
	visible atomic.Bool
	changes atomic.Int64
}

func (i *Indicator) SetLoading(visible bool) {
	i.visible.Store(visible)
	i.changes.Add(1)
}

func (i *Indicator) Visible() bool { return i.visible.Load() }

// Changes counts show/hide calls.
func (i *Indicator) Changes() int64 { return i.changes.Load() }
