package store

import (
	"context"
	"sync"
	"time"

	"github.com/heliradar/tracker/internal/model"
)

// Handle opens its Store on first use and reuses it for the life of the
// process. A failed open is not remembered: the next call tries again.
type Handle struct {
	uri  string
	opts Options
	open func(context.Context, string, Options) (Store, error)

	mu sync.Mutex
	s  Store
}

// NewHandle returns a handle for uri. No connection is made until the first
// call that needs the store.
func NewHandle(uri string, opts Options) *Handle {
	return &Handle{uri: uri, opts: opts, open: Open}
}

var (
	shared     *Handle
	sharedOnce sync.Once
)

// Shared returns the process-wide handle, creating it from uri on the first
// call. Later calls ignore their arguments.
func Shared(uri string, opts Options) *Handle {
	sharedOnce.Do(func() {
		shared = NewHandle(uri, opts)
	})
	return shared
}

// Get returns the open store, connecting if needed.
func (h *Handle) Get(ctx context.Context) (Store, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s != nil {
		return h.s, nil
	}
	s, err := h.open(ctx, h.uri, h.opts)
	if err != nil {
		return nil, err
	}
	h.s = s
	return s, nil
}

func (h *Handle) peek() Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.s
}

func (h *Handle) Insert(ctx context.Context, c model.Collection, p model.Point) error {
	s, err := h.Get(ctx)
	if err != nil {
		return err
	}
	return s.Insert(ctx, c, p)
}

func (h *Handle) InsertMany(ctx context.Context, c model.Collection, ps []model.Point) error {
	s, err := h.Get(ctx)
	if err != nil {
		return err
	}
	return s.InsertMany(ctx, c, ps)
}

func (h *Handle) History(ctx context.Context, c model.Collection, key model.Key, id string) ([]model.Point, error) {
	s, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.History(ctx, c, key, id)
}

func (h *Handle) Latest(ctx context.Context, c model.Collection, key model.Key, id string) (*model.Point, error) {
	s, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Latest(ctx, c, key, id)
}

func (h *Handle) Recent(ctx context.Context, c model.Collection, key model.Key, since time.Time) ([]model.Point, error) {
	s, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Recent(ctx, c, key, since)
}

func (h *Handle) Distinct(ctx context.Context, c model.Collection, key model.Key) ([]string, error) {
	s, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.Distinct(ctx, c, key)
}

func (h *Handle) All(ctx context.Context, c model.Collection, limit int) ([]model.Point, error) {
	s, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.All(ctx, c, limit)
}

func (h *Handle) FindAgent(ctx context.Context, agentID string) (*model.Agent, error) {
	s, err := h.Get(ctx)
	if err != nil {
		return nil, err
	}
	return s.FindAgent(ctx, agentID)
}

func (h *Handle) SaveAgent(ctx context.Context, a model.Agent) error {
	s, err := h.Get(ctx)
	if err != nil {
		return err
	}
	return s.SaveAgent(ctx, a)
}

func (h *Handle) Ping(ctx context.Context) error {
	s, err := h.Get(ctx)
	if err != nil {
		return err
	}
	return s.Ping(ctx)
}

// Close closes the underlying store if it was opened. The handle may be
// reused afterwards and will reconnect.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s == nil {
		return nil
	}
	err := h.s.Close()
	h.s = nil
	return err
}
