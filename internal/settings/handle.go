package settings

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Snapshot is an immutable, versioned settings value. Callers must not mutate it.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Settings Settings
}

// Handle holds the current snapshot. Get is lock-free; Reload swaps atomically.
type Handle struct {
	source  Source
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// NewHandle loads the initial snapshot from source.
func NewHandle(ctx context.Context, source Source) (*Handle, error) {
	h := &Handle{source: source}
	if _, err := h.Reload(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Get returns the current snapshot.
func (h *Handle) Get() *Snapshot {
	return h.current.Load()
}

// Reload loads, validates and publishes a new snapshot. On failure the current one stays.
func (h *Handle) Reload(ctx context.Context) (*Snapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	loaded, err := h.source.Load(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load settings")
	}
	if err := loaded.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid settings")
	}

	var version int64 = 1
	if prev := h.current.Load(); prev != nil {
		version = prev.Version + 1
	}
	next := &Snapshot{Version: version, LoadedAt: time.Now(), Settings: *loaded}
	h.current.Store(next)

	slog.Info("settings loaded", slog.Int64("version", version))
	return next, nil
}
