package transcode

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Runtime is the external encoder: a scratch filesystem plus an exec entry
// point streaming log lines.
type Runtime interface {
	WriteFile(name string, data []byte) error
	ReadFile(name string) ([]byte, error)
	DeleteFile(name string) error
	Exec(ctx context.Context, args []string, onLog func(line string)) (CommandLog, error)
}

// LoadFunc initializes a runtime.
type LoadFunc func(ctx context.Context) (Runtime, error)

// LazyRuntime loads the runtime on first use and caches it for the process
// lifetime. A failed load is not cached, so the next job retries.
type LazyRuntime struct {
	load LoadFunc

	mu sync.Mutex
	rt Runtime
}

// NewLazyRuntime wraps load.
func NewLazyRuntime(load LoadFunc) *LazyRuntime {
	return &LazyRuntime{load: load}
}

// Get returns the cached runtime, loading it if needed. Load failures wrap
// ErrEncoderUnavailable.
func (l *LazyRuntime) Get(ctx context.Context) (Runtime, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rt != nil {
		return l.rt, nil
	}
	if l.load == nil {
		return nil, ErrEncoderUnavailable
	}
	rt, err := l.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncoderUnavailable, err)
	}
	if rt == nil {
		return nil, ErrEncoderUnavailable
	}
	l.rt = rt
	return rt, nil
}

// Loaded reports whether the runtime has been cached.
func (l *LazyRuntime) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rt != nil
}

// Close releases the cached runtime when it holds resources, and forgets it.
func (l *LazyRuntime) Close() error {
	l.mu.Lock()
	rt := l.rt
	l.rt = nil
	l.mu.Unlock()

	if c, ok := rt.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
