// Package shutdown runs registered cleanup hooks when the process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tnez/RRF-Loop/pkg/logging"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Manager handles graceful shutdown
type Manager struct {
	mu      sync.Mutex
	hooks   []hook
	timeout time.Duration
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a shutdown manager. The context returned by Context is
// cancelled on SIGINT, SIGTERM or a call to Trigger.
func New(parent context.Context, timeout time.Duration, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Discard()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		timeout: timeout,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register adds a shutdown hook. Hooks run in reverse order of registration.
func (m *Manager) Register(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook{name: name, fn: fn})
}

// Context is cancelled once shutdown starts
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Trigger starts shutdown without a signal
func (m *Manager) Trigger() {
	m.cancel()
}

// WatchSignals cancels the manager context on the first SIGINT or SIGTERM
func (m *Manager) WatchSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			m.logger.Info("Received signal, initiating graceful shutdown", map[string]interface{}{"signal": sig.String()})
			m.cancel()
		case <-m.ctx.Done():
		}
	}()
}

// Shutdown runs every hook once, bounded by the manager timeout
func (m *Manager) Shutdown() error {
	var result error
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		hooks := make([]hook, len(m.hooks))
		copy(hooks, m.hooks)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if err := h.fn(ctx); err != nil {
				m.logger.Error("Shutdown hook failed", map[string]interface{}{"hook": h.name, "error": err.Error()})
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
				continue
			}
			m.logger.Debug("Shutdown hook done", map[string]interface{}{"hook": h.name})
		}
		result = errors.Join(errs...)
		m.logger.Info("Graceful shutdown complete")
	})
	return result
}

// StopHTTPServer creates a shutdown hook for an http.Server
func StopHTTPServer(server interface{ Shutdown(context.Context) error }) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	}
}

// CloseResource creates a shutdown hook for an io.Closer
func CloseResource(closer interface{ Close() error }) func(context.Context) error {
	return func(context.Context) error {
		return closer.Close()
	}
}
