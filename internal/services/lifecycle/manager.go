package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// StopFunc tears one component down. It must respect ctx's deadline.
type StopFunc func(ctx context.Context) error

type component struct {
	name string
	stop StopFunc
}

// Manager collects the running components of the process and stops them in
// reverse registration order on shutdown, so dependents go down before their
// dependencies (server before dispatcher, dispatcher before the pool).
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger

	mu         sync.Mutex
	components []component
	once       sync.Once
}

func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Register adds a component to the shutdown sequence.
func (m *Manager) Register(name string, stop StopFunc) {
	if stop == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, component{name: name, stop: stop})
}

// Shutdown stops every registered component. It runs at most once; later
// calls return nil immediately. Individual failures are collected rather
// than aborting the sequence.
func (m *Manager) Shutdown(ctx context.Context) error {
	var result error
	m.once.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()

		m.mu.Lock()
		components := m.components
		m.mu.Unlock()

		for i := len(components) - 1; i >= 0; i-- {
			c := components[i]
			started := time.Now()
			if err := c.stop(ctx); err != nil {
				m.logger.Error("component shutdown failed",
					zap.String("component", c.name),
					zap.Error(err))
				result = errors.Join(result, err)
				continue
			}
			m.logger.Info("component stopped",
				zap.String("component", c.name),
				zap.Duration("took", time.Since(started)))
		}
	})
	return result
}

// Listen arms a SIGINT/SIGTERM handler that fires the provided cancel func.
func (m *Manager) Listen(cancel context.CancelFunc) {
	if cancel == nil {
		return
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		sig := <-sigCh
		m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()
}
