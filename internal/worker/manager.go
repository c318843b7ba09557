package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Worker is the contract for background workers owned by the service
// process.
type Worker interface {
	Start(ctx context.Context) error
	Stop()
	Name() string
}

// Manager owns the lifecycle of all registered background workers.
type Manager struct {
	workers []Worker
	logger  *zap.Logger
	mu      sync.RWMutex
}

// NewManager creates a worker manager
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger}
}

// Register adds a worker to be managed
func (m *Manager) Register(w Worker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workers = append(m.workers, w)
}

// StartAll starts every registered worker, failing fast on the first start
// error.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, w := range m.workers {
		if err := w.Start(ctx); err != nil {
			m.logger.Error("Failed to start worker",
				zap.String("name", w.Name()),
				zap.Error(err))
			return err
		}
		m.logger.Info("Worker started", zap.String("name", w.Name()))
	}
	return nil
}

// StopAll stops registered workers in reverse registration order.
func (m *Manager) StopAll() {
	m.mu.RLock()
	workers := make([]Worker, len(m.workers))
	copy(workers, m.workers)
	m.mu.RUnlock()

	for i := len(workers) - 1; i >= 0; i-- {
		w := workers[i]
		w.Stop()
		m.logger.Info("Worker stopped", zap.String("name", w.Name()))
	}
}

// Count returns the number of registered workers
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}
