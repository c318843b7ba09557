package hostlms

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Registry holds the configured host system clients, keyed by code.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
	logger  *zap.Logger
}

// NewRegistry creates an empty client registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		logger:  logger,
	}
}

// Register adds a client under its code, replacing any existing entry
func (r *Registry) Register(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[client.Code()] = client
	r.logger.Info("Registered host lms client", zap.String("code", client.Code()))
}

// ClientFor returns the client for a host system code
func (r *Registry) ClientFor(code string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoClient, code)
	}
	return client, nil
}

// Codes returns the registered host system codes
func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.clients))
	for code := range r.clients {
		codes = append(codes, code)
	}
	return codes
}
