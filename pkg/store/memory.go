package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// MemoryStore implements Store in process memory. Contents are lost on exit.
type MemoryStore struct {
	log logrus.FieldLogger

	mu      sync.RWMutex
	servers map[string]*Server
	order   []string
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(log logrus.FieldLogger) Store {
	return &MemoryStore{
		log:     log.WithField("component", "store"),
		servers: make(map[string]*Server),
	}
}

// Start is a no-op.
func (s *MemoryStore) Start(_ context.Context) error {
	s.log.Warn("Using in-memory store, registered servers will not survive a restart")

	return nil
}

// Stop is a no-op.
func (s *MemoryStore) Stop() error {
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error {
	return nil
}

// Migrate is a no-op.
func (s *MemoryStore) Migrate(_ context.Context) error {
	return nil
}

// CreateServer inserts a copy of server.
func (s *MemoryStore) CreateServer(_ context.Context, server *Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[server.ID]; ok {
		return fmt.Errorf("inserting server: %w", ErrDuplicate)
	}

	for _, existing := range s.servers {
		if existing.Name == server.Name || existing.APIURL == server.APIURL {
			return fmt.Errorf("inserting server: %w", ErrDuplicate)
		}
	}

	stored := *server
	s.servers[server.ID] = &stored
	s.order = append(s.order, server.ID)

	return nil
}

// GetServer retrieves a server by ID.
func (s *MemoryStore) GetServer(_ context.Context, id string) (*Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	server, ok := s.servers[id]
	if !ok {
		return nil, nil
	}

	found := *server

	return &found, nil
}

// GetServerByName retrieves a server by its display name.
func (s *MemoryStore) GetServerByName(_ context.Context, name string) (*Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, server := range s.servers {
		if server.Name == name {
			found := *server

			return &found, nil
		}
	}

	return nil, nil
}

// ListServers retrieves all servers in insertion order.
func (s *MemoryStore) ListServers(_ context.Context) ([]*Server, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	servers := make([]*Server, 0, len(s.order))

	for _, id := range s.order {
		server := *s.servers[id]
		servers = append(servers, &server)
	}

	return servers, nil
}

// DeleteServer deletes a server by ID.
func (s *MemoryStore) DeleteServer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.servers[id]; !ok {
		return nil
	}

	delete(s.servers, id)

	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)

			break
		}
	}

	return nil
}
