package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrDuplicate is returned when an insert collides with an existing server's
// id, name or API URL.
var ErrDuplicate = errors.New("server already exists")

// Store defines the interface for database operations.
type Store interface {
	// Lifecycle.
	Start(ctx context.Context) error
	Stop() error
	Ping(ctx context.Context) error

	// Servers.
	CreateServer(ctx context.Context, server *Server) error
	GetServer(ctx context.Context, id string) (*Server, error)
	GetServerByName(ctx context.Context, name string) (*Server, error)
	ListServers(ctx context.Context) ([]*Server, error)
	DeleteServer(ctx context.Context, id string) error

	// Migrations.
	Migrate(ctx context.Context) error
}

// Server is a registered GitHub Enterprise server.
type Server struct {
	ID        string    `json:"id" example:"3f5a1c..."`
	Name      string    `json:"name" example:"My Server"`
	APIURL    string    `json:"apiUrl" example:"https://github.example.com/api/v3"`
	CreatedAt time.Time `json:"createdAt"`
}

// ServerID derives the stable identifier of a server from its API URL: the
// hex-encoded SHA-256 digest of the URL exactly as registered.
func ServerID(apiURL string) string {
	sum := sha256.Sum256([]byte(apiURL))

	return hex.EncodeToString(sum[:])
}
