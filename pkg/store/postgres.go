package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint violations.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	log logrus.FieldLogger
	dsn string
	db  *sql.DB
}

// Ensure PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL store.
func NewPostgresStore(log logrus.FieldLogger, dsn string) Store {
	return &PostgresStore{
		log: log.WithField("component", "store"),
		dsn: dsn,
	}
}

// Start opens the database connection.
func (s *PostgresStore) Start(ctx context.Context) error {
	s.log.Info("Opening PostgreSQL database")

	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test connection.
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *PostgresStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	s.log.Info("Running database migrations")

	migrations := []string{
		// Servers table.
		`CREATE TABLE IF NOT EXISTS servers (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL UNIQUE,
			api_url TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// CreateServer inserts a new server.
func (s *PostgresStore) CreateServer(ctx context.Context, server *Server) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, api_url, created_at)
		VALUES ($1, $2, $3, $4)
	`, server.ID, server.Name, server.APIURL, server.CreatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("inserting server: %w", ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}

	return nil
}

// GetServer retrieves a server by ID.
func (s *PostgresStore) GetServer(ctx context.Context, id string) (*Server, error) {
	return s.getServer(ctx, `SELECT id, name, api_url, created_at FROM servers WHERE id = $1`, id)
}

// GetServerByName retrieves a server by its display name.
func (s *PostgresStore) GetServerByName(ctx context.Context, name string) (*Server, error) {
	return s.getServer(ctx, `SELECT id, name, api_url, created_at FROM servers WHERE name = $1`, name)
}

func (s *PostgresStore) getServer(ctx context.Context, query, arg string) (*Server, error) {
	var server Server

	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&server.ID, &server.Name, &server.APIURL, &server.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("querying server: %w", err)
	}

	return &server, nil
}

// ListServers retrieves all servers in insertion order.
func (s *PostgresStore) ListServers(ctx context.Context) ([]*Server, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, api_url, created_at
		FROM servers ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}

	defer rows.Close()

	var servers []*Server

	for rows.Next() {
		var server Server

		if err := rows.Scan(&server.ID, &server.Name, &server.APIURL, &server.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}

		servers = append(servers, &server)
	}

	return servers, rows.Err()
}

// DeleteServer deletes a server by ID.
func (s *PostgresStore) DeleteServer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	return nil
}
