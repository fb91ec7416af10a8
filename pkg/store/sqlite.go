package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	log  logrus.FieldLogger
	path string
	db   *sql.DB
}

// Ensure SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(log logrus.FieldLogger, path string) Store {
	return &SQLiteStore{
		log:  log.WithField("component", "store"),
		path: path,
	}
}

// Start opens the database connection.
func (s *SQLiteStore) Start(ctx context.Context) error {
	s.log.WithField("path", s.path).Info("Opening SQLite database")

	db, err := sql.Open("sqlite3", s.path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	// SQLite allows a single writer; keep one connection so in-memory
	// databases are not discarded between queries.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	s.db = db

	return nil
}

// Stop closes the database connection.
func (s *SQLiteStore) Stop() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.log.Info("Running database migrations")

	migrations := []string{
		// Servers table. seq records insertion order.
		`CREATE TABLE IF NOT EXISTS servers (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL UNIQUE,
			api_url TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_servers_created_at ON servers(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("running migration: %w", err)
		}
	}

	return nil
}

// CreateServer inserts a new server.
func (s *SQLiteStore) CreateServer(ctx context.Context, server *Server) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, api_url, created_at)
		VALUES (?, ?, ?, ?)
	`, server.ID, server.Name, server.APIURL, server.CreatedAt)

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("inserting server: %w", ErrDuplicate)
	}

	if err != nil {
		return fmt.Errorf("inserting server: %w", err)
	}

	return nil
}

// GetServer retrieves a server by ID.
func (s *SQLiteStore) GetServer(ctx context.Context, id string) (*Server, error) {
	return s.getServer(ctx, `SELECT id, name, api_url, created_at FROM servers WHERE id = ?`, id)
}

// GetServerByName retrieves a server by its display name.
func (s *SQLiteStore) GetServerByName(ctx context.Context, name string) (*Server, error) {
	return s.getServer(ctx, `SELECT id, name, api_url, created_at FROM servers WHERE name = ?`, name)
}

func (s *SQLiteStore) getServer(ctx context.Context, query, arg string) (*Server, error) {
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
func (s *SQLiteStore) ListServers(ctx context.Context) ([]*Server, error) {
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
func (s *SQLiteStore) DeleteServer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}

	return nil
}
