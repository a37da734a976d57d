// Package postgres provides PostgreSQL storage for bookmarks, for instances
// that run more than one gateway replica against shared state.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/xenonsan/eagpaas/pkg/bookmark"
	"github.com/xenonsan/eagpaas/pkg/connect"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements bookmark.Store using PostgreSQL. Insertion order is kept
// with a sequence-backed position column so list rendering matches the file
// store's behavior.
type Store struct {
	db     *sql.DB
	ownsDB bool
}

// New creates a Store on an existing database handle. The caller keeps
// ownership of db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, runs migrations, and returns a Store that owns the
// connection.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, ownsDB: true}, nil
}

// Load verifies the database is reachable. Reads always hit the database, so
// there is no cached state to refresh.
func (s *Store) Load(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetServers returns the user's bookmarks in insertion order.
func (s *Store) GetServers(ctx context.Context, username string) ([]bookmark.SavedServer, error) {
	query, args, err := psql.
		Select("name", "host", "port", "mode").
		From("user_servers").
		Where(sq.Eq{"username": username}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookmarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var servers []bookmark.SavedServer
	for rows.Next() {
		var srv bookmark.SavedServer
		var mode string
		var port int
		if err := rows.Scan(&srv.Name, &srv.Host, &port, &mode); err != nil {
			return nil, fmt.Errorf("scanning bookmark: %w", err)
		}
		srv.Port = uint16(port)
		srv.Mode = connect.Type(mode)
		servers = append(servers, srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bookmarks: %w", err)
	}
	if servers == nil {
		servers = []bookmark.SavedServer{}
	}
	return servers, nil
}

// AddServer upserts by (username, name). The position assigned on first
// insert survives updates, preserving list order.
func (s *Store) AddServer(ctx context.Context, username string, server bookmark.SavedServer) error {
	query, args, err := psql.
		Insert("user_servers").
		Columns("username", "name", "host", "port", "mode").
		Values(username, server.Name, server.Host, int(server.Port), string(server.Mode)).
		Suffix("ON CONFLICT (username, name) DO UPDATE SET host = EXCLUDED.host, port = EXCLUDED.port, mode = EXCLUDED.mode").
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting bookmark: %w", err)
	}
	return nil
}

// RemoveServer deletes by name. Missing names are a no-op.
func (s *Store) RemoveServer(ctx context.Context, username string, name string) error {
	query, args, err := psql.
		Delete("user_servers").
		Where(sq.Eq{"username": username, "name": name}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("deleting bookmark: %w", err)
	}
	return nil
}

// Close releases the database handle when the store owns it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Verify interface compliance.
var _ bookmark.Store = (*Store)(nil)
