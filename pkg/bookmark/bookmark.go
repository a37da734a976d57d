// Package bookmark provides durable per-user named-server storage. Each user
// owns an ordered list of saved servers; names are unique within one user and
// adding an existing name overwrites in place.
package bookmark

import (
	"context"

	"github.com/xenonsan/eagpaas/pkg/connect"
)

// SavedServer is one bookmarked destination.
type SavedServer struct {
	Name string       `json:"name"`
	Host string       `json:"ip"`
	Port uint16       `json:"port"`
	Mode connect.Type `json:"type"`
}

// Store defines bookmark persistence. Mutations persist synchronously before
// returning; Load re-reads backing state so edits from other sessions of the
// same user are picked up.
type Store interface {
	// Load refreshes in-memory state from the backing store. A store that
	// does not exist yet is an empty store, not an error.
	Load(ctx context.Context) error

	// GetServers returns the user's bookmarks in insertion order. Users
	// with no bookmarks get an empty list.
	GetServers(ctx context.Context, username string) ([]SavedServer, error)

	// AddServer upserts by name: an existing bookmark with the same name is
	// replaced in place, otherwise the server is appended.
	AddServer(ctx context.Context, username string, server SavedServer) error

	// RemoveServer deletes by name. Removing a name that does not exist is
	// a no-op, not an error.
	RemoveServer(ctx context.Context, username string, name string) error

	// Close releases backing resources.
	Close() error
}
