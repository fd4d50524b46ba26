// Package history persists completed analyses across process restarts.
//
// Two backends implement Store: an embedded SQLite database for
// single-node deployments, and PostgreSQL for shared ones. Both serialize
// the full analysis result as JSON and index the searchable columns
// alongside it.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/ashita-ai/hibana/internal/analysis"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("history: not found")

// Record is one persisted analysis.
type Record struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	AppID     string    `json:"app_id"`
	AppName   string    `json:"app_name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Result *analysis.Result `json:"result,omitempty"`
}

// Store is the persistence contract. Implementations are safe for
// concurrent use.
type Store interface {
	// Save persists a record. Saving an existing id overwrites it.
	Save(ctx context.Context, rec Record) error
	// Get returns one record including its full result, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)
	// Recent returns up to limit records, newest first, without results.
	Recent(ctx context.Context, limit int) ([]Record, error)
	// Delete removes one record; deleting a missing id is ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Ping checks backend connectivity.
	Ping(ctx context.Context) error
	// Close releases the backend.
	Close() error
}
