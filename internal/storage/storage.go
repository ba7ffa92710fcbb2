// Package storage persists serialized scenes as versioned snapshots.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a session has no saved snapshot.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is one saved version of a session's document.
type Snapshot struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Version   int       `json:"version"`
	Document  []byte    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store saves and loads snapshots. Versions start at 1 and increase by one
// per save of the same session.
type Store interface {
	Save(ctx context.Context, sessionID string, document []byte) (Snapshot, error)
	Latest(ctx context.Context, sessionID string) (Snapshot, error)
	Close()
}
