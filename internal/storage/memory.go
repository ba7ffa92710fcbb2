package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/inamate/canvas/internal/typeid"
)

// Memory keeps snapshots in process memory. It is used when no database
// is configured and in tests.
type Memory struct {
	mu        sync.RWMutex
	snapshots map[string][]Snapshot // sessionID -> versions, oldest first
}

func NewMemory() *Memory {
	return &Memory{snapshots: make(map[string][]Snapshot)}
}

func (m *Memory) Save(ctx context.Context, sessionID string, document []byte) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("save snapshot: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	versions := m.snapshots[sessionID]
	snap := Snapshot{
		ID:        typeid.NewSnapshotID(),
		SessionID: sessionID,
		Version:   len(versions) + 1,
		Document:  slices.Clone(document),
		CreatedAt: time.Now().UTC(),
	}
	m.snapshots[sessionID] = append(versions, snap)
	return snap, nil
}

func (m *Memory) Latest(ctx context.Context, sessionID string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	versions := m.snapshots[sessionID]
	if len(versions) == 0 {
		return Snapshot{}, ErrNotFound
	}
	snap := versions[len(versions)-1]
	snap.Document = slices.Clone(snap.Document)
	return snap, nil
}

func (m *Memory) Close() {}
