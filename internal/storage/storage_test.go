package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/canvas/internal/typeid"
)

// testStore runs the behavior every Store implementation must share.
func testStore(t *testing.T, s Store) {
	ctx := context.Background()
	session := typeid.NewSessionID()

	_, err := s.Latest(ctx, session)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := s.Save(ctx, session, []byte(`{"version":1,"elements":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, session, first.SessionID)
	require.NoError(t, typeid.Validate(first.ID, typeid.PrefixSnapshot))

	second, err := s.Save(ctx, session, []byte(`{"version":1,"elements":[{"id":"a"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	latest, err := s.Latest(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
	assert.Equal(t, 2, latest.Version)
	assert.JSONEq(t, `{"version":1,"elements":[{"id":"a"}]}`, string(latest.Document))

	other, err := s.Save(ctx, typeid.NewSessionID(), []byte(`{"version":1,"elements":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, other.Version, "versions are per session")
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemory())
}

func TestMemoryStoreCopiesDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	doc := []byte(`{"a":1}`)

	_, err := m.Save(ctx, "s", doc)
	require.NoError(t, err)
	doc[2] = 'b'

	latest, err := m.Latest(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(latest.Document))
}

func TestMemoryStoreCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().Save(ctx, "s", []byte(`{}`))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	p, err := NewPostgres(ctx, url)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	require.NoError(t, p.Migrate(ctx))

	testStore(t, p)
}
