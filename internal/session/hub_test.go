package session

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/canvas/internal/asset"
	"github.com/inamate/canvas/internal/command"
	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/storage"
	"github.com/inamate/canvas/internal/typeid"
)

// fakeImages resolves every source to a 200x100 image, or fails.
type fakeImages struct {
	err error
}

func (f fakeImages) AcquireAsync(_ context.Context, src asset.Source, done func(engine.ImageResult, error)) {
	go func() {
		if f.err != nil {
			done(engine.ImageResult{}, f.err)
			return
		}
		done(engine.ImageResult{
			Source:        document.ImageSource{AssetID: src.AssetID, URL: src.URL},
			Handle:        image.NewRGBA(image.Rect(0, 0, 200, 100)),
			NaturalWidth:  200,
			NaturalHeight: 100,
		}, nil)
	}()
}

func startHub(t *testing.T, store storage.Store, images ImageAcquirer) *Hub {
	t.Helper()
	h := NewHub(store, images)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return h
}

func mustCmd(t *testing.T, name string, args any) command.Command {
	t.Helper()
	c := command.Command{Name: name}
	if args != nil {
		raw, err := json.Marshal(args)
		require.NoError(t, err)
		c.Args = raw
	}
	return c
}

func addRect(t *testing.T, h *Hub, id string) string {
	t.Helper()
	out, err := h.Execute(context.Background(), id, mustCmd(t, command.ElementAdd, map[string]any{
		"kind":   "rectangle",
		"bounds": map[string]float64{"x": 0, "y": 0, "width": 100, "height": 50},
	}))
	require.NoError(t, err)
	return out.Result.(map[string]string)["id"]
}

func TestCreateSavesFirstVersion(t *testing.T) {
	store := storage.NewMemory()
	h := startHub(t, store, nil)
	ctx := context.Background()

	info, err := h.Create(ctx, document.NewSampleScene())
	require.NoError(t, err)
	require.NoError(t, typeid.Validate(info.ID, typeid.PrefixSession))
	assert.Equal(t, 1, info.Version)
	assert.Equal(t, len(document.NewSampleScene()), info.Elements)
	assert.False(t, info.CanUndo)

	snap, err := store.Latest(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
}

func TestExecuteAndSave(t *testing.T) {
	store := storage.NewMemory()
	h := startHub(t, store, nil)
	ctx := context.Background()

	info, err := h.Create(ctx, nil)
	require.NoError(t, err)
	id := addRect(t, h, info.ID)

	got, err := h.Info(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Elements)
	assert.True(t, got.CanUndo)

	snap, err := h.Save(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)

	scene, err := document.Unmarshal(snap.Document)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, scene.IDs())

	got, err = h.Info(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
}

func TestExecuteErrors(t *testing.T) {
	h := startHub(t, storage.NewMemory(), nil)
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	_, err = h.Execute(ctx, info.ID, mustCmd(t, command.ElementRemove, map[string]string{}))
	assert.ErrorIs(t, err, command.ErrBadArgs)
	assert.Equal(t, command.CodeBadRequest, Code(err))

	_, err = h.Execute(ctx, info.ID, mustCmd(t, command.ElementUpdate, map[string]any{"id": "el_missing", "patch": map[string]any{"x": 1}}))
	assert.Equal(t, command.CodeNotFound, Code(err))

	_, err = h.Execute(ctx, typeid.NewSessionID(), mustCmd(t, command.HistoryUndo, nil))
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.Execute(ctx, "../../etc", mustCmd(t, command.HistoryUndo, nil))
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsLoadFromStorage(t *testing.T) {
	store := storage.NewMemory()
	ctx := context.Background()

	data, err := document.Marshal(document.NewSampleScene())
	require.NoError(t, err)
	sessionID := typeid.NewSessionID()
	_, err = store.Save(ctx, sessionID, data)
	require.NoError(t, err)

	h := startHub(t, store, nil)
	scene, err := h.Scene(ctx, sessionID)
	require.NoError(t, err)
	assert.Len(t, scene, len(document.NewSampleScene()))

	info, err := h.Info(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, info.Version)
	assert.Equal(t, uint64(0), info.Revision)
}

func TestShutdownSavesDirtySessions(t *testing.T) {
	store := storage.NewMemory()
	h := NewHub(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	dirty, err := h.Create(context.Background(), nil)
	require.NoError(t, err)
	clean, err := h.Create(context.Background(), nil)
	require.NoError(t, err)
	addRect(t, h, dirty.ID)

	cancel()
	<-stopped

	snap, err := store.Latest(context.Background(), dirty.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Version)
	snap, err = store.Latest(context.Background(), clean.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)

	_, err = h.Info(context.Background(), dirty.ID)
	assert.ErrorIs(t, err, ErrHubStopped)
}

// gatedStore holds every Save after arm until release is closed.
type gatedStore struct {
	storage.Store
	armed   atomic.Bool
	started chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		Store:   storage.NewMemory(),
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
}

func (g *gatedStore) Save(ctx context.Context, sessionID string, document []byte) (storage.Snapshot, error) {
	if g.armed.Load() {
		g.started <- struct{}{}
		<-g.release
	}
	return g.Store.Save(ctx, sessionID, document)
}

func testClient(h *Hub, sessionID, clientID string) *Client {
	return &Client{hub: h, send: make(chan []byte, 256), SessionID: sessionID, ClientID: clientID}
}

// isLive reports whether the session is held in memory. It is safe to
// call from Eventually's goroutine.
func isLive(h *Hub, sessionID string) bool {
	var live bool
	h.do(context.Background(), func() { _, live = h.rooms[sessionID] })
	return live
}

func TestLastClientLeavingAutosaves(t *testing.T) {
	store := storage.NewMemory()
	h := startHub(t, store, nil)
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	c := testClient(h, info.ID, "c1")
	require.NoError(t, h.Register(ctx, c))
	addRect(t, h, info.ID)
	h.Unregister(c)

	require.Eventually(t, func() bool {
		snap, err := store.Latest(ctx, info.ID)
		return err == nil && snap.Version == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !isLive(h, info.ID) }, 2*time.Second, 10*time.Millisecond)

	// The evicted session reloads from the autosaved snapshot.
	got, err := h.Info(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Elements)
	assert.Equal(t, 2, got.Version)
}

func TestCleanSessionIsEvictedWithoutSaving(t *testing.T) {
	store := storage.NewMemory()
	h := startHub(t, store, nil)
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	c := testClient(h, info.ID, "c1")
	require.NoError(t, h.Register(ctx, c))
	h.Unregister(c)

	require.Eventually(t, func() bool { return !isLive(h, info.ID) }, 2*time.Second, 10*time.Millisecond)
	snap, err := store.Latest(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version)
}

func TestRejoinDuringAutosaveKeepsSession(t *testing.T) {
	store := newGatedStore()
	h := startHub(t, store, nil)
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	first := testClient(h, info.ID, "c1")
	require.NoError(t, h.Register(ctx, first))
	addRect(t, h, info.ID)

	store.armed.Store(true)
	h.Unregister(first)
	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("autosave did not start")
	}

	second := testClient(h, info.ID, "c2")
	require.NoError(t, h.Register(ctx, second))
	store.armed.Store(false)
	close(store.release)

	require.Eventually(t, func() bool {
		got, err := h.Info(ctx, info.ID)
		return err == nil && got.Version == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, isLive(h, info.ID))
	got, err := h.Info(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Clients)
	assert.Equal(t, 1, got.Elements)
}

func TestEditDuringAutosaveKeepsSession(t *testing.T) {
	store := newGatedStore()
	h := startHub(t, store, nil)
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	c := testClient(h, info.ID, "c1")
	require.NoError(t, h.Register(ctx, c))
	addRect(t, h, info.ID)

	store.armed.Store(true)
	h.Unregister(c)
	select {
	case <-store.started:
	case <-time.After(2 * time.Second):
		t.Fatal("autosave did not start")
	}

	// An HTTP command lands while the snapshot is being written.
	addRect(t, h, info.ID)
	store.armed.Store(false)
	close(store.release)

	require.Eventually(t, func() bool {
		got, err := h.Info(ctx, info.ID)
		return err == nil && got.Version == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, isLive(h, info.ID), "unsaved edits must stay in memory")
	got, err := h.Info(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Elements)
}

func TestPlaceImage(t *testing.T) {
	h := startHub(t, storage.NewMemory(), fakeImages{})
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	out, err := h.Execute(ctx, info.ID, mustCmd(t, command.ImagePlace, map[string]any{
		"source": map[string]string{"url": "https://example.com/a.png"},
		"box":    map[string]float64{"x": 0, "y": 0, "width": 100, "height": 100},
	}))
	require.NoError(t, err)
	elID := out.Result.(map[string]string)["id"]

	scene, err := h.Scene(ctx, info.ID)
	require.NoError(t, err)
	i := scene.IndexOf(elID)
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, 50.0, scene[i].Height)
	assert.Equal(t, document.KindImage, scene[i].Kind())
}

func TestPlaceImageFailure(t *testing.T) {
	h := startHub(t, storage.NewMemory(), fakeImages{err: asset.ErrNotFound})
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	_, err = h.Execute(ctx, info.ID, mustCmd(t, command.ImagePlace, map[string]any{
		"source": map[string]string{"assetId": typeid.NewAssetID()},
	}))
	assert.Equal(t, command.CodeNotFound, Code(err))

	noImages := startHub(t, storage.NewMemory(), nil)
	info, err = noImages.Create(ctx, nil)
	require.NoError(t, err)
	_, err = noImages.Execute(ctx, info.ID, mustCmd(t, command.ImagePlace, map[string]any{
		"source": map[string]string{"url": "https://example.com/a.png"},
	}))
	assert.ErrorIs(t, err, command.ErrBadArgs)
}

func TestPlaceImageRefusesInternalURL(t *testing.T) {
	loader, err := asset.NewLoader(t.TempDir(), nil)
	require.NoError(t, err)
	h := startHub(t, storage.NewMemory(), loader)
	ctx := context.Background()
	info, err := h.Create(ctx, nil)
	require.NoError(t, err)

	_, err = h.Execute(ctx, info.ID, mustCmd(t, command.ImagePlace, map[string]any{
		"source": map[string]string{"url": "http://127.0.0.1:1/a.png"},
	}))
	assert.ErrorIs(t, err, asset.ErrForbiddenURL)
	assert.Equal(t, command.CodeBadRequest, Code(err))

	got, err := h.Info(ctx, info.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Elements)
}

func TestDoHonorsContext(t *testing.T) {
	h := NewHub(storage.NewMemory(), nil) // never run
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Info(ctx, typeid.NewSessionID())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
