// Package session hosts editing sessions for network clients. A single hub
// goroutine owns every engine session; HTTP handlers and WebSocket clients
// reach them by posting closures to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/inamate/canvas/internal/asset"
	"github.com/inamate/canvas/internal/command"
	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/storage"
	"github.com/inamate/canvas/internal/typeid"
)

const (
	saveTimeout    = 10 * time.Second
	acquireTimeout = 30 * time.Second
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrHubStopped      = errors.New("session hub stopped")
)

// ImageAcquirer decodes image sources off the hub goroutine.
type ImageAcquirer interface {
	AcquireAsync(ctx context.Context, src asset.Source, done func(engine.ImageResult, error))
}

// Info summarizes a live session.
type Info struct {
	ID       string `json:"id"`
	Elements int    `json:"elements"`
	Revision uint64 `json:"revision"`
	Version  int    `json:"version"` // last saved snapshot version
	Clients  int    `json:"clients"`
	CanUndo  bool   `json:"canUndo"`
	CanRedo  bool   `json:"canRedo"`
}

// Room is one engine session and the clients viewing it.
type Room struct {
	id       string
	session  *engine.Session
	clients  map[string]*Client // clientID -> client
	saved    uint64             // session revision at the last save
	version  int
	removing bool // an autosave before eviction is in flight
}

func (r *Room) dirty() bool {
	return r.session.Revision() != r.saved
}

func (r *Room) info() Info {
	return Info{
		ID:       r.id,
		Elements: r.session.Len(),
		Revision: r.session.Revision(),
		Version:  r.version,
		Clients:  len(r.clients),
		CanUndo:  r.session.CanUndo(),
		CanRedo:  r.session.CanRedo(),
	}
}

// Hub owns all live rooms. Rooms are only touched on the Run goroutine.
type Hub struct {
	store  storage.Store
	images ImageAcquirer
	opts   []engine.Option

	rooms    map[string]*Room // sessionID -> room
	requests chan func()
	done     chan struct{}
	saves    sync.WaitGroup
}

// NewHub creates a hub. opts configure every engine session it creates.
func NewHub(store storage.Store, images ImageAcquirer, opts ...engine.Option) *Hub {
	return &Hub{
		store:    store,
		images:   images,
		opts:     opts,
		rooms:    make(map[string]*Room),
		requests: make(chan func()),
		done:     make(chan struct{}),
	}
}

// Run processes requests until ctx is cancelled, then saves every dirty
// room and disconnects all clients.
func (h *Hub) Run(ctx context.Context) {
	defer h.saves.Wait()
	defer close(h.done)

	for {
		select {
		case fn := <-h.requests:
			fn()
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

func (h *Hub) shutdown() {
	slog.Info("saving all sessions", "rooms", len(h.rooms))
	for _, r := range h.rooms {
		for _, c := range r.clients {
			close(c.send)
		}
		r.clients = nil
		if !r.dirty() {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if _, err := h.saveRoom(ctx, r); err != nil {
			slog.Error("save session on shutdown", "session", r.id, "error", err)
		}
		cancel()
	}
}

// do runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.requests <- func() { fn(); close(finished) }:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// post queues fn without waiting. It is dropped once the hub has stopped.
func (h *Hub) post(fn func()) {
	select {
	case h.requests <- fn:
	case <-h.done:
	}
}

// withRoom runs fn on the hub goroutine with the room of sessionID,
// loading the latest snapshot from storage when it is not live.
func (h *Hub) withRoom(ctx context.Context, sessionID string, fn func(*Room)) error {
	var found bool
	err := h.do(ctx, func() {
		if r, ok := h.rooms[sessionID]; ok {
			found = true
			fn(r)
		}
	})
	if err != nil || found {
		return err
	}

	// Ids become storage keys; reject anything that is not a session id.
	if err := typeid.Validate(sessionID, typeid.PrefixSession); err != nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	snap, err := h.store.Latest(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	scene, err := document.Unmarshal(snap.Document)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}

	return h.do(ctx, func() {
		r, ok := h.rooms[sessionID]
		if !ok {
			r = h.newRoom(sessionID, scene)
			r.version = snap.Version
			h.rooms[sessionID] = r
			slog.Info("session loaded", "session", sessionID, "version", snap.Version, "elements", len(scene))
		}
		fn(r)
	})
}

func (h *Hub) newRoom(id string, scene document.Scene) *Room {
	opts := slices.Concat(h.opts, []engine.Option{engine.WithScene(scene)})
	return &Room{
		id:      id,
		session: engine.NewSession(opts...),
		clients: make(map[string]*Client),
	}
}

// Create starts a new session with scene and saves it as version 1.
func (h *Hub) Create(ctx context.Context, scene document.Scene) (Info, error) {
	if err := scene.Validate(); err != nil {
		return Info{}, err
	}
	id := typeid.NewSessionID()
	data, err := document.Marshal(scene)
	if err != nil {
		return Info{}, err
	}
	snap, err := h.store.Save(ctx, id, data)
	if err != nil {
		return Info{}, fmt.Errorf("create session: %w", err)
	}

	var info Info
	err = h.do(ctx, func() {
		r := h.newRoom(id, scene)
		r.version = snap.Version
		h.rooms[id] = r
		info = r.info()
	})
	if err != nil {
		return Info{}, err
	}
	slog.Info("session created", "session", id, "elements", len(scene))
	return info, nil
}

// Info describes a session.
func (h *Hub) Info(ctx context.Context, sessionID string) (Info, error) {
	var info Info
	err := h.withRoom(ctx, sessionID, func(r *Room) { info = r.info() })
	return info, err
}

// Scene returns a copy of the session's current scene.
func (h *Hub) Scene(ctx context.Context, sessionID string) (document.Scene, error) {
	var scene document.Scene
	err := h.withRoom(ctx, sessionID, func(r *Room) { scene = r.session.Scene() })
	return scene, err
}

// Render returns the current render state of a session.
func (h *Hub) Render(ctx context.Context, sessionID string) (RenderPayload, error) {
	var p RenderPayload
	err := h.withRoom(ctx, sessionID, func(r *Room) { p = renderOf(r.session) })
	return p, err
}

// Save writes the session's current scene as a new snapshot, even when
// nothing changed since the last save.
func (h *Hub) Save(ctx context.Context, sessionID string) (storage.Snapshot, error) {
	var (
		room *Room
		data []byte
		rev  uint64
		merr error
	)
	err := h.withRoom(ctx, sessionID, func(r *Room) {
		room, rev = r, r.session.Revision()
		data, merr = document.Marshal(r.session.Scene())
	})
	if err != nil {
		return storage.Snapshot{}, err
	}
	if merr != nil {
		return storage.Snapshot{}, merr
	}

	snap, err := h.store.Save(ctx, sessionID, data)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("save session %s: %w", sessionID, err)
	}
	h.post(func() { room.markSaved(rev, snap.Version) })
	slog.Info("session saved", "session", sessionID, "version", snap.Version)
	return snap, nil
}

func (r *Room) markSaved(rev uint64, version int) {
	if rev > r.saved {
		r.saved = rev
	}
	r.version = max(r.version, version)
}

// saveRoom saves synchronously on the hub goroutine.
func (h *Hub) saveRoom(ctx context.Context, r *Room) (storage.Snapshot, error) {
	data, err := document.Marshal(r.session.Scene())
	if err != nil {
		return storage.Snapshot{}, err
	}
	snap, err := h.store.Save(ctx, r.id, data)
	if err != nil {
		return storage.Snapshot{}, err
	}
	r.markSaved(r.session.Revision(), snap.Version)
	return snap, nil
}

// Execute applies cmd to a session and broadcasts the new render state to
// its clients. Image placement waits for the image to be acquired.
func (h *Hub) Execute(ctx context.Context, sessionID string, cmd command.Command) (command.Outcome, error) {
	if cmd.Name == command.ImagePlace {
		return h.executePlace(ctx, sessionID, cmd)
	}
	var (
		out  command.Outcome
		cerr error
	)
	err := h.withRoom(ctx, sessionID, func(r *Room) {
		out, cerr = h.apply(r, cmd)
	})
	if err != nil {
		return command.Outcome{}, err
	}
	return out, cerr
}

type placed struct {
	out command.Outcome
	err error
}

func (h *Hub) executePlace(ctx context.Context, sessionID string, cmd command.Command) (command.Outcome, error) {
	args, err := command.DecodePlace(cmd)
	if err != nil {
		return command.Outcome{}, err
	}
	reply := make(chan placed, 1)
	err = h.withRoom(ctx, sessionID, func(r *Room) {
		h.place(ctx, r, args, func(out command.Outcome, err error) {
			reply <- placed{out, err}
		})
	})
	if err != nil {
		return command.Outcome{}, err
	}
	select {
	case p := <-reply:
		return p.out, p.err
	case <-h.done:
		return command.Outcome{}, ErrHubStopped
	case <-ctx.Done():
		return command.Outcome{}, ctx.Err()
	}
}

// apply runs on the hub goroutine.
func (h *Hub) apply(r *Room, cmd command.Command) (command.Outcome, error) {
	out, err := command.Apply(r.session, cmd)
	if err != nil {
		return out, err
	}
	if out.Render {
		h.broadcastRender(r)
	}
	return out, nil
}

// place acquires the image off the hub goroutine and adds it to the room
// once decoded. reply runs on the hub goroutine.
func (h *Hub) place(ctx context.Context, r *Room, args command.PlaceArgs, reply func(command.Outcome, error)) {
	if h.images == nil {
		reply(command.Outcome{}, fmt.Errorf("%w: image loading is not configured", command.ErrBadArgs))
		return
	}
	src := asset.Source{
		AssetID: args.Source.AssetID,
		URL:     args.Source.URL,
		Data:    args.Source.Data,
	}
	h.images.AcquireAsync(ctx, src, func(img engine.ImageResult, err error) {
		h.post(func() {
			if err != nil {
				reply(command.Outcome{}, err)
				return
			}
			if h.rooms[r.id] != r {
				reply(command.Outcome{}, fmt.Errorf("%w: %s", ErrSessionNotFound, r.id))
				return
			}
			out := command.Placed(r.session, img, args.Box)
			h.broadcastRender(r)
			reply(out, nil)
		})
	})
}

// --- Clients ---

// Register attaches a client to its session and sends it a welcome.
func (h *Hub) Register(ctx context.Context, c *Client) error {
	return h.withRoom(ctx, c.SessionID, func(r *Room) {
		r.clients[c.ClientID] = c
		r.removing = false

		welcome, err := newMessage(TypeWelcome, WelcomePayload{ClientID: c.ClientID, Render: renderOf(r.session)})
		if err != nil {
			slog.Error("marshal welcome", "error", err)
			return
		}
		welcome.SessionID = r.id
		c.Send(welcome)
		h.broadcastPresence(r, TypeJoin, c.ClientID)

		slog.Info("client joined", "client", c.ClientID, "session", r.id)
	})
}

// Unregister detaches a client. It is safe to call after the hub stopped.
func (h *Hub) Unregister(c *Client) {
	h.post(func() { h.removeClient(c) })
}

func (h *Hub) removeClient(c *Client) {
	r, ok := h.rooms[c.SessionID]
	if !ok || r.clients[c.ClientID] != c {
		return
	}
	delete(r.clients, c.ClientID)
	close(c.send)
	h.broadcastPresence(r, TypeLeave, c.ClientID)
	slog.Info("client left", "client", c.ClientID, "session", r.id)

	if len(r.clients) == 0 {
		h.evict(r)
	}
}

// evict drops an idle room from memory, saving it first when dirty.
func (h *Hub) evict(r *Room) {
	if !r.dirty() {
		delete(h.rooms, r.id)
		return
	}
	data, err := document.Marshal(r.session.Scene())
	if err != nil {
		slog.Error("marshal session for autosave", "session", r.id, "error", err)
		return
	}
	rev := r.session.Revision()
	r.removing = true

	h.saves.Add(1)
	go func() {
		defer h.saves.Done()
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()

		snap, err := h.store.Save(ctx, r.id, data)
		if err != nil {
			slog.Error("autosave session", "session", r.id, "error", err)
			h.post(func() { r.removing = false })
			return
		}
		slog.Info("session autosaved", "session", r.id, "version", snap.Version)
		h.post(func() {
			r.markSaved(rev, snap.Version)
			// A client may have joined or an HTTP command changed the
			// scene while saving.
			if r.removing && len(r.clients) == 0 && !r.dirty() && h.rooms[r.id] == r {
				delete(h.rooms, r.id)
			}
			r.removing = false
		})
	}()
}

// submit handles a cmd.submit from a client on the hub goroutine.
func (h *Hub) submit(c *Client, msg *Message) {
	r, ok := h.rooms[c.SessionID]
	if !ok || r.clients[c.ClientID] != c {
		return
	}

	var cmd command.Command
	if err := decodePayload(msg.Payload, &cmd); err != nil {
		h.nack(r, c, msg.Seq, err)
		return
	}
	if cmd.Name == command.ImagePlace {
		args, err := command.DecodePlace(cmd)
		if err != nil {
			h.nack(r, c, msg.Seq, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), acquireTimeout)
		h.place(ctx, r, args, func(out command.Outcome, err error) {
			cancel()
			h.reply(r, c, msg.Seq, out, err)
		})
		return
	}

	out, err := h.apply(r, cmd)
	h.reply(r, c, msg.Seq, out, err)
}

func (h *Hub) reply(r *Room, c *Client, seq int64, out command.Outcome, err error) {
	if err != nil {
		h.nack(r, c, seq, err)
		return
	}
	ack, merr := newMessage(TypeAck, AckPayload{Seq: seq, Result: out.Result})
	if merr != nil {
		slog.Error("marshal ack", "error", merr)
		return
	}
	h.sendTo(r, c, ack)
}

func (h *Hub) nack(r *Room, c *Client, seq int64, err error) {
	msg, merr := newMessage(TypeNack, NackPayload{Seq: seq, Code: Code(err), Reason: err.Error()})
	if merr != nil {
		slog.Error("marshal nack", "error", merr)
		return
	}
	h.sendTo(r, c, msg)
}

// sendTo sends only while c is still attached; its channel is closed once
// it leaves.
func (h *Hub) sendTo(r *Room, c *Client, msg *Message) {
	if r.clients[c.ClientID] != c {
		return
	}
	msg.SessionID = r.id
	c.Send(msg)
}

func (h *Hub) broadcastRender(r *Room) {
	if len(r.clients) == 0 {
		return
	}
	msg, err := newMessage(TypeRender, renderOf(r.session))
	if err != nil {
		slog.Error("marshal render", "error", err)
		return
	}
	h.broadcast(r, msg, "")
}

func (h *Hub) broadcastPresence(r *Room, typ, clientID string) {
	msg, err := newMessage(typ, PresencePayload{ClientID: clientID, Clients: len(r.clients)})
	if err != nil {
		slog.Error("marshal presence", "error", err)
		return
	}
	msg.ClientID = clientID
	h.broadcast(r, msg, clientID)
}

func (h *Hub) broadcast(r *Room, msg *Message, excludeClientID string) {
	msg.SessionID = r.id
	for _, c := range r.clients {
		if c.ClientID != excludeClientID {
			c.Send(msg)
		}
	}
}

// Code maps an error from Execute to its wire code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, asset.ErrNotFound):
		return command.CodeNotFound
	case errors.Is(err, asset.ErrEmptySource), errors.Is(err, asset.ErrForbiddenURL):
		return command.CodeBadRequest
	}
	return command.Code(err)
}
