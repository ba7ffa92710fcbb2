package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/session"
)

const (
	defaultPadding = 16
	maxPadding     = 1024
)

// SceneSource returns a copy of the current scene of an editing session.
type SceneSource interface {
	Scene(ctx context.Context, sessionID string) (document.Scene, error)
}

type Handler struct {
	scenes    SceneSource
	resolver  ImageResolver
	maxPixels int
}

func NewHandler(scenes SceneSource, resolver ImageResolver, maxPixels int) *Handler {
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Handler{scenes: scenes, resolver: resolver, maxPixels: maxPixels}
}

// ExportPNG handles GET /sessions/{id}/export.png.
// Query: zoom (percent, default 100), padding (pixels), background (color).
func (h *Handler) ExportPNG(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	q := r.URL.Query()

	zoom := 100.0
	if v := q.Get("zoom"); v != "" {
		z, err := strconv.ParseFloat(v, 64)
		if err != nil || z <= 0 {
			http.Error(w, "invalid zoom", http.StatusBadRequest)
			return
		}
		zoom = z
	}
	padding := defaultPadding
	if v := q.Get("padding"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 0 || p > maxPadding {
			http.Error(w, "invalid padding", http.StatusBadRequest)
			return
		}
		padding = p
	}
	opts := []Option{WithResolver(h.resolver), WithMaxPixels(h.maxPixels)}
	if v := q.Get("background"); v != "" {
		c, ok, err := ParseColor(v)
		if err != nil {
			http.Error(w, "invalid background: "+err.Error(), http.StatusBadRequest)
			return
		}
		if ok {
			opts = append(opts, WithBackground(c))
		}
	}

	scene, ok := h.scene(w, r, id)
	if !ok {
		return
	}

	vp, size := FitScene(scene, zoom, padding)
	img, err := Rasterize(scene, vp, size, opts...)
	if errors.Is(err, ErrTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		slog.Error("rasterize", "error", err, "session", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, img); err != nil {
		slog.Error("write png", "error", err, "session", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.png"`, sanitizeName(id)))
	w.Write(buf.Bytes())

	slog.Info("export complete", "session", id, "width", size.X, "height", size.Y, "bytes", buf.Len())
}

// ExportDocument handles GET /sessions/{id}/document.
func (h *Handler) ExportDocument(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	scene, ok := h.scene(w, r, id)
	if !ok {
		return
	}

	data, err := document.Marshal(scene)
	if err != nil {
		slog.Error("marshal document", "error", err, "session", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.json"`, sanitizeName(id)))
	w.Write(data)
}

func (h *Handler) scene(w http.ResponseWriter, r *http.Request, id string) (document.Scene, bool) {
	scene, err := h.scenes.Scene(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		slog.Error("load scene", "error", err, "session", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, false
	}
	return scene, true
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, name)
}
