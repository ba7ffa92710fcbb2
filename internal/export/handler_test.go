package export

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/geom"
	"github.com/inamate/canvas/internal/session"
)

type sceneMap map[string]document.Scene

func (m sceneMap) Scene(_ context.Context, id string) (document.Scene, error) {
	s, ok := m[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionNotFound, id)
	}
	return s.Clone(), nil
}

func newRouter(scenes SceneSource, maxPixels int) *mux.Router {
	h := NewHandler(scenes, mapResolver{}, maxPixels)
	r := mux.NewRouter()
	r.HandleFunc("/sessions/{id}/export.png", h.ExportPNG).Methods("GET")
	r.HandleFunc("/sessions/{id}/document", h.ExportDocument).Methods("GET")
	return r
}

func serve(r http.Handler, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func testScenes() sceneMap {
	return sceneMap{
		"sess_a": {
			element("r", geom.Rect{X: 100, Y: 100, Width: 40, Height: 20},
				document.Style{Fill: "#0000ff", Opacity: 1}, document.RectData{}),
		},
	}
}

func TestExportPNG(t *testing.T) {
	r := newRouter(testScenes(), 0)

	rec := serve(r, "/sessions/sess_a/export.png?padding=10&background=white")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="sess_a.png"`)

	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 60, 40), img.Bounds())

	rgba := image.NewRGBA(img.Bounds())
	for y := range 40 {
		for x := range 60 {
			rgba.Set(x, y, img.At(x, y))
		}
	}
	assertColorNear(t, color.RGBA{B: 255, A: 255}, rgba.RGBAAt(30, 20))
	assertColorNear(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, rgba.RGBAAt(2, 2))
}

func TestExportPNGZoom(t *testing.T) {
	r := newRouter(testScenes(), 0)

	rec := serve(r, "/sessions/sess_a/export.png?padding=0&zoom=200")
	require.Equal(t, http.StatusOK, rec.Code)
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 80, 40), img.Bounds())
}

func TestExportPNGErrors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		max  int
		code int
	}{
		{"unknown session", "/sessions/sess_b/export.png", 0, http.StatusNotFound},
		{"bad zoom", "/sessions/sess_a/export.png?zoom=abc", 0, http.StatusBadRequest},
		{"negative zoom", "/sessions/sess_a/export.png?zoom=-5", 0, http.StatusBadRequest},
		{"bad padding", "/sessions/sess_a/export.png?padding=99999", 0, http.StatusBadRequest},
		{"bad background", "/sessions/sess_a/export.png?background=notacolor", 0, http.StatusBadRequest},
		{"too large", "/sessions/sess_a/export.png", 100, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newRouter(testScenes(), tt.max), tt.url)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestExportDocument(t *testing.T) {
	scenes := testScenes()
	r := newRouter(scenes, 0)

	rec := serve(r, "/sessions/sess_a/document")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	got, err := document.Unmarshal(rec.Body.Bytes())
	require.NoError(t, err)
	assert.True(t, scenes["sess_a"].Equal(got))

	rec = serve(r, "/sessions/sess_b/document")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "sess_01h-abc", sanitizeName("sess_01h/abc"))
	assert.Equal(t, "---etc", sanitizeName("../etc"))
}
