package asset

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/typeid"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(t.TempDir(), nil)
	require.NoError(t, err)
	return l
}

func TestAcquireRawBytesStoresAsset(t *testing.T) {
	l := newTestLoader(t)

	res, err := l.Acquire(context.Background(), Source{Data: pngBytes(t, 6, 3)})
	require.NoError(t, err)

	assert.Equal(t, 6.0, res.NaturalWidth)
	assert.Equal(t, 3.0, res.NaturalHeight)
	require.NotNil(t, res.Handle)
	require.NoError(t, typeid.Validate(res.Source.AssetID, typeid.PrefixAsset))

	img, ok := l.Resolve(res.Source.AssetID)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 6, 3), img.Bounds())
}

func TestAcquireStoredAssetFromDisk(t *testing.T) {
	dir := t.TempDir()
	first, err := NewLoader(dir, nil)
	require.NoError(t, err)
	res, err := first.Acquire(context.Background(), Source{Data: pngBytes(t, 4, 4)})
	require.NoError(t, err)

	// A fresh loader has an empty cache and reads the file.
	second, err := NewLoader(dir, nil)
	require.NoError(t, err)
	got, err := second.Acquire(context.Background(), Source{AssetID: res.Source.AssetID})
	require.NoError(t, err)
	assert.Equal(t, res.Source, got.Source)
	assert.Equal(t, 4.0, got.NaturalWidth)
}

func TestAcquireRejectsBadAssetIDs(t *testing.T) {
	l := newTestLoader(t)

	for _, id := range []string{"../etc/passwd", "el_01h455vb4pex5vsknk084sn02q", typeid.NewAssetID()} {
		_, err := l.Acquire(context.Background(), Source{AssetID: id})
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	_, ok := l.Resolve("nope")
	assert.False(t, ok)
}

func TestAcquireURL(t *testing.T) {
	data := pngBytes(t, 8, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pic.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer srv.Close()
	// The test server listens on loopback, which the default client refuses.
	l, err := NewLoader(t.TempDir(), srv.Client())
	require.NoError(t, err)

	res, err := l.Acquire(context.Background(), Source{URL: srv.URL + "/pic.png"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/pic.png", res.Source.URL)
	assert.Empty(t, res.Source.AssetID)
	assert.Equal(t, 8.0, res.NaturalWidth)

	_, err = l.Acquire(context.Background(), Source{URL: srv.URL + "/missing.png"})
	assert.Error(t, err)
}

func TestAcquireURLRejectsInternalAddresses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached an internal server")
	}))
	defer srv.Close()
	l := newTestLoader(t)

	for _, u := range []string{
		srv.URL + "/pic.png",
		"http://169.254.169.254/latest/meta-data/",
		"http://10.0.0.1/a.png",
		"http://[::1]:8080/a.png",
		"file:///etc/passwd",
		"ftp://example.com/a.png",
		"/relative.png",
	} {
		_, err := l.Acquire(context.Background(), Source{URL: u})
		assert.ErrorIs(t, err, ErrForbiddenURL, u)
	}
}

func TestPublicAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"93.184.216.34", true},
		{"2606:2800:220:1::", true},
		{"127.0.0.1", false},
		{"::1", false},
		{"10.1.2.3", false},
		{"172.16.0.1", false},
		{"192.168.1.1", false},
		{"169.254.169.254", false},
		{"100.64.0.1", false},
		{"0.0.0.0", false},
		{"::ffff:127.0.0.1", false},
		{"fe80::1", false},
		{"fd00::1", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, publicAddr(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestAcquireInvalidInput(t *testing.T) {
	l := newTestLoader(t)

	_, err := l.Acquire(context.Background(), Source{})
	assert.ErrorIs(t, err, ErrEmptySource)

	_, err = l.Acquire(context.Background(), Source{Data: []byte("not an image")})
	assert.Error(t, err)
}

func TestAcquireAsync(t *testing.T) {
	l := newTestLoader(t)
	done := make(chan engine.ImageResult, 1)

	l.AcquireAsync(context.Background(), Source{Data: pngBytes(t, 2, 5)}, func(res engine.ImageResult, err error) {
		assert.NoError(t, err)
		done <- res
	})

	select {
	case res := <-done:
		assert.Equal(t, 5.0, res.NaturalHeight)
	case <-time.After(5 * time.Second):
		t.Fatal("acquire did not complete")
	}
}

func multipartUpload(t *testing.T, contentType string, data []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="pic.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/assets/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadAndServe(t *testing.T) {
	l := newTestLoader(t)
	h := NewHandler(l)

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "image/png", pngBytes(t, 3, 7)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 3, resp.Width)
	assert.Equal(t, 7, resp.Height)
	assert.Equal(t, "pic.png", resp.Name)
	assert.Equal(t, "/assets/"+resp.ID+".png", resp.URL)

	rec = httptest.NewRecorder()
	h.Serve().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, resp.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Cache-Control"), "immutable")
	img, err := png.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 7), img.Bounds())
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	h := NewHandler(newTestLoader(t))

	rec := httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "text/plain", []byte("hello")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Upload(rec, multipartUpload(t, "image/png", []byte("not a png")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
