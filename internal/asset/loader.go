package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/inamate/canvas/internal/document"
	"github.com/inamate/canvas/internal/engine"
	"github.com/inamate/canvas/internal/typeid"
)

const (
	maxImageSize = 10 << 20 // 10MB
	fetchTimeout = 30 * time.Second
)

var (
	ErrNotFound     = errors.New("asset not found")
	ErrEmptySource  = errors.New("image source is empty")
	ErrForbiddenURL = errors.New("image url not allowed")
)

// sharedAddressSpace is the carrier-grade NAT range, not covered by
// netip.Addr.IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Source describes where an image comes from. Exactly one field is used,
// checked in the order Data, AssetID, URL.
type Source struct {
	AssetID string `json:"assetId,omitempty"`
	URL     string `json:"url,omitempty"`
	Data    []byte `json:"data,omitempty"` // raw PNG, JPEG or GIF bytes
}

// Loader acquires images: it decodes raw bytes, stored assets and remote
// URLs, and keeps decoded stored assets in memory for the exporter.
// It is safe for concurrent use.
type Loader struct {
	dir    string
	client *http.Client

	mu    sync.RWMutex
	cache map[string]image.Image // assetID -> decoded image
}

// NewLoader creates a loader that stores assets in dir. A nil client
// uses PublicClient.
func NewLoader(dir string, client *http.Client) (*Loader, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	if client == nil {
		client = PublicClient()
	}
	return &Loader{
		dir:    dir,
		client: client,
		cache:  make(map[string]image.Image),
	}, nil
}

// Acquire decodes the image described by src. Raw bytes are stored as a
// new asset so the resulting element can be saved and reloaded by id.
func (l *Loader) Acquire(ctx context.Context, src Source) (engine.ImageResult, error) {
	switch {
	case len(src.Data) > 0:
		img, err := decode(bytes.NewReader(src.Data))
		if err != nil {
			return engine.ImageResult{}, err
		}
		id, err := l.Store(img)
		if err != nil {
			return engine.ImageResult{}, err
		}
		return result(document.ImageSource{AssetID: id}, img), nil

	case src.AssetID != "":
		img, err := l.load(src.AssetID)
		if err != nil {
			return engine.ImageResult{}, err
		}
		return result(document.ImageSource{AssetID: src.AssetID}, img), nil

	case src.URL != "":
		img, err := l.fetch(ctx, src.URL)
		if err != nil {
			return engine.ImageResult{}, err
		}
		return result(document.ImageSource{URL: src.URL}, img), nil
	}
	return engine.ImageResult{}, ErrEmptySource
}

// AcquireAsync runs Acquire in its own goroutine and calls done with the
// outcome. done runs on that goroutine; callers that own single-threaded
// state must hand the result back to their own loop.
func (l *Loader) AcquireAsync(ctx context.Context, src Source, done func(engine.ImageResult, error)) {
	go func() {
		done(l.Acquire(ctx, src))
	}()
}

// Resolve returns the decoded pixels of a stored asset, loading it from
// disk on first use.
func (l *Loader) Resolve(assetID string) (image.Image, bool) {
	img, err := l.load(assetID)
	if err != nil {
		return nil, false
	}
	return img, true
}

// Store saves img as a PNG asset and returns its id.
func (l *Loader) Store(img image.Image) (string, error) {
	assetID := typeid.NewAssetID()
	filePath := l.path(assetID)

	out, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("create asset file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, img); err != nil {
		os.Remove(filePath)
		return "", fmt.Errorf("encode png: %w", err)
	}

	l.mu.Lock()
	l.cache[assetID] = img
	l.mu.Unlock()
	return assetID, nil
}

func (l *Loader) path(assetID string) string {
	return filepath.Join(l.dir, assetID+".png")
}

func (l *Loader) load(assetID string) (image.Image, error) {
	// Ids are used as file names; anything that is not an asset id
	// could escape the directory.
	if err := typeid.Validate(assetID, typeid.PrefixAsset); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}

	l.mu.RLock()
	img, ok := l.cache[assetID]
	l.mu.RUnlock()
	if ok {
		return img, nil
	}

	f, err := os.Open(l.path(assetID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer f.Close()

	img, err = decode(f)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[assetID] = img
	l.mu.Unlock()
	return img, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrForbiddenURL, rawURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrForbiddenURL, u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image: %s returned %s", rawURL, resp.Status)
	}
	return decode(resp.Body)
}

// PublicClient returns an HTTP client that only connects to public
// addresses. The check runs on every dialed address, so redirects and DNS
// answers pointing inside the network are refused as well.
func PublicClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: 10 * time.Second,
		Control: func(network, address string, _ syscall.RawConn) error {
			ap, err := netip.ParseAddrPort(address)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrForbiddenURL, address)
			}
			if !publicAddr(ap.Addr()) {
				return fmt.Errorf("%w: %s is not a public address", ErrForbiddenURL, ap.Addr())
			}
			return nil
		},
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = dialer.DialContext
	return &http.Client{Timeout: fetchTimeout, Transport: transport}
}

func publicAddr(a netip.Addr) bool {
	a = a.Unmap()
	switch {
	case !a.IsValid(),
		a.IsUnspecified(),
		a.IsLoopback(),
		a.IsPrivate(),
		a.IsLinkLocalUnicast(),
		a.IsLinkLocalMulticast(),
		a.IsInterfaceLocalMulticast(),
		a.IsMulticast(),
		sharedAddressSpace.Contains(a):
		return false
	}
	return true
}

func decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(io.LimitReader(r, maxImageSize))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

func result(src document.ImageSource, img image.Image) engine.ImageResult {
	b := img.Bounds()
	return engine.ImageResult{
		Source:        src,
		Handle:        img,
		NaturalWidth:  float64(b.Dx()),
		NaturalHeight: float64(b.Dy()),
	}
}
