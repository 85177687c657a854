package transformer

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/trunov/csvimages/internal/config"
)

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	err     error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeStorage) Upload(ctx context.Context, key, contentType string, payload []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = payload
	f.types[key] = contentType
	return "https://images.example.com/" + key, nil
}

func imageServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for x := 0; x < 40; x++ {
		img.Set(x, x%30, color.RGBA{R: 200, A: 255})
	}
	var jpg, pngBuf bytes.Buffer
	if err := jpeg.Encode(&jpg, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("png: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/a.jpg", func(w http.ResponseWriter, r *http.Request) { w.Write(jpg.Bytes()) })
	mux.HandleFunc("/b.png", func(w http.ResponseWriter, r *http.Request) { w.Write(pngBuf.Bytes()) })
	mux.HandleFunc("/text.jpg", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("definitely not a jpeg")) })
	mux.HandleFunc("/slow.jpg", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig() config.ImageConfig {
	return config.ImageConfig{Quality: 50, FetchTimeout: 5 * time.Second, MaxImageBytes: 1 << 20}
}

var keyRe = regexp.MustCompile(`^https://images\.example\.com/[0-9a-f]{32}\.(jpeg|png)$`)

func TestTransform_StoresRecompressedImage(t *testing.T) {
	srv := imageServer(t)
	store := newFakeStorage()
	tr := New(nil, store, testConfig())

	for _, path := range []string{"/a.jpg", "/b.png"} {
		got, err := tr.Transform(context.Background(), srv.URL+path)
		if err != nil {
			t.Fatalf("Transform %s: %v", path, err)
		}
		if !keyRe.MatchString(got) {
			t.Fatalf("unexpected stored url %q", got)
		}
	}
	if len(store.objects) != 2 {
		t.Fatalf("want 2 stored objects, got %d", len(store.objects))
	}
	for key, ct := range store.types {
		ext := key[strings.LastIndex(key, ".")+1:]
		if ct != "image/"+ext {
			t.Fatalf("key %s stored with content type %s", key, ct)
		}
	}
}

func TestTransform_UniqueKeys(t *testing.T) {
	srv := imageServer(t)
	tr := New(nil, newFakeStorage(), testConfig())

	a, err := tr.Transform(context.Background(), srv.URL+"/a.jpg")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	b, err := tr.Transform(context.Background(), srv.URL+"/a.jpg")
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if a == b {
		t.Fatalf("same url must get a fresh key each time")
	}
}

func TestTransform_Errors(t *testing.T) {
	srv := imageServer(t)

	cases := []struct {
		name  string
		url   string
		store *fakeStorage
		kind  error
	}{
		{"not found", srv.URL + "/missing.jpg", newFakeStorage(), ErrFetch},
		{"unreachable", "http://127.0.0.1:1/a.jpg", newFakeStorage(), ErrFetch},
		{"not an image", srv.URL + "/text.jpg", newFakeStorage(), ErrDecode},
		{"storage down", srv.URL + "/a.jpg", &fakeStorage{err: errors.New("bucket gone")}, ErrStore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nil, tc.store, testConfig()).Transform(context.Background(), tc.url)
			if !errors.Is(err, tc.kind) {
				t.Fatalf("want %v, got %v", tc.kind, err)
			}
			var terr *Error
			if !errors.As(err, &terr) || terr.URL != tc.url {
				t.Fatalf("error should carry the url, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.url) {
				t.Fatalf("message should name the url: %q", err)
			}
		})
	}
}

func TestTransform_FetchTimeout(t *testing.T) {
	srv := imageServer(t)
	cfg := testConfig()
	cfg.FetchTimeout = 100 * time.Millisecond

	_, err := New(nil, newFakeStorage(), cfg).Transform(context.Background(), srv.URL+"/slow.jpg")
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("want ErrFetch on timeout, got %v", err)
	}
}

func TestTransform_SizeCap(t *testing.T) {
	srv := imageServer(t)
	cfg := testConfig()
	cfg.MaxImageBytes = 10

	_, err := New(nil, newFakeStorage(), cfg).Transform(context.Background(), srv.URL+"/a.jpg")
	if !errors.Is(err, ErrFetch) || !strings.Contains(err.Error(), "larger than 10 bytes") {
		t.Fatalf("want size cap fetch error, got %v", err)
	}
}
