package transformer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/internal/config"
	"github.com/trunov/csvimages/internal/processor"
	"github.com/trunov/csvimages/internal/telemetry"
)

var (
	ErrFetch  = errors.New("fetch failed")
	ErrDecode = errors.New("decode failed")
	ErrStore  = errors.New("upload failed")
)

// Error is a failed transform of a single image URL.
type Error struct {
	Kind error
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

type ImageStorage interface {
	Upload(ctx context.Context, key, contentType string, payload []byte) (string, error)
}

// Transformer downloads an image, recompresses it and stores the result
// under a fresh random key. It holds no per-call state.
type Transformer struct {
	client   *http.Client
	storage  ImageStorage
	opts     processor.Options
	maxBytes int64
}

func New(client *http.Client, storage ImageStorage, cfg config.ImageConfig) *Transformer {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}

	var mods []processor.ImageModifier
	if cfg.MaxWidth > 0 || cfg.MaxHeight > 0 {
		mods = append(mods, &processor.ImageResizer{Width: cfg.MaxWidth, Height: cfg.MaxHeight})
	}

	return &Transformer{
		client:   client,
		storage:  storage,
		opts:     processor.Options{Quality: cfg.Quality, Modifiers: mods},
		maxBytes: cfg.MaxImageBytes,
	}
}

// Transform returns the public URL of the recompressed copy of url.
func (t *Transformer) Transform(ctx context.Context, url string) (string, error) {
	start := time.Now()

	data, err := t.fetch(ctx, url)
	if err != nil {
		telemetry.ImageFailures.WithLabelValues("fetch").Inc()
		return "", &Error{Kind: ErrFetch, URL: url, Err: err}
	}

	img, err := processor.Recompress(data, t.opts)
	if err != nil {
		telemetry.ImageFailures.WithLabelValues("decode").Inc()
		return "", &Error{Kind: ErrDecode, URL: url, Err: err}
	}

	key := strings.ReplaceAll(uuid.NewString(), "-", "") + "." + img.Extension()
	stored, err := t.storage.Upload(ctx, key, img.ContentType, img.Data)
	if err != nil {
		telemetry.ImageFailures.WithLabelValues("store").Inc()
		return "", &Error{Kind: ErrStore, URL: url, Err: err}
	}

	telemetry.ImagesTransformed.WithLabelValues(img.Format).Inc()
	log.Debug().
		Str("url", url).
		Str("stored_url", stored).
		Str("format", img.Format).
		Int("in_bytes", len(data)).
		Int("out_bytes", len(img.Data)).
		Dur("took", time.Since(start)).
		Msg("image transformed")

	return stored, nil
}

func (t *Transformer) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body := io.Reader(resp.Body)
	if t.maxBytes > 0 {
		body = io.LimitReader(resp.Body, t.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if t.maxBytes > 0 && int64(len(data)) > t.maxBytes {
		return nil, fmt.Errorf("image larger than %d bytes", t.maxBytes)
	}
	return data, nil
}
