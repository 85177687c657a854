package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/internal/entities"
	"github.com/trunov/csvimages/internal/telemetry"
	"github.com/trunov/csvimages/internal/validation"
	"golang.org/x/sync/errgroup"
)

type DocumentStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key, contentType string, payload []byte, metadata map[string]string) error
}

type JobStore interface {
	Save(ctx context.Context, job entities.Job) error
}

type Transformer interface {
	Transform(ctx context.Context, url string) (string, error)
}

// TransformFunc adapts a function to Transformer.
type TransformFunc func(ctx context.Context, url string) (string, error)

func (f TransformFunc) Transform(ctx context.Context, url string) (string, error) { return f(ctx, url) }

// Orchestrator runs one uploaded document through the image pipeline and
// records each phase change in the job store.
type Orchestrator struct {
	docs             DocumentStore
	jobs             JobStore
	transformer      Transformer
	fetchConcurrency int
}

func New(docs DocumentStore, jobs JobStore, transformer Transformer, fetchConcurrency int) *Orchestrator {
	if fetchConcurrency < 1 {
		fetchConcurrency = 1
	}
	return &Orchestrator{
		docs:             docs,
		jobs:             jobs,
		transformer:      transformer,
		fetchConcurrency: fetchConcurrency,
	}
}

// Run processes the job to a terminal phase. It never returns an error:
// every failure, including a panic, ends up as a Failed status.
func (o *Orchestrator) Run(ctx context.Context, requestID string) {
	start := time.Now()
	logger := log.With().Str("request_id", requestID).Logger()
	job := entities.NewJob(requestID)

	defer func() {
		if r := recover(); r != nil {
			sentry.CurrentHub().Recover(r)
			o.fail(ctx, job, fmt.Errorf("internal error: %v", r))
		}
	}()

	logger.Info().Msg("processing started")

	var err error
	if job, err = o.advance(ctx, job, entities.PhaseProcessing, ""); err != nil {
		o.fail(ctx, job, err)
		return
	}

	if err := o.process(ctx, requestID); err != nil {
		o.fail(ctx, job, err)
		return
	}

	if _, err := o.advance(ctx, job, entities.PhaseCompleted, ""); err != nil {
		// the enriched document is already in place; only the status write failed
		logger.Error().Err(err).Msg("failed to record completion")
		sentry.CaptureException(err)
		return
	}

	telemetry.JobsFinished.WithLabelValues(string(entities.PhaseCompleted)).Inc()
	telemetry.JobDuration.Observe(time.Since(start).Seconds())
	logger.Info().Dur("took", time.Since(start)).Msg("processing completed")
}

func (o *Orchestrator) process(ctx context.Context, requestID string) error {
	key := entities.DocumentKey(requestID)

	raw, err := o.docs.Download(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}

	enriched, err := Enrich(ctx, raw, o.transformer, o.fetchConcurrency)
	if err != nil {
		return err
	}

	if err := o.docs.Put(ctx, key, "text/csv", enriched, nil); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (o *Orchestrator) advance(ctx context.Context, job entities.Job, next entities.Phase, reason string) (entities.Job, error) {
	nj, err := job.Advance(next, reason)
	if err != nil {
		return job, err
	}
	if err := o.jobs.Save(ctx, nj); err != nil {
		return job, fmt.Errorf("record %s status: %w", next, err)
	}
	return nj, nil
}

func (o *Orchestrator) fail(ctx context.Context, job entities.Job, cause error) {
	logger := log.With().Str("request_id", job.RequestID).Logger()
	logger.Error().Err(cause).Msg("processing failed")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("request_id", job.RequestID)
		sentry.CaptureException(cause)
	})
	telemetry.JobsFinished.WithLabelValues(string(entities.PhaseFailed)).Inc()

	if _, err := o.advance(ctx, job, entities.PhaseFailed, cause.Error()); err != nil {
		logger.Error().Err(err).Msg("failed to record failure")
		sentry.CaptureException(err)
	}
}

// Enrich parses an uploaded document, transforms every image URL and returns
// the document with an extra trailing column holding the new URLs in input
// order. Rows are processed in order; URLs within a row are transformed
// concurrently up to concurrency at a time. The first error aborts the run.
func Enrich(ctx context.Context, raw []byte, t Transformer, concurrency int) ([]byte, error) {
	r := validation.NewReader(raw)

	header, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("parse csv: document is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("parse csv header: %w", err)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true

	if err := w.Write(append(header, entities.OutputColumn)); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for n := 1; ; n++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv row %d: %w", n, err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("parse csv row %d: expected at least 3 fields, got %d", n, len(rec))
		}

		row := entities.Row{
			SerialNumber: rec[0],
			ProductName:  rec[1],
			ImageURLs:    validation.ParseImageURLs(rec[2]),
		}
		row.OutputImageURLs, err = transformRow(ctx, t, row.ImageURLs, concurrency)
		if err != nil {
			return nil, fmt.Errorf("row %d (S.No. %s): %w", n, row.SerialNumber, err)
		}

		if err := w.Write(append(rec, strings.Join(row.OutputImageURLs, ","))); err != nil {
			return nil, fmt.Errorf("write csv row %d: %w", n, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

func transformRow(ctx context.Context, t Transformer, urls []string, concurrency int) ([]string, error) {
	out := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, u := range urls {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("transform %s: panic: %v", u, r)
				}
			}()

			stored, err := t.Transform(gctx, u)
			if err != nil {
				return err
			}
			out[i] = stored
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
