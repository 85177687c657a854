package use_case

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/internal/entities"
	"github.com/trunov/csvimages/internal/telemetry"
)

type Validator interface {
	Validate(raw []byte) error
}

type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, payload []byte, metadata map[string]string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

type JobStore interface {
	Save(ctx context.Context, job entities.Job) error
	Get(ctx context.Context, requestID string) (entities.Job, error)
}

type Scheduler interface {
	Submit(ctx context.Context, requestID string) error
}

// InputError marks failures caused by the uploaded content itself.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return e.Err.Error() }
func (e *InputError) Unwrap() error { return e.Err }

type useCase struct {
	validator Validator
	docs      DocumentStore
	jobs      JobStore
	scheduler Scheduler
}

func New(validator Validator, docs DocumentStore, jobs JobStore, scheduler Scheduler) *useCase {
	return &useCase{
		validator: validator,
		docs:      docs,
		jobs:      jobs,
		scheduler: scheduler,
	}
}

// UploadCSV validates data, stores it, records a Pending job and schedules
// background processing. The job is durably Pending before this returns.
func (c *useCase) UploadCSV(ctx context.Context, filename, contentType string, data []byte) (string, error) {
	if err := c.validator.Validate(data); err != nil {
		telemetry.Uploads.WithLabelValues("invalid").Inc()
		return "", &InputError{Err: err}
	}

	requestID := entities.NewRequestID()
	logger := log.With().Str("request_id", requestID).Logger()

	logger.Info().Str("filename", filename).Int("bytes", len(data)).Msg("storing upload")
	meta := map[string]string{"original-filename": filename}
	if err := c.docs.Put(ctx, entities.DocumentKey(requestID), contentType, data, meta); err != nil {
		telemetry.Uploads.WithLabelValues("error").Inc()
		return "", fmt.Errorf("error occurred while writing file to storage: %w", err)
	}

	job := entities.NewJob(requestID)
	if err := c.jobs.Save(ctx, job); err != nil {
		telemetry.Uploads.WithLabelValues("error").Inc()
		return "", fmt.Errorf("error occurred while writing status: %w", err)
	}

	if err := c.scheduler.Submit(ctx, requestID); err != nil {
		if failed, aerr := job.Advance(entities.PhaseFailed, err.Error()); aerr == nil {
			if serr := c.jobs.Save(ctx, failed); serr != nil {
				logger.Error().Err(serr).Msg("failed to record scheduling failure")
			}
		}
		telemetry.Uploads.WithLabelValues("error").Inc()
		return "", fmt.Errorf("schedule processing: %w", err)
	}

	telemetry.Uploads.WithLabelValues("accepted").Inc()
	logger.Info().Msg("processing scheduled")
	return requestID, nil
}

func (c *useCase) Status(ctx context.Context, requestID string) (entities.Job, error) {
	return c.jobs.Get(ctx, requestID)
}

// Document streams the current CSV for requestID: the original until
// processing completes, the enriched one afterwards.
func (c *useCase) Document(ctx context.Context, requestID string) (io.ReadCloser, error) {
	return c.docs.Open(ctx, entities.DocumentKey(requestID))
}
