package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/trunov/csvimages/internal/entities"
)

// dbStorage persists job status records in the jobs table.
type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

// Save upserts the job; the latest write wins.
func (s *dbStorage) Save(ctx context.Context, job entities.Job) error {
	_, err := s.dbpool.Exec(ctx, `
		INSERT INTO jobs (request_id, phase, reason)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO UPDATE
		SET phase = EXCLUDED.phase, reason = EXCLUDED.reason, updated_at = NOW()`,
		job.RequestID, string(job.Phase), job.Reason,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.RequestID, err)
	}
	return nil
}

func (s *dbStorage) Get(ctx context.Context, requestID string) (entities.Job, error) {
	job := entities.Job{RequestID: requestID}
	var phase string

	err := s.dbpool.QueryRow(ctx,
		`SELECT phase, reason FROM jobs WHERE request_id = $1`, requestID,
	).Scan(&phase, &job.Reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.Job{}, fmt.Errorf("%s: %w", requestID, entities.ErrJobNotFound)
	}
	if err != nil {
		return entities.Job{}, fmt.Errorf("load job %s: %w", requestID, err)
	}

	job.Phase = entities.Phase(phase)
	if !job.Phase.Valid() {
		return entities.Job{}, fmt.Errorf("load job %s: unknown phase %q", requestID, phase)
	}
	return job, nil
}
