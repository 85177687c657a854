package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/cmd/migrate"
	"github.com/trunov/csvimages/internal/cache"
	"github.com/trunov/csvimages/internal/config"
	"github.com/trunov/csvimages/internal/entities"
	"github.com/trunov/csvimages/internal/jobstore"
	"github.com/trunov/csvimages/internal/objectstorage"
	"github.com/trunov/csvimages/internal/pipeline"
	"github.com/trunov/csvimages/internal/queue"
	"github.com/trunov/csvimages/internal/redisholder"
	"github.com/trunov/csvimages/internal/repository/storage"
	"github.com/trunov/csvimages/internal/transformer"
	"github.com/trunov/csvimages/internal/transport/handler"
	"github.com/trunov/csvimages/internal/transport/router"
	use_case "github.com/trunov/csvimages/internal/use-case"
	"github.com/trunov/csvimages/internal/validation"
)

type jobStore interface {
	Save(ctx context.Context, job entities.Job) error
	Get(ctx context.Context, requestID string) (entities.Job, error)
	Ping(ctx context.Context) error
}

type App struct {
	HttpServer *http.Server

	cfg        *config.Config
	dispatcher *queue.Dispatcher
	closers    []func()
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	jobs, err := a.newJobStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	client, err := objectstorage.NewClient(ctx, &cfg.S3)
	if err != nil {
		a.close()
		return nil, err
	}
	documents := objectstorage.NewStorage(client, cfg.S3.BucketName, &cfg.S3)
	images := objectstorage.NewStorage(client, cfg.S3.ImageBucketName, &cfg.S3)

	tr := transformer.New(nil, images, cfg.Image)
	orch := pipeline.New(documents, jobs, tr, cfg.Pipeline.FetchConcurrency)
	a.dispatcher = queue.NewDispatcher(orch, cfg.Pipeline.MaxConcurrentJobs)

	uc := use_case.New(validation.New(cfg.CSV.ValidHeaders), documents, jobs, a.dispatcher)

	h := handler.New(uc, cfg, jobs, documents)
	r := router.NewRouter(h)

	a.HttpServer = &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return a, nil
}

func (a *App) newJobStore(ctx context.Context) (jobStore, error) {
	switch a.cfg.JobStore.Driver {
	case "memory":
		log.Warn().Msg("using in-memory job store, job status is lost on restart")
		return jobstore.NewMemory(), nil

	case "postgres":
		if a.cfg.Database.DSN == "" {
			return nil, errors.New("job store postgres: database.dsn is empty")
		}
		if a.cfg.Database.AutoMigrate {
			if err := migrate.Up(ctx, a.cfg.Database.DSN); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		repo, err := storage.New(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil

	default:
		// the health loop must outlive ctx so jobs can record their status
		// while the server drains
		hctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		holder, err := redisholder.Build(hctx, &a.cfg.Redis)
		if err != nil {
			cancel()
			return nil, err
		}
		a.closers = append(a.closers, func() {
			cancel()
			_ = holder.Close()
		})
		return jobstore.NewRedis(cache.NewCache(a.cfg.JobStore.Namespace, holder.Get)), nil
	}
}

// Run serves HTTP until ctx is done, then drains in-flight requests and
// waits for running jobs within the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.HttpServer.Addr).Msg("starting server")
		errCh <- a.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.HttpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := a.dispatcher.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("waiting for running jobs: %w", err)
	}
	return nil
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
