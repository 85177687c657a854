package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/trunov/csvimages/cmd/migrate"
	"github.com/trunov/csvimages/internal/app"
	"github.com/trunov/csvimages/internal/config"
	"github.com/trunov/csvimages/internal/logging"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

// loadConfig reads the config file and applies the --log-level override
// before configuring the global logger.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.IsSet("log-level") {
		cfg.Logging.Level = cmd.String("log-level")
	}
	logging.Configure(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := initSentry(&cfg.Sentry, version); err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// migrateAction resolves the database URL and runs fn against it.
func migrateAction(fn func(ctx context.Context, dsn string) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if v := cmd.String("database-url"); v != "" {
			cfg.Database.DSN = v
		}
		if cfg.Database.DSN == "" {
			return errors.New("database URL is required (set DATABASE_URL or --database-url)")
		}
		return fn(ctx, cfg.Database.DSN)
	}
}

func migrateCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "database-url",
			Usage: "PostgreSQL connection string",
		},
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the PostgreSQL job store schema",
		Commands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Flags:  flags,
				Action: migrateAction(migrate.Up),
			},
			{
				Name:   "down",
				Usage:  "Roll back the last migration",
				Flags:  flags,
				Action: migrateAction(migrate.Down),
			},
		},
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "csvimages",
		Version: version,
		Usage:   "Validate product CSVs and recompress their images in the background",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to JSON config file",
				Value:   "config.json",
				Sources: cli.EnvVars("CSVIMG_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("CSVIMG_LOG_LEVEL"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the background image pipeline",
				Action: serve,
			},
			migrateCmd(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("application failed")
		stop()
		os.Exit(1)
	}
}
