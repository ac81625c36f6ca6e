package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"data_digest/internal/config"
	"data_digest/internal/metrics"
	"data_digest/internal/output"
	"data_digest/internal/pipeline"
	"data_digest/internal/publisher"
	"data_digest/internal/scheduler"
	"data_digest/internal/source/httpjson"
	"data_digest/internal/storage/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Environ(), os.Stdout)
	stop()
	os.Exit(code)
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"api-url":       config.KeyAPIURL,
	"api-timeout":   config.KeyAPITimeout,
	"data-folder":   config.KeyDataFolder,
	"output-prefix": config.KeyOutputPrefix,
	"log-level":     config.KeyLogLevel,
	"interval":      config.KeyRunInterval,
}

func run(ctx context.Context, args []string, environ []string, stdout io.Writer) int {
	// Setup logger
	logger := setupLogger(stdout, config.LogLevelInfo)

	settings, err := loadSettings(args, environ)
	if err != nil {
		err = &pipeline.StageError{Stage: pipeline.StageConfig, Err: err}
		logger.Error("failed to load config", "stage", pipeline.StageConfig, "error", err)
		return pipeline.ExitCode(err)
	}

	logger = setupLogger(stdout, settings.LogLevel)
	logger.Info("starting data digest",
		"api_url", settings.APIURL,
		"timeout", settings.APITimeout,
		"data_folder", settings.DataFolder,
		"interval", settings.RunInterval,
	)

	var opts []pipeline.Option
	opts = append(opts, pipeline.WithMetrics(metrics.NewCollector(), settings.MetricsTextfile))

	if settings.Ledger.Enabled() {
		db, err := ledger.Open(ctx, settings.Ledger.Driver, settings.Ledger.DSN)
		if err != nil {
			logger.Error("failed to connect to ledger", "driver", settings.Ledger.Driver, "error", err)
			return 1
		}
		defer db.Close()

		if err := ledger.EnsureSchema(ctx, db); err != nil {
			logger.Error("failed to prepare ledger", "error", err)
			return 1
		}
		logger.Info("connected to ledger", "driver", settings.Ledger.Driver)
		opts = append(opts, pipeline.WithRecorder(ledger.NewRunStore(db)))
	}

	if settings.Publisher.Enabled() {
		rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        settings.Publisher.URL,
			Exchange:   settings.Publisher.Exchange,
			RoutingKey: settings.Publisher.RoutingKey,
			QueueName:  settings.Publisher.QueueName,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to rabbitmq", "error", err)
			return 1
		}
		defer rabbitMQ.Close()
		opts = append(opts, pipeline.WithNotifier(rabbitMQ))
	}

	source := httpjson.New(httpjson.Config{
		URL:     settings.APIURL,
		Timeout: settings.APITimeout,
	}, logger)

	p := pipeline.NewPipeline(source, output.NewWriter(), settings, logger, opts...)

	if settings.RunInterval > 0 {
		err := scheduler.NewScheduler(p, settings.RunInterval, logger).Start(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler error", "error", err)
			return 1
		}
		return 0
	}

	report, err := p.Run(ctx)
	if err != nil {
		logger.Error("application failed", "error", err)
		return pipeline.ExitCode(err)
	}

	logger.Info("processing completed",
		"raw", report.Files.Raw,
		"summary", report.Files.Summary,
	)
	return 0
}

// loadSettings resolves defaults < config file < environment < flags. Only
// flags that were given on the command line take part.
func loadSettings(args []string, environ []string) (config.Settings, error) {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultFile, "path to a .env or YAML config file")
	fs.String("api-url", "", "URL of the JSON endpoint")
	fs.String("api-timeout", "", "request timeout in seconds")
	fs.String("data-folder", "", "directory for output files")
	fs.String("output-prefix", "", "prefix for output file names")
	fs.String("log-level", "", "DEBUG, INFO, WARNING or ERROR")
	fs.String("interval", "", "repeat the run at this interval, e.g. 15m")

	if err := fs.Parse(args); err != nil {
		return config.Settings{}, fmt.Errorf("parse flags: %w", err)
	}

	cli := make(config.Values)
	explicitFile := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicitFile = true
			return
		}
		if key, ok := flagKeys[f.Name]; ok {
			cli[key] = f.Value.String()
		}
	})

	file, err := config.LoadFile(*configPath, !explicitFile)
	if err != nil {
		return config.Settings{}, err
	}

	return config.Resolve(config.Defaults(), file, config.FromEnviron(environ), cli)
}

func setupLogger(w io.Writer, level config.LogLevel) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level.SlogLevel()}
	handler := slog.NewJSONHandler(w, opts)
	return slog.New(handler)
}
