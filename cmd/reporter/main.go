package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shenikar/civic_issue_reporter/internal/client"
	"github.com/shenikar/civic_issue_reporter/internal/config"
	"github.com/shenikar/civic_issue_reporter/internal/offline"
	"github.com/shenikar/civic_issue_reporter/pkg/logger"
	redisclient "github.com/shenikar/civic_issue_reporter/pkg/redis"
	"github.com/sirupsen/logrus"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	if len(args) == 0 {
		printHelp(stdout)
		return 2
	}

	cfg, err := config.LoadReporterConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	log := logger.NewWithOutput(cfg.LogLevel, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log, stdout)
	if err != nil {
		log.WithError(err).Error("Failed to initialize reporter")
		return 1
	}
	defer app.close()

	switch args[0] {
	case "report":
		return app.report(ctx, args[1:])
	case "flush":
		return app.flush(ctx)
	case "queue":
		return app.listQueue(ctx)
	case "watch":
		return app.watch(ctx)
	case "notifications":
		return app.notifications(ctx, args[1:])
	case "help", "-h", "--help":
		printHelp(stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printHelp(stdout)
		return 2
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, `civic-reporter

Usage:
  civic-reporter report -photo PATH -description TEXT [flags]
  civic-reporter flush
  civic-reporter queue
  civic-reporter watch
  civic-reporter notifications [-follow]

Commands:
  report         Submit an issue; queued offline when the API is unreachable
  flush          Retry queued submissions once
  queue          List queued submissions
  watch          Monitor connectivity and flush the queue whenever it comes back
  notifications  Show issues awaiting verification and upcoming community events

Environment:
  API_BASE_URL, API_TIMEOUT, GEO_TIMEOUT, QUEUE_FILE, QUEUE_REDIS_ADDR, WARD_ID, USER_ID`)
}

// app - общие зависимости всех команд
type app struct {
	cfg    *config.ReporterConfig
	log    *logrus.Logger
	out    io.Writer
	api    *client.IssueClient
	queue  *offline.Queue
	closer func()
}

func newApp(ctx context.Context, cfg *config.ReporterConfig, log *logrus.Logger, out io.Writer) (*app, error) {
	api := client.New(cfg.APIBaseURL, cfg.APITimeout)

	store, closer, err := newQueueStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		log:    log,
		out:    out,
		api:    api,
		queue:  offline.NewQueue(store, api, log),
		closer: closer,
	}, nil
}

// newQueueStore: Redis, если задан QUEUE_REDIS_ADDR, иначе файл
func newQueueStore(ctx context.Context, cfg *config.ReporterConfig, log *logrus.Logger) (offline.Store, func(), error) {
	if cfg.QueueRedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.QueueRedisAddr, cfg.QueueRedisPass, cfg.QueueRedisDB)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("addr", cfg.QueueRedisAddr).Debug("Using Redis offline queue")
		return offline.NewRedisStore(rdb, offline.QueueKey), func() { _ = rdb.Close() }, nil
	}

	path := cfg.QueueFile
	if path == "" {
		var err error
		if path, err = offline.DefaultFilePath(); err != nil {
			return nil, nil, err
		}
	}
	log.WithField("path", path).Debug("Using file offline queue")
	return offline.NewFileStore(path), func() {}, nil
}

func (a *app) close() {
	a.closer()
}
