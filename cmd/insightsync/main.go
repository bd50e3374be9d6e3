package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/catalog"
	"github.com/datapult/insightsync/internal/client"
	"github.com/datapult/insightsync/internal/configs"
	"github.com/datapult/insightsync/internal/kv"
	"github.com/datapult/insightsync/internal/models"
	"github.com/datapult/insightsync/internal/orchestrator"
	"github.com/datapult/insightsync/internal/reporter"
	"github.com/datapult/insightsync/internal/retry"
	"github.com/datapult/insightsync/internal/scheduler"
	"github.com/datapult/insightsync/internal/schemaadmin"
	"github.com/datapult/insightsync/internal/signals"
	"github.com/datapult/insightsync/internal/status"
	"github.com/datapult/insightsync/pkg/observability"
)

type config struct {
	LogFormat    string     `default:"json" split_words:"true"`
	LogLevel     slog.Level `default:"info" split_words:"true"`
	LogAddSource bool       `default:"false" split_words:"true"`
	LogFilePath  string     `split_words:"true"`

	NATSServer       string        `default:"localhost:4222" split_words:"true"`
	NATSMaxStreamAge time.Duration `default:"24h" split_words:"true"`

	CatalogPath string `default:"catalog.json" split_words:"true"`

	AdminBaseURL  string `required:"true" split_words:"true"`
	AdminAPIToken string `required:"true" split_words:"true"`

	// AccessRole, when set, is seeded into the runtime config bucket at
	// startup so a fresh deployment can start syncing without manual setup.
	AccessRole string `split_words:"true"`

	// SyncTargets are object names to start synchronizing on boot. Further
	// syncs are submitted through the job stream.
	SyncTargets []string `split_words:"true"`
}

func main() {
	if err := run(); err != nil {
		slog.Error("Service failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var cfg config
	err := envconfig.Process("insightsync", &cfg)
	if err != nil {
		return fmt.Errorf("unable to parse config: %w", err)
	}

	return mainErr(&cfg)
}

func mainErr(cfg *config) error {
	var logOut io.Writer
	var logFile io.WriteCloser
	var err error

	switch cfg.LogFilePath {
	case "":
		logOut = os.Stdout
	default:
		fileflags := os.O_WRONLY | os.O_APPEND | os.O_CREATE
		logFile, err = os.OpenFile(
			path.Join(cfg.LogFilePath, time.Now().Format(time.RFC3339)+".log"),
			fileflags,
			os.FileMode(0o644),
		)
		if err != nil {
			return fmt.Errorf("unable to setup logfile %w", err)
		}
		defer logFile.Close()

		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	log := observability.ConfigureLogger(&observability.Config{
		ServiceName:  "insightsync",
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
		LogAddSource: cfg.LogAddSource,
	}, logOut)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx := context.Background()

	nc, err := client.NewNATSClient(ctx, cfg.NATSServer, client.WithMaxAge(cfg.NATSMaxStreamAge))
	if err != nil {
		return fmt.Errorf("nats client: %w", err)
	}
	defer nc.Close()

	if err := nc.CreateOrUpdateWorkStream(ctx, internal.SchedulerStreamName, internal.SchedulerSubject); err != nil {
		return fmt.Errorf("create job stream: %w", err)
	}
	if err := nc.CreateOrUpdateStream(ctx, models.SyncSignalsStream, models.GetSyncSignalsSubject(), 0); err != nil {
		return fmt.Errorf("create signals stream: %w", err)
	}

	cat, err := catalog.LoadFile(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	configKV, err := kv.NewNATSKeyValueStore(ctx, nc.JetStream(), kv.KeyValueStoreConfig{StoreName: internal.ConfigBucket, TTL: 0})
	if err != nil {
		return fmt.Errorf("config bucket: %w", err)
	}
	statusKV, err := kv.NewNATSKeyValueStore(ctx, nc.JetStream(), kv.KeyValueStoreConfig{StoreName: internal.StatusBucket, TTL: 0})
	if err != nil {
		return fmt.Errorf("status bucket: %w", err)
	}
	errorKV, err := kv.NewNATSKeyValueStore(ctx, nc.JetStream(), kv.KeyValueStoreConfig{StoreName: internal.ErrorBucket, TTL: 0})
	if err != nil {
		return fmt.Errorf("error bucket: %w", err)
	}
	outcomeKV, err := kv.NewNATSKeyValueStore(ctx, nc.JetStream(), kv.KeyValueStoreConfig{StoreName: internal.JobOutcomeBucket, TTL: cfg.NATSMaxStreamAge})
	if err != nil {
		return fmt.Errorf("job outcome bucket: %w", err)
	}

	if cfg.AccessRole != "" {
		if err := configKV.PutString(ctx, internal.ConfigKeyAccessRole, cfg.AccessRole); err != nil {
			return fmt.Errorf("seed access role config: %w", err)
		}
	}

	confStore := configs.NewStore(configKV, log)
	statusStore := status.NewStore(statusKV, errorKV, log)

	sigPub, err := signals.NewPublisher(nc, log)
	if err != nil {
		return fmt.Errorf("signal publisher: %w", err)
	}
	rep := reporter.New(statusStore, sigPub, log)

	admin := schemaadmin.NewClient(cfg.AdminBaseURL, schemaadmin.StaticTokenSource(cfg.AdminAPIToken), log)
	sched := scheduler.NewNATSScheduler(nc.JetStream(), outcomeKV, log)

	orch := orchestrator.New(
		admin,
		admin,
		cat,
		statusStore,
		rep,
		retry.NewController(confStore, log),
		confStore,
		sched,
		cat.OnSuccess(),
		log,
	)

	runner := scheduler.NewRunner(nc.JetStream(), outcomeKV, log)
	runner.Register(internal.JobKindSyncStage, orch)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start job runner: %w", err)
	}

	for _, target := range cfg.SyncTargets {
		handle, err := orch.StartSync(ctx, target)
		if err != nil {
			log.Error("failed to start sync", slog.String("target", target), slog.Any("error", err))
			continue
		}
		log.Info("sync submitted", slog.String("target", target), slog.String("handle", handle))
	}

	<-shutdown
	log.Info("Received termination signal - service will shutdown")

	runner.Stop()

	log.Info("Service shutdown")

	return nil
}
