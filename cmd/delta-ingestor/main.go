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

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/datapult/insightsync/internal"
	"github.com/datapult/insightsync/internal/client"
	"github.com/datapult/insightsync/internal/ingest"
	"github.com/datapult/insightsync/internal/models"
	"github.com/datapult/insightsync/internal/recordstore"
	"github.com/datapult/insightsync/pkg/observability"
)

type config struct {
	LogFormat    string     `default:"json" split_words:"true"`
	LogLevel     slog.Level `default:"info" split_words:"true"`
	LogAddSource bool       `default:"false" split_words:"true"`
	LogFilePath  string     `split_words:"true"`

	NATSServer       string        `default:"localhost:4222" split_words:"true"`
	NATSMaxStreamAge time.Duration `default:"24h" split_words:"true"`

	SchemaPath string `default:"schema.json" split_words:"true"`

	ClickHouseHost     string `default:"localhost" split_words:"true"`
	ClickHousePort     string `default:"9000" split_words:"true"`
	ClickHouseUsername string `default:"default" split_words:"true"`
	ClickHousePassword string `split_words:"true"`
	ClickHouseDatabase string `default:"default" split_words:"true"`
	ClickHouseTable    string `required:"true" split_words:"true"`
	ClickHouseSecure   bool   `default:"false" split_words:"true"`
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
	err := envconfig.Process("deltaingestor", &cfg)
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
		ServiceName:  "delta-ingestor",
		LogLevel:     cfg.LogLevel,
		LogFormat:    cfg.LogFormat,
		LogAddSource: cfg.LogAddSource,
	}, logOut)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	ctx := context.Background()

	schema, err := loadSchema(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("load record schema: %w", err)
	}

	nc, err := client.NewNATSClient(ctx, cfg.NATSServer, client.WithMaxAge(cfg.NATSMaxStreamAge))
	if err != nil {
		return fmt.Errorf("nats client: %w", err)
	}
	defer nc.Close()

	if err := nc.CreateOrUpdateStream(ctx, internal.DeltaStreamName, internal.DeltaSubjectName, 0); err != nil {
		return fmt.Errorf("create delta stream: %w", err)
	}

	chClient, err := client.NewClickHouseClient(ctx, models.ClickHouseConnectionConfig{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
		Database: cfg.ClickHouseDatabase,
		Table:    cfg.ClickHouseTable,
		Secure:   cfg.ClickHouseSecure,
	})
	if err != nil {
		return fmt.Errorf("clickhouse client: %w", err)
	}

	store := recordstore.New(chClient, schema, log)
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close record store", slog.Any("error", err))
		}
	}()

	service := ingest.NewService(schema, store, log)

	consumer, err := ingest.NewConsumer(ctx, nc.JetStream(), service, log)
	if err != nil {
		return fmt.Errorf("delta consumer: %w", err)
	}
	consumer.Start()

	log.Info("delta ingestor started",
		slog.String("target", schema.TargetObject),
		slog.String("table", cfg.ClickHouseTable))

	<-shutdown
	log.Info("Received termination signal - service will shutdown")

	consumer.Stop()

	log.Info("Service shutdown")

	return nil
}

func loadSchema(filePath string) (zero models.RecordSchema, _ error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return zero, fmt.Errorf("read schema file %s: %w", filePath, err)
	}

	var schema models.RecordSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return zero, fmt.Errorf("decode schema file %s: %w", filePath, err)
	}

	if schema.TargetObject == "" || schema.KeyField == "" {
		return zero, fmt.Errorf("schema file %s: target_object and key_field are required", filePath)
	}

	return schema, nil
}
