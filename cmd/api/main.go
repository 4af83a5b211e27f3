package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/questforge/questgraph/internal/api"
	"github.com/questforge/questgraph/internal/config"
	"github.com/questforge/questgraph/internal/events"
	"github.com/questforge/questgraph/internal/graph"
	"github.com/questforge/questgraph/internal/mqtt"
	"github.com/questforge/questgraph/internal/orchestrator"
	"github.com/questforge/questgraph/internal/repository"
	"github.com/questforge/questgraph/internal/storage/postgres"
	"github.com/questforge/questgraph/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults apply when empty)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found, using process environment")
	}

	if err := run(*configPath); err != nil {
		log.Fatalf("questgraph api: %v", err)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api.InitMetrics()
	if err := api.InitTLS(); err != nil {
		return err
	}
	if err := api.InitAuth(); err != nil {
		return err
	}

	dsn, err := config.ResolveSecret("QUESTGRAPH_DATABASE_URL")
	if err != nil {
		return err
	}

	var (
		repo     repository.Repository
		eventLog api.EventQuerier
	)
	if dsn != "" {
		pool, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer pool.Close()

		docs := postgres.NewDocumentStore(pool)
		if err := docs.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		repo = docs

		el, err := postgres.NewEventLog(dsn, cfg.Service.Name)
		if err != nil {
			return err
		}
		defer el.Close()
		events.SetPersister(el)
		eventLog = el
		api.SetPostgresState(true, false)
		log.Printf("postgres: documents and events stored in database")
	} else {
		fs, err := repository.NewFileStore(cfg.Storage.DocumentsDir)
		if err != nil {
			return err
		}
		repo = fs
		api.SetPostgresState(false, true)
		log.Printf("postgres: not configured, documents stored in %s", cfg.Storage.DocumentsDir)
	}

	store := graph.NewStore()
	if err := store.Load(ctx, repo, cfg.Storage.Document); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("load document %q: %w", cfg.Storage.Document, err)
		}
		log.Printf("document %q not found, starting empty", cfg.Storage.Document)
	}

	if cfg.MQTT.Broker != "" {
		client := mqtt.NewClient(mqtt.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.Service.Name,
			StatusTopic: cfg.MQTT.TopicPrefix + "/status",
			OnStateChange: func(connected bool) {
				api.SetMQTTState(connected, true)
			},
		})
		api.SetMQTTState(client.StartWithRetry(), true)
		defer client.Disconnect()
		go mqtt.NewPublisher(client, cfg.MQTT.TopicPrefix).Run(ctx)
	}

	rt := orchestrator.NewRuntime(cfg.Options())
	srv := api.New(api.Deps{
		Service:    cfg.Service.Name,
		Store:      store,
		Runtime:    rt,
		Repository: repo,
		EventLog:   eventLog,
	})
	api.SetOrchestratorReady(true)

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "api starting", map[string]interface{}{
		"service":  cfg.Service.Name,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	err = srv.ListenAndServe(ctx, cfg.API.Port)

	rt.Cancel()
	events.Emit("info", "system.shutdown", "api stopping", nil)
	events.CloseAllSubscribers()
	return err
}
