package main

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"leadengine/internal/config"
	"leadengine/internal/core/extract"
	"leadengine/internal/core/places"
	"leadengine/internal/core/score"
	"leadengine/internal/logger"
	rds "leadengine/internal/platform/redis"
	"leadengine/internal/platform/store"
	tasks "leadengine/internal/platform/tasks"
	"leadengine/internal/server"
	"leadengine/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[leadengine] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// SQLite store
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	// Asynq client and server. Concurrency bounds how many jobs harvest at
	// once, so one API key is not hammered by every queued job.
	taskClient := tasks.New(redisSvc)
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"default": 1},
	})

	// Places directory client
	placesClient := places.NewClient(places.Config{
		BaseURL:   cfg.PlacesBaseURL,
		APIKey:    cfg.PlacesAPIKey,
		PageDelay: 2 * time.Second,
	})

	// Negative keywords: optional YAML override, built-in list otherwise
	negatives, err := config.LoadNegativeKeywords(cfg.NegativeKeywordsFile)
	if err != nil {
		log.Fatalf("load negative keywords: %v", err)
	}
	if negatives == nil {
		negatives = score.DefaultNegativeKeywords
	}

	extractSvc := extract.NewService(st, redisSvc, taskClient, placesClient, cfg, negatives)

	// Worker mux
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeExtract, extractSvc.HandleExtractTask)

	go func() {
		if err := asynqServer.Start(mux.ServeMux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Lead Extraction Engine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	deps := server.Dependencies{
		Extract: extractSvc,
		Redis:   redisSvc,
		Store:   st,
	}
	healthHandler := server.RegisterRoutes(app, deps)
	healthHandler.SetReady()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfo("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}
