package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string
	DatabasePath  string

	PlacesAPIKey  string
	PlacesBaseURL string

	TaskMaxRetries     int
	HarvestConcurrency int
	WorkerConcurrency  int

	NegativeKeywordsFile string
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8082"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		DatabasePath:  getenv("DATABASE_PATH", "./data/leadengine.db"),

		PlacesAPIKey:  os.Getenv("PLACES_API_KEY"),
		PlacesBaseURL: getenv("PLACES_BASE_URL", "https://places.googleapis.com/v1"),

		TaskMaxRetries:     getenvInt("TASK_MAX_RETRIES", 0),
		HarvestConcurrency: getenvInt("HARVEST_CONCURRENCY", 4),
		WorkerConcurrency:  getenvInt("WORKER_CONCURRENCY", 3),

		NegativeKeywordsFile: os.Getenv("NEGATIVE_KEYWORDS_FILE"),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg
}
