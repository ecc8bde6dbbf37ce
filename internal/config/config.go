package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Port              int
	DBPath            string
	PhotoDirectory    string
	LogDirectory      string
	CoinCatalogPath   string
	FaceModelPath     string
	FaceConfigPath    string
	EmbedderModelPath string
	CoinModelPath     string
	CoinConfigPath    string
	FaceWorkers       int
	CoinWorkers       int
	BusCapacity       int
	ClockSyncInterval int     // seconds between sync_clock broadcasts per session
	StaleAge          float64 // frames older than this (seconds) are dropped by workers
	CoinWindow        float64 // trailing window (seconds) for coin aggregation
	CoinMinCount      int     // minimum distinct coins before featured backfill stops
	MaxFaces          int     // largest faces identified per frame
	MatchThreshold    float64 // minimum cosine similarity for a known-identity match
}

func Load() *Config {
	return &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DBPath:            getEnv("DB_PATH", filepath.Join(".", "identities.db")),
		PhotoDirectory:    getEnv("PHOTO_DIR", filepath.Join(".", "photos")),
		LogDirectory:      getEnv("LOG_DIR", filepath.Join(".", "logs")),
		CoinCatalogPath:   getEnv("COIN_CATALOG", filepath.Join(".", "coins.yaml")),
		FaceModelPath:     getEnv("FACE_MODEL_PATH", filepath.Join(".", "models", "face_detector.pb")),
		FaceConfigPath:    getEnv("FACE_CONFIG_PATH", filepath.Join(".", "models", "face_detector.pbtxt")),
		EmbedderModelPath: getEnv("EMBEDDER_MODEL_PATH", filepath.Join(".", "models", "face_embedder.onnx")),
		CoinModelPath:     getEnv("COIN_MODEL_PATH", filepath.Join(".", "models", "coin_detector.pb")),
		CoinConfigPath:    getEnv("COIN_CONFIG_PATH", filepath.Join(".", "models", "coin_detector.pbtxt")),
		FaceWorkers:       getEnvAsInt("FACE_WORKERS", 2),
		CoinWorkers:       getEnvAsInt("COIN_WORKERS", 2),
		BusCapacity:       getEnvAsInt("BUS_CAPACITY", 100),
		ClockSyncInterval: getEnvAsInt("CLOCK_SYNC_INTERVAL", 4),
		StaleAge:          getEnvAsFloat("STALE_AGE", 1.0),
		CoinWindow:        getEnvAsFloat("COIN_WINDOW", 5.0),
		CoinMinCount:      getEnvAsInt("COIN_MIN_COUNT", 4),
		MaxFaces:          getEnvAsInt("MAX_FACES", 10),
		MatchThreshold:    getEnvAsFloat("MATCH_THRESHOLD", 0.6),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
