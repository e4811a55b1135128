package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	envListenAddr = "FOOSPULSE_LISTEN_ADDR"
	envHTTPPort   = "FOOSPULSE_HTTP_PORT"
	envDBPath     = "FOOSPULSE_DB_PATH"
	envJWTSecret  = "FOOSPULSE_JWT_SECRET"
	envNATSURL    = "FOOSPULSE_NATS_URL"
	envWorkers    = "FOOSPULSE_WORKERS"
	envHeartbeat  = "FOOSPULSE_HEARTBEAT_INTERVAL"
	envMetrics    = "FOOSPULSE_METRICS_ENABLED"
	envLogLevel   = "FOOSPULSE_LOG_LEVEL"
	envLogFormat  = "FOOSPULSE_LOG_FORMAT"
)

// applyEnv overlays environment variables on values read from the file
func applyEnv(cfg *Config) {
	cfg.Server.ListenAddr = envOrDefault(envListenAddr, cfg.Server.ListenAddr)
	cfg.Server.HTTPPort = intEnvOrDefault(envHTTPPort, cfg.Server.HTTPPort)
	cfg.Database.Path = envOrDefault(envDBPath, cfg.Database.Path)
	cfg.Auth.JWTSecret = envOrDefault(envJWTSecret, cfg.Auth.JWTSecret)
	cfg.Queue.NATSURL = envOrDefault(envNATSURL, cfg.Queue.NATSURL)
	cfg.Queue.Workers = intEnvOrDefault(envWorkers, cfg.Queue.Workers)
	cfg.Live.HeartbeatInterval = durationEnvOrDefault(envHeartbeat, cfg.Live.HeartbeatInterval)
	cfg.Metrics.Enabled = boolEnvOrDefault(envMetrics, cfg.Metrics.Enabled)
	cfg.Log.Level = envOrDefault(envLogLevel, cfg.Log.Level)
	cfg.Log.Format = envOrDefault(envLogFormat, cfg.Log.Format)
}

func envOrDefault(key, defaultValue string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return defaultValue
}

func durationEnvOrDefault(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

func intEnvOrDefault(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return defaultValue
	}
	return val
}

func boolEnvOrDefault(key string, defaultValue bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	if raw == "1" || strings.EqualFold(raw, "true") || strings.EqualFold(raw, "yes") {
		return true
	}
	if raw == "0" || strings.EqualFold(raw, "false") || strings.EqualFold(raw, "no") {
		return false
	}
	return defaultValue
}
