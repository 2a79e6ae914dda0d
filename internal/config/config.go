package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port             int
	DataDir          string
	ResidentLimitMB  int64
	DecodeCacheTiles int
	PreviewSize      int
	LogLevel         string
	AllowedOrigin    string
}

func Load() *Config {
	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		DataDir:          getEnv("DATA_DIR", "/data"),
		ResidentLimitMB:  getEnvInt64("RESIDENT_LIMIT_MB", 1024),
		DecodeCacheTiles: getEnvInt("DECODE_CACHE_TILES", 256),
		PreviewSize:      getEnvInt("PREVIEW_SIZE", 128),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		AllowedOrigin:    getEnv("ALLOWED_ORIGIN", ""),
	}

	return cfg
}

// ResidentLimitBytes converts the configured budget to bytes, the unit the
// tile cache works in.
func (c *Config) ResidentLimitBytes() int64 {
	return c.ResidentLimitMB * 1024 * 1024
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
