// Package config provides centralized default values for the session-replay service
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Database
	DBDriver                 string
	DBPath                   string
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Recording
	RecorderFlushInterval time.Duration
	MinEventsToSave       int
	ListingMinEventCount  int
	MaxBatchBytes         int

	// Collaborator services
	GeoLookupURL    string
	GeoLookupLimit  time.Duration
	AIEndpoint      string
	AIModelID       string
	AIMaxTokens     int
	AIPromptBudget  int
	TranslateEnable bool

	// Auth
	JWTSecret string

	// Email alerts (optional)
	AlertEmailEnabled bool
	AlertEmailFrom    string
	AlertEmailTo      string

	// Live viewer
	MaxLiveClientsPerSession int
	LiveWriteTimeout         time.Duration
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Database
	DBDriver = getEnvString("DB_DRIVER", "sqlite3")
	DBPath = getEnvString("DB_PATH", "sessionstory.db")
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)

	// Recording
	RecorderFlushInterval = getEnvDuration("RECORDER_FLUSH_INTERVAL", time.Second)
	MinEventsToSave = getEnvInt("MIN_EVENTS_TO_SAVE", 5)
	ListingMinEventCount = getEnvInt("LISTING_MIN_EVENT_COUNT", 5)
	MaxBatchBytes = getEnvInt("MAX_BATCH_BYTES", 8*1024*1024)

	// Collaborator services
	GeoLookupURL = getEnvString("GEO_LOOKUP_URL", "http://ip-api.com/json")
	GeoLookupLimit = getEnvDuration("GEO_LOOKUP_TIMEOUT", 5*time.Second)
	AIEndpoint = getEnvString("AI_ENDPOINT", "")
	AIModelID = getEnvString("AI_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0")
	AIMaxTokens = getEnvInt("AI_MAX_TOKENS", 300)
	AIPromptBudget = getEnvInt("AI_PROMPT_TOKEN_BUDGET", 6000)
	TranslateEnable = getEnvBool("TRANSLATE_ENABLED", true)

	// Auth
	JWTSecret = getEnvString("JWT_SECRET", "")

	// Email alerts
	AlertEmailEnabled = getEnvBool("ALERT_EMAIL_ENABLED", false)
	AlertEmailFrom = getEnvString("ALERT_EMAIL_FROM", "alerts@sessionstory.co")
	AlertEmailTo = getEnvString("ALERT_EMAIL_TO", "")

	// Live viewer
	MaxLiveClientsPerSession = getEnvInt("MAX_LIVE_CLIENTS_PER_SESSION", 10)
	LiveWriteTimeout = getEnvDuration("LIVE_WRITE_TIMEOUT", 10*time.Second)
}
