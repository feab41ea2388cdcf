package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the daemon configuration.
type Config struct {
	DataDir     string // Base directory for all persistent state
	DownloadDir string // User-initiated downloads: DataDir/downloads
	CacheDir    string // Auto-cache entries: DataDir/cache
	DBPath      string // SQLite database file

	ListenAddr string // HTTP control API listen address

	EveningFeedURL string
	MorningFeedURL string

	MaxAutoCache int  // Upper bound on auto-cache entries
	ExactAlarms  bool // Whether exact alarm timers may be registered

	ConnectivityProbeURL string // HEAD target used to validate internet access
	FFplayPath           string

	LogPath  string
	LogLevel string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataDir := getEnv("DHAMMAFM_DATA_DIR", "data")

	return &Config{
		DataDir:     dataDir,
		DownloadDir: filepath.Join(dataDir, "downloads"),
		CacheDir:    filepath.Join(dataDir, "cache"),
		DBPath:      getEnv("DHAMMAFM_DB_PATH", filepath.Join(dataDir, "dhammafm.db")),

		ListenAddr: getEnv("DHAMMAFM_LISTEN_ADDR", "127.0.0.1:8090"),

		EveningFeedURL: getEnv("DHAMMAFM_EVENING_FEED_URL", "https://www.dhammatalks.org/rss/evening.xml"),
		MorningFeedURL: getEnv("DHAMMAFM_MORNING_FEED_URL", "https://www.dhammatalks.org/rss/morning.xml"),

		MaxAutoCache: getEnvInt("DHAMMAFM_MAX_AUTO_CACHE", 15),
		ExactAlarms:  getEnvBool("DHAMMAFM_EXACT_ALARMS", true),

		ConnectivityProbeURL: getEnv("DHAMMAFM_CONNECTIVITY_PROBE_URL", "https://www.dhammatalks.org/"),
		FFplayPath:           getEnv("FFPLAY_PATH", "ffplay"),

		LogPath:  getEnv("DHAMMAFM_LOG_PATH", filepath.Join(dataDir, "logs", "dhammafm.log")),
		LogLevel: getEnv("DHAMMAFM_LOG_LEVEL", "info"),
	}
}
