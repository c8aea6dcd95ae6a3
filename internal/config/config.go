package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const mib = 1024 * 1024

//nolint:govet // disable field aligment for better reading
type Config struct {
	Verbose bool
	LogFile string

	TgBotToken       string
	TgBotEndpoint    string
	TgUpdatesTimeout int
	// Maximum outbound Bot API requests per second.
	TgRateLimit   int
	UploadTimeout time.Duration

	Workers   int
	QueueSize int

	// Longest media the bot accepts, in seconds.
	MaxDuration int
	MaxSize     int64
	// Files bigger than this are sent as documents instead of audio.
	AudioUploadLimit int64
	// Duration shown in the audio player is capped by this value, in seconds.
	MaxDisplayDuration int
	// How long final status messages stay visible before deletion.
	StatusDelay time.Duration
	// How long the extracted summary is shown before the upload starts.
	SummaryDelay time.Duration

	ProbeTimeout    time.Duration
	DownloadTimeout time.Duration

	CookiesFile             string
	CookiesInstructionsFile string
	NativeFallback          bool
	YtdlpInstall            bool
}

func Read() (*Config, error) {
	// Environment always wins over .env file values.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{}
	cfg.Verbose = os.Getenv("VERBOSE") == "1"
	cfg.LogFile = getEnv("LOG_FILE", "bot_debug.log")

	cfg.TgBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if cfg.TgBotToken == "" {
		cfg.TgBotToken = os.Getenv("TG_BOT_TOKEN")
	}
	if cfg.TgBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	cfg.TgBotEndpoint = os.Getenv("TG_BOT_ENDPOINT")

	var err error
	if cfg.TgUpdatesTimeout, err = getInt("TG_UPDATES_TIMEOUT", 90); err != nil {
		return nil, err
	}
	if cfg.TgRateLimit, err = getInt("TG_RATE_LIMIT", 25); err != nil {
		return nil, err
	}
	if cfg.UploadTimeout, err = getDuration("UPLOAD_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("WORKERS", 3); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = getInt("QUEUE_SIZE", 32); err != nil {
		return nil, err
	}
	if cfg.MaxDuration, err = getInt("MAX_DURATION", 1800); err != nil {
		return nil, err
	}
	if cfg.MaxSize, err = getInt64("MAX_SIZE_BYTES", 50*mib); err != nil {
		return nil, err
	}
	if cfg.AudioUploadLimit, err = getInt64("AUDIO_UPLOAD_LIMIT_BYTES", 20*mib); err != nil {
		return nil, err
	}
	if cfg.MaxDisplayDuration, err = getInt("MAX_DISPLAY_DURATION", 600); err != nil {
		return nil, err
	}
	if cfg.StatusDelay, err = getDuration("STATUS_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.SummaryDelay, err = getDuration("SUMMARY_DELAY", time.Second); err != nil {
		return nil, err
	}
	if cfg.ProbeTimeout, err = getDuration("PROBE_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.DownloadTimeout, err = getDuration("DOWNLOAD_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}

	cfg.CookiesFile = getEnv("COOKIES_FILE", "cookies.txt")
	cfg.CookiesInstructionsFile = getEnv("COOKIES_INSTRUCTIONS_FILE", "cookies_instructions.txt")
	cfg.NativeFallback = getEnv("NATIVE_FALLBACK", "1") == "1"
	cfg.YtdlpInstall = os.Getenv("YTDLP_INSTALL") == "1"

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("WORKERS must be positive, got %d", cfg.Workers)
	}
	if cfg.QueueSize < 0 {
		return nil, fmt.Errorf("QUEUE_SIZE must not be negative, got %d", cfg.QueueSize)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s env: %w", key, err)
	}
	return value, nil
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s env: %w", key, err)
	}
	return value, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s env: %w", key, err)
	}
	return value, nil
}
