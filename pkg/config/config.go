package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Relay struct {
	Addr       string
	LogLevel   string
	PeerBuffer int
}

type Client struct {
	Addr       string
	LogLevel   string
	MirrorPath string
	// RedisURL switches mirror notifications from a file watch to redis
	// pub/sub when set.
	RedisURL          string
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Timeout           time.Duration
}

func LoadRelay() Relay {
	return Relay{
		Addr:       getenv("RECTSYNC_ADDR", "localhost:8080"),
		LogLevel:   getenv("RECTSYNC_LOG_LEVEL", "info"),
		PeerBuffer: getenvInt("RECTSYNC_PEER_BUFFER", 256),
	}
}

func LoadClient() Client {
	return Client{
		Addr:              getenv("RECTSYNC_ADDR", "localhost:8080"),
		LogLevel:          getenv("RECTSYNC_LOG_LEVEL", "info"),
		MirrorPath:        getenv("RECTSYNC_MIRROR_PATH", "rectangles.sqlite3"),
		RedisURL:          getenv("RECTSYNC_REDIS_URL", ""),
		ReconnectAttempts: getenvInt("RECTSYNC_RECONNECT_ATTEMPTS", 10),
		ReconnectDelay:    time.Duration(getenvInt("RECTSYNC_RECONNECT_DELAY_MS", 1000)) * time.Millisecond,
		Timeout:           time.Duration(getenvInt("RECTSYNC_TIMEOUT_MS", 5000)) * time.Millisecond,
	}
}

// ParseLevel maps debug, info, warn and error to their slog levels.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
}

// SetupLogging installs a text handler on stderr as the default logger.
func SetupLogging(level string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
	return nil
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
