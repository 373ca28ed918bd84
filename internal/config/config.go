package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	TransportRealtime = "realtime"
	TransportPGNotify = "pgnotify"
)

type Config struct {
	DatabaseURL string

	CDCTransport    string
	RealtimeURL     string
	RealtimeAPIKey  string
	PGNotifyChannel string

	IdentityDSN string
	DeviceID    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CardTextTTL   time.Duration

	HTTPAddr  string
	LogLevel  string
	LogFormat string

	NavDebounce time.Duration
	NavSettle   time.Duration
}

// Load reads an optional .env file and then the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	c := &Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CDCTransport:    getenv("CDC_TRANSPORT", TransportRealtime),
		RealtimeURL:     os.Getenv("REALTIME_URL"),
		RealtimeAPIKey:  os.Getenv("REALTIME_API_KEY"),
		PGNotifyChannel: getenv("PG_NOTIFY_CHANNEL", "game_changes"),
		IdentityDSN:     getenv("IDENTITY_DSN", "identity.db"),
		DeviceID:        os.Getenv("DEVICE_ID"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogFormat:       getenv("LOG_FORMAT", "json"),
	}

	var err error
	if c.RedisDB, err = getint("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if c.CardTextTTL, err = getduration("CARD_TEXT_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if c.NavDebounce, err = getduration("NAV_DEBOUNCE", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if c.NavSettle, err = getduration("NAV_SETTLE", 500*time.Millisecond); err != nil {
		return nil, err
	}
	if c.DeviceID == "" {
		c.DeviceID = uuid.NewString()
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: DATABASE_URL is required", ErrInvalid)
	}
	switch c.CDCTransport {
	case TransportRealtime:
		if c.RealtimeURL == "" {
			return fmt.Errorf("%w: REALTIME_URL is required for the realtime transport", ErrInvalid)
		}
	case TransportPGNotify:
		if c.PGNotifyChannel == "" {
			return fmt.Errorf("%w: PG_NOTIFY_CHANNEL is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown CDC_TRANSPORT %q", ErrInvalid, c.CDCTransport)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getint(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return n, nil
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	return d, nil
}
