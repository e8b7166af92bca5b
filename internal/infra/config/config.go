package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
	StoreScylla = "scylla"
)

// Config aggregates application configuration values loaded from environment variables.
type Config struct {
	Env      string
	HTTPAddr string

	StoreDriver string
	MongoURI    string
	MongoDB     string

	ScyllaHosts             []string
	ScyllaKeyspace          string
	ScyllaUsername          string
	ScyllaPassword          string
	ScyllaConsistency       string
	ScyllaTimeout           time.Duration
	ScyllaReplicationFactor int

	KafkaBrokers       []string
	KafkaTopicPrefix   string
	KafkaGroupID       string
	NotificationsTopic string
	ListingsTopic      string
	ListingsFixtures   string
	UsersFixtures      string

	S3Endpoint         string
	S3PublicEndpoint   string
	S3AccessKey        string
	S3SecretKey        string
	S3Bucket           string
	S3UseSSL           bool
	AttachmentMaxBytes int64

	JWTSecret string
	JWTIssuer string

	OperationTimeout   time.Duration
	WSSendBuffer       int
	WSPingInterval     time.Duration
	WSPongWait         time.Duration
	WSMaxMessageBytes  int64
	CORSAllowedOrigins []string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:                getEnv("APP_ENV", "dev"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		StoreDriver:        strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDB:            getEnv("MONGO_DB", "marketchat"),
		ScyllaHosts:        splitList(getEnv("SCYLLA_HOSTS", "127.0.0.1")),
		ScyllaKeyspace:     getEnv("SCYLLA_KEYSPACE", "marketchat"),
		ScyllaUsername:     os.Getenv("SCYLLA_USERNAME"),
		ScyllaPassword:     os.Getenv("SCYLLA_PASSWORD"),
		ScyllaConsistency:  getEnv("SCYLLA_CONSISTENCY", "quorum"),
		KafkaBrokers:       splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:   getEnv("KAFKA_TOPIC_PREFIX", ""),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "marketchat"),
		NotificationsTopic: getEnv("NOTIFICATIONS_TOPIC", "notifications"),
		ListingsTopic:      getEnv("LISTINGS_TOPIC", "listings"),
		ListingsFixtures:   os.Getenv("LISTINGS_FIXTURES"),
		UsersFixtures:      os.Getenv("USERS_FIXTURES"),
		S3Endpoint:         os.Getenv("S3_ENDPOINT"),
		S3PublicEndpoint:   getEnv("S3_PUBLIC_ENDPOINT", ""),
		S3AccessKey:        getEnv("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:        getEnv("S3_SECRET_KEY", "minioadmin"),
		S3Bucket:           getEnv("S3_BUCKET", "marketchat-attachments"),
		JWTSecret:          os.Getenv("AUTH_JWT_SECRET"),
		JWTIssuer:          getEnv("AUTH_JWT_ISSUER", ""),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
	}

	var err error
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaReplicationFactor, err = parseIntEnv("SCYLLA_REPLICATION_FACTOR", 1); err != nil {
		return Config{}, err
	}
	if cfg.S3UseSSL, err = parseBoolEnv("S3_USE_SSL", false); err != nil {
		return Config{}, err
	}
	maxBytes, err := parseIntEnv("ATTACHMENT_MAX_BYTES", 10<<20)
	if err != nil {
		return Config{}, err
	}
	cfg.AttachmentMaxBytes = int64(maxBytes)
	if cfg.OperationTimeout, err = parseDurationEnv("OPERATION_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WSSendBuffer, err = parseIntEnv("WS_SEND_BUFFER", 64); err != nil {
		return Config{}, err
	}
	if cfg.WSPingInterval, err = parseDurationEnv("WS_PING_INTERVAL", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.WSPongWait, err = parseDurationEnv("WS_PONG_WAIT", 60*time.Second); err != nil {
		return Config{}, err
	}
	wsMax, err := parseIntEnv("WS_MAX_MESSAGE_BYTES", 64<<10)
	if err != nil {
		return Config{}, err
	}
	cfg.WSMaxMessageBytes = int64(wsMax)
	if cfg.S3PublicEndpoint == "" {
		cfg.S3PublicEndpoint = cfg.S3Endpoint
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for STORE_DRIVER=mongo")
		}
	case StoreScylla:
		if len(c.ScyllaHosts) == 0 {
			return fmt.Errorf("SCYLLA_HOSTS is required for STORE_DRIVER=scylla")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}
	if c.WSPingInterval >= c.WSPongWait {
		return fmt.Errorf("WS_PING_INTERVAL must be shorter than WS_PONG_WAIT")
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseIntEnv(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s integer: %w", key, err)
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}
