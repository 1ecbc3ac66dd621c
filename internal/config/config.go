package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort        string
	GRPCPort        string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	CatalogDBPath string
	CatalogDelay  time.Duration
	LoginDelay    time.Duration
	CheckoutDelay time.Duration
	SeedOrders    bool

	// StorageBackend is one of "memory", "redis", "mongo".
	StorageBackend string
	RedisAddr      string
	RedisPassword  string
	MongoURI       string
	MongoDBName    string
	MongoMaxPool   uint64
	MongoMinPool   uint64

	// Orders archive is enabled when OrdersDBHost is set.
	OrdersDBHost           string
	OrdersDBPort           int
	OrdersDBUser           string
	OrdersDBPassword       string
	OrdersDBName           string
	KafkaBrokers           []string
	KafkaTopic             string
	AssistantAPIKey        string
	AssistantBaseURL       string
	AssistantModel         string
	AssistantTimeout       time.Duration
	AssistantRatePerSecond float64
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		GRPCPort:         getEnv("GRPC_PORT", "50060"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CatalogDBPath:    getEnv("CATALOG_DB_PATH", "file:catalog.db"),
		StorageBackend:   strings.ToLower(getEnv("STORAGE_BACKEND", "memory")),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:      getEnv("MONGO_DB_NAME", "storefront"),
		OrdersDBHost:     getEnv("ORDERS_DB_HOST", ""),
		OrdersDBUser:     getEnv("ORDERS_DB_USER", "postgres"),
		OrdersDBPassword: getEnv("ORDERS_DB_PASSWORD", "postgres"),
		OrdersDBName:     getEnv("ORDERS_DB_NAME", "storefront"),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "storefront-orders"),
		AssistantAPIKey:  getEnv("GEMINI_API_KEY", ""),
		AssistantBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
		AssistantModel:   getEnv("GEMINI_MODEL", "gemini-3-flash-preview"),
	}

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	var err error
	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.RequestTimeout, "REQUEST_TIMEOUT", "30s"},
		{&cfg.ShutdownTimeout, "SHUTDOWN_TIMEOUT", "10s"},
		{&cfg.CatalogDelay, "CATALOG_DELAY", "600ms"},
		{&cfg.LoginDelay, "LOGIN_DELAY", "600ms"},
		{&cfg.CheckoutDelay, "CHECKOUT_DELAY", "1500ms"},
		{&cfg.AssistantTimeout, "GEMINI_TIMEOUT", "10s"},
	}
	for _, d := range durations {
		if *d.dst, err = time.ParseDuration(getEnv(d.key, d.def)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	if cfg.OrdersDBPort, err = strconv.Atoi(getEnv("ORDERS_DB_PORT", "5432")); err != nil {
		return nil, fmt.Errorf("invalid ORDERS_DB_PORT: %w", err)
	}
	if cfg.MongoMaxPool, err = strconv.ParseUint(getEnv("MONGO_MAX_POOL_SIZE", "20"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MONGO_MAX_POOL_SIZE: %w", err)
	}
	if cfg.MongoMinPool, err = strconv.ParseUint(getEnv("MONGO_MIN_POOL_SIZE", "2"), 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MONGO_MIN_POOL_SIZE: %w", err)
	}
	if cfg.SeedOrders, err = strconv.ParseBool(getEnv("SEED_DEMO_ORDERS", "true")); err != nil {
		return nil, fmt.Errorf("invalid SEED_DEMO_ORDERS: %w", err)
	}
	if cfg.AssistantRatePerSecond, err = strconv.ParseFloat(getEnv("GEMINI_RATE_PER_SECOND", "2"), 64); err != nil {
		return nil, fmt.Errorf("invalid GEMINI_RATE_PER_SECOND: %w", err)
	}

	switch cfg.StorageBackend {
	case "memory", "redis", "mongo":
	default:
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
