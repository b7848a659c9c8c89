package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StoreDriver   string
	DBPath        string
	DBDSN         string
	RedisAddr     string
	HTTPAddr      string
	OtelEndpoint  string
	KafkaBrokers  []string
	KafkaTopic    string
	KafkaGroupID  string
	QueryTimeout  time.Duration
	FlushInterval time.Duration
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

type EnvSource interface {
	Lookup(key string) (string, bool)
}

type EnvMap map[string]string

func (e EnvMap) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

func FromEnviron() EnvSource {
	env := make(EnvMap)
	for _, entry := range os.Environ() {
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		env[parts[0]] = parts[1]
	}
	return env
}

func Load(source EnvSource) (Config, error) {
	if source == nil {
		return Config{}, errors.New("env source is required")
	}

	storeDriver := "sqlite"
	if raw, ok := source.Lookup("STORE_DRIVER"); ok && strings.TrimSpace(raw) != "" {
		storeDriver = strings.ToLower(strings.TrimSpace(raw))
	}
	if storeDriver != "sqlite" && storeDriver != "mysql" {
		return Config{}, fmt.Errorf("unsupported STORE_DRIVER %q", storeDriver)
	}

	dbPath := "poolscope.db"
	if raw, ok := source.Lookup("DB_PATH"); ok && strings.TrimSpace(raw) != "" {
		dbPath = strings.TrimSpace(raw)
	}

	dbDSN, ok := source.Lookup("DB_DSN")
	if !ok || strings.TrimSpace(dbDSN) == "" {
		dbDSN = "root:@tcp(127.0.0.1:3306)/poolscope?parseTime=true&multiStatements=true"
	}
	if storeDriver == "mysql" {
		if raw, ok := source.Lookup("DB_DSN"); !ok || strings.TrimSpace(raw) == "" {
			return Config{}, errors.New("DB_DSN is required when STORE_DRIVER=mysql")
		}
	}

	redisAddr := ""
	if raw, ok := source.Lookup("REDIS_ADDR"); ok {
		redisAddr = strings.TrimSpace(raw)
	}

	httpAddr := ":8080"
	if raw, ok := source.Lookup("HTTP_ADDR"); ok && raw != "" {
		httpAddr = raw
	}

	otelEndpoint, _ := source.Lookup("OTEL_EXPORTER_OTLP_ENDPOINT")
	otelEndpoint = strings.TrimSpace(otelEndpoint)

	kafkaBrokers, err := parseList(source, "KAFKA_BROKERS", "localhost:9092")
	if err != nil {
		return Config{}, err
	}
	kafkaTopic, ok := source.Lookup("KAFKA_TOPIC")
	if !ok || kafkaTopic == "" {
		kafkaTopic = "poolscope-events"
	}
	kafkaGroupID, ok := source.Lookup("KAFKA_GROUP_ID")
	if !ok || kafkaGroupID == "" {
		kafkaGroupID = "poolscope-ingest"
	}

	queryTimeout := 5 * time.Second
	if raw, ok := source.Lookup("QUERY_TIMEOUT"); ok && raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid QUERY_TIMEOUT: %w", err)
		}
		queryTimeout = duration
	}

	flushInterval := 500 * time.Millisecond
	if raw, ok := source.Lookup("FLUSH_INTERVAL"); ok && raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid FLUSH_INTERVAL: %w", err)
		}
		flushInterval = duration
	}

	logLevel := "info"
	if raw, ok := source.Lookup("LOG_LEVEL"); ok && strings.TrimSpace(raw) != "" {
		logLevel = strings.TrimSpace(raw)
	}
	logFile, _ := source.Lookup("LOG_FILE")

	logMaxSize, err := parseIntEnv(source, "LOG_MAX_SIZE_MB", 100)
	if err != nil {
		return Config{}, err
	}
	logMaxBackups, err := parseIntEnv(source, "LOG_MAX_BACKUPS", 3)
	if err != nil {
		return Config{}, err
	}

	return Config{
		StoreDriver:   storeDriver,
		DBPath:        dbPath,
		DBDSN:         dbDSN,
		RedisAddr:     redisAddr,
		HTTPAddr:      httpAddr,
		OtelEndpoint:  otelEndpoint,
		KafkaBrokers:  kafkaBrokers,
		KafkaTopic:    kafkaTopic,
		KafkaGroupID:  kafkaGroupID,
		QueryTimeout:  queryTimeout,
		FlushInterval: flushInterval,
		LogLevel:      logLevel,
		LogFile:       strings.TrimSpace(logFile),
		LogMaxSizeMB:  logMaxSize,
		LogMaxBackups: logMaxBackups,
	}, nil
}

func parseIntEnv(source EnvSource, key string, defaultValue int) (int, error) {
	raw, ok := source.Lookup(key)
	if !ok || raw == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}

func parseList(source EnvSource, key string, defaultValue string) ([]string, error) {
	raw, ok := source.Lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = defaultValue
	}
	items := strings.Split(raw, ",")
	var values []string
	for _, item := range items {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		values = append(values, value)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s is required", key)
	}
	return values, nil
}
