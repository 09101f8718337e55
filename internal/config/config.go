package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr           string
	DatabaseURL    string
	MigrationsDir  string
	JWTSecret      string
	AccessTTL      time.Duration
	CORSOrigin     string
	PublicBaseURL  string
	MeiliURL       string
	MeiliMasterKey string
	// SMTP Configuration
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string
	// Redis Configuration
	RedisURL       string
	IdempotencyTTL time.Duration
	// Snapshot capture and blob storage
	SnapshotEnabled bool
	SnapshotWorkers int
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioUseSSL     bool
}

// Load reads the environment. When SPACES_CONFIG names a YAML file its
// top-level keys fill in any variable the environment leaves unset.
func Load() (Config, error) {
	file := map[string]string{}
	if path := os.Getenv("SPACES_CONFIG"); path != "" {
		loaded, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		file = loaded
	}
	return load(lookup(file)), nil
}

func load(get func(string) string) Config {
	s := source{get: get}
	return Config{
		Addr:           s.getenv("API_ADDR", ":8787"),
		DatabaseURL:    s.getenv("DATABASE_URL", ""),
		MigrationsDir:  s.getenv("MIGRATIONS_DIR", "./db/migrations"),
		JWTSecret:      s.getenv("SPACES_JWT_SECRET", "spaces-dev-secret"),
		AccessTTL:      time.Duration(s.getenvInt("SPACES_ACCESS_TTL_SECONDS", 86400)) * time.Second,
		CORSOrigin:     s.getenv("SPACES_CORS_ORIGIN", "*"),
		PublicBaseURL:  strings.TrimRight(s.getenv("SPACES_PUBLIC_BASE_URL", "http://localhost:8787"), "/"),
		MeiliURL:       s.getenv("MEILI_URL", ""),
		MeiliMasterKey: s.getenv("MEILI_MASTER_KEY", ""),
		// SMTP - empty by default, email disabled if not configured
		SMTPHost:     s.getenv("SMTP_HOST", ""),
		SMTPPort:     s.getenv("SMTP_PORT", "587"),
		SMTPUsername: s.getenv("SMTP_USERNAME", ""),
		SMTPPassword: s.getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     s.getenv("SMTP_FROM", ""),
		SMTPFromName: s.getenv("SMTP_FROM_NAME", "Spaces"),
		// Redis - idempotency keys fall back to process memory when unset
		RedisURL:        s.getenv("REDIS_URL", ""),
		IdempotencyTTL:  time.Duration(s.getenvInt("SPACES_IDEMPOTENCY_TTL_SECONDS", 86400)) * time.Second,
		SnapshotEnabled: s.getenvBool("SNAPSHOT_ENABLED", false),
		SnapshotWorkers: s.getenvInt("SNAPSHOT_WORKERS", 2),
		MinioEndpoint:   s.getenv("MINIO_ENDPOINT", ""),
		MinioAccessKey:  s.getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  s.getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:     s.getenv("MINIO_BUCKET", "spaces-snapshots"),
		MinioUseSSL:     s.getenvBool("MINIO_USE_SSL", false),
	}
}

func readFile(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	values := make(map[string]string, len(doc))
	for key, value := range doc {
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config %s: key %s must be a scalar", path, key)
		case nil:
			continue
		}
		values[strings.ToUpper(key)] = fmt.Sprint(value)
	}
	return values, nil
}

func lookup(file map[string]string) func(string) string {
	return func(key string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return file[key]
	}
}

type source struct {
	get func(string) string
}

func (s source) getenv(key, fallback string) string {
	value := s.get(key)
	if value == "" {
		return fallback
	}
	return value
}

func (s source) getenvInt(key string, fallback int) int {
	value := s.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getenvBool(key string, fallback bool) bool {
	value := s.get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
