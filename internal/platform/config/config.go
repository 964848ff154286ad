package config

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	RedisURL      string
	KafkaBrokers  []string
	JWTSigningKey string
	JWTIssuer     string
	LogLevel      slog.Level

	NationalRegistryURL    string
	NationalRegistryAPIKey string
	UserProfileURL         string
	// Caseworkers lists the national ids allowed to review applications.
	Caseworkers []string
}

// DelegationTokenTTL bounds how long an assignee has to claim an application
// after a transition routes it to them.
var DelegationTokenTTL = 7 * 24 * time.Hour

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("FORMFLOW_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "formflow"
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}

	var caseworkers []string
	if raw := os.Getenv("CASEWORKERS"); raw != "" {
		caseworkers = strings.Split(raw, ",")
	}

	return Server{
		Addr:          addr,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),
		KafkaBrokers:  brokers,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     jwtIssuer,
		LogLevel:      level,

		NationalRegistryURL:    os.Getenv("NATIONAL_REGISTRY_URL"),
		NationalRegistryAPIKey: os.Getenv("NATIONAL_REGISTRY_API_KEY"),
		UserProfileURL:         os.Getenv("USER_PROFILE_URL"),
		Caseworkers:            caseworkers,
	}
}
