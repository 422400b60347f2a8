package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// Config holds all application configuration. Load() returns an immutable
// snapshot; nothing reaches back into the environment after that point.
type Config struct {
	Environment string

	HTTPBindAddress string
	WSBindAddress   string

	DataDir string

	JWT   JWTConfig
	Admin AdminConfig

	CORS CORSConfig
}

type JWTConfig struct {
	Secret string
	TTL    string // parsed by auth.NewAuthority, kept as duration string here
}

type AdminConfig struct {
	Username     string
	PasswordHash string // bcrypt hash; generated at startup if unset
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables, preferring a local
// .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),

		HTTPBindAddress: getEnv("API_BIND_ADDRESS", ":8080"),
		WSBindAddress:   getEnv("BIND_ADDRESS", ":9090"),

		DataDir: getEnv("DATA_FILE", "./data"),

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getEnv("JWT_TTL", "72h"),
		},

		Admin: AdminConfig{
			Username:     getEnv("ADMIN_USERNAME", "admin"),
			PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},

		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}, ","),
		},
	}

	if cfg.JWT.Secret == "" {
		log.Println("[SECURITY WARNING] JWT_SECRET not set - using insecure development default")
		cfg.JWT.Secret = "super_secret_dev_key_do_not_use_in_prod_00000"
	}

	if cfg.Admin.PasswordHash == "" {
		log.Println("[SECURITY WARNING] ADMIN_PASSWORD_HASH not set - generating hash for the default development password")
		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("generating default admin password hash: %w", err)
		}
		cfg.Admin.PasswordHash = string(hash)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration meets the invariants the
// rest of the system assumes.
func (c *Config) Validate() error {
	if len(c.JWT.Secret) < 32 {
		if c.Environment == "production" {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		log.Println("[SECURITY WARNING] JWT_SECRET is shorter than 32 characters")
	}
	return nil
}

// Helper functions

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultVal
	}
	return value
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	out := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(valueStr); i++ {
		if string(valueStr[i]) == sep {
			out = append(out, valueStr[start:i])
			start = i + len(sep)
		}
	}
	out = append(out, valueStr[start:])
	return out
}
