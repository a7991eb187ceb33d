package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Values that must never reach production.
var insecureDefaults = map[string]bool{
	"your-super-secret-jwt-token-with-at-least-32-characters-long": true,
	"changeme": true,
	"":         true,
}

const nodeTokenPrefix = "NODE_TOKEN_"

// Config holds all service configuration.
type Config struct {
	ServiceName string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Pelican     PelicanConfig
	Forpsi      ForpsiConfig
	Provision   ProvisionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	Mode         string
	SyncInterval time.Duration
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL         string
	Host        string
	Port        string
	User        string
	Password    string
	DBName      string
	SSLMode     string
	AutoMigrate bool
}

// AuthConfig holds token verification settings.
type AuthConfig struct {
	JWTSecret string
}

// PelicanConfig holds panel and daemon settings.
type PelicanConfig struct {
	APIURL       string
	APIKey       string
	ClientAPIURL string
	ClientAPIKey string
	Timeout      time.Duration
	WingsTimeout time.Duration
	// NodeTokens maps an upstream node id to the daemon token used for live stats.
	NodeTokens map[string]string
}

// ForpsiConfig holds billing provider settings.
type ForpsiConfig struct {
	APIURL        string
	WebhookSecret string
	Timeout       time.Duration
}

// ProvisionConfig holds server provisioning defaults.
type ProvisionConfig struct {
	Attempts         int
	Backoff          time.Duration
	DockerImage      string
	Startup          string
	AutoNodeID       string
	AutoEggID        int
	BackupLimit      int
	DefaultPelicanID int
}

// AutoProvisionEnabled reports whether paid webhook orders get a server automatically.
func (p ProvisionConfig) AutoProvisionEnabled() bool {
	return p.AutoNodeID != "" && p.AutoEggID > 0
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getEnv("SERVICE_NAME", "nexus-portal"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Mode:         getEnv("GIN_MODE", "release"),
			SyncInterval: getEnvDuration("SYNC_INTERVAL", 0),
		},
		Database: DatabaseConfig{
			URL:         getEnv("DATABASE_URL", ""),
			Host:        getEnv("DB_HOST", "localhost"),
			Port:        getEnv("DB_PORT", "5432"),
			User:        getEnv("DB_USER", "postgres"),
			Password:    getEnv("DB_PASSWORD", "postgres"),
			DBName:      getEnv("DB_NAME", "postgres"),
			SSLMode:     getEnv("DB_SSLMODE", "disable"),
			AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", false),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),
		},
		Pelican: PelicanConfig{
			APIURL:       strings.TrimRight(getEnv("PELICAN_API_URL", "http://localhost/api/application"), "/"),
			APIKey:       getEnv("PELICAN_API_KEY", ""),
			ClientAPIURL: strings.TrimRight(getEnv("PELICAN_CLIENT_API_URL", "http://localhost/api/client"), "/"),
			ClientAPIKey: getEnv("PELICAN_CLIENT_API_KEY", ""),
			Timeout:      getEnvDuration("PELICAN_TIMEOUT", 10*time.Second),
			WingsTimeout: getEnvDuration("WINGS_TIMEOUT", 5*time.Second),
			NodeTokens:   nodeTokens(os.Environ()),
		},
		Forpsi: ForpsiConfig{
			APIURL:        strings.TrimRight(getEnv("FORPSI_API_URL", ""), "/"),
			WebhookSecret: getEnv("FORPSI_WEBHOOK_SECRET", ""),
			Timeout:       getEnvDuration("FORPSI_TIMEOUT", 30*time.Second),
		},
		Provision: ProvisionConfig{
			Attempts:         getEnvInt("PROVISION_ATTEMPTS", 3),
			Backoff:          getEnvDuration("PROVISION_BACKOFF", time.Second),
			DockerImage:      getEnv("PROVISION_DOCKER_IMAGE", "ghcr.io/pterodactyl/yolks:java_17"),
			Startup:          getEnv("PROVISION_STARTUP", "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar server.jar nogui"),
			AutoNodeID:       getEnv("AUTO_PROVISION_NODE_ID", ""),
			AutoEggID:        getEnvInt("AUTO_PROVISION_EGG_ID", 0),
			BackupLimit:      getEnvInt("PROVISION_BACKUP_LIMIT", 5),
			DefaultPelicanID: getEnvInt("PELICAN_DEFAULT_USER_ID", 1),
		},
	}

	return cfg
}

// Validate checks the settings the portal cannot run without.
func (c *Config) Validate() error {
	if insecureDefaults[c.Auth.JWTSecret] {
		return fmt.Errorf("SUPABASE_JWT_SECRET must be set to a secure value")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("SUPABASE_JWT_SECRET must be at least 32 characters long")
	}
	if c.Pelican.APIKey == "" {
		return fmt.Errorf("PELICAN_API_KEY must be set")
	}
	if c.Provision.Attempts < 1 {
		return fmt.Errorf("PROVISION_ATTEMPTS must be at least 1")
	}
	if c.Provision.AutoProvisionEnabled() && c.Forpsi.WebhookSecret == "" {
		return fmt.Errorf("FORPSI_WEBHOOK_SECRET must be set when AUTO_PROVISION_NODE_ID and AUTO_PROVISION_EGG_ID are set")
	}
	return nil
}

// DSN returns DATABASE_URL, or a URL built from the DB_* settings.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + c.Port + "/" + c.DBName + "?sslmode=" + c.SSLMode
}

// nodeTokens collects NODE_TOKEN_<id>=<token> pairs.
func nodeTokens(environ []string) map[string]string {
	tokens := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, nodeTokenPrefix) || value == "" {
			continue
		}
		id := strings.TrimPrefix(key, nodeTokenPrefix)
		if id == "" {
			continue
		}
		tokens[id] = value
	}
	return tokens
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
