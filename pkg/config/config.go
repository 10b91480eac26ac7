package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StoreMongo     = "mongo"
)

// Identity providers.
const (
	IdentityLocal    = "local"
	IdentityFirebase = "firebase"
)

type Config struct {
	Port                    string
	Env                     string
	FirebaseCredentialsPath string
	FirebaseAPIKey          string
	FirebaseProjectID       string
	PostgresUrl             string
	MongoURI                string
	MongoDatabase           string
	MetricsPort             string
	JWTSecret               string
	TokenTTL                time.Duration
	StoreBackend            string
	IdentityProvider        string
	KafkaBrokers            []string
	KafkaTopic              string
	ConfigFile              string
	Ledger                  LedgerConfig
}

// LedgerConfig is the part of the configuration that may also come from CONFIG_FILE.
type LedgerConfig struct {
	Categories []string `yaml:"categories"`
	Policy     string   `yaml:"love_index_policy"`
	Mode       string   `yaml:"ledger_mode"`
}

type fileConfig struct {
	Ledger LedgerConfig `yaml:"ledger"`
}

// Load reads .env (when present), the environment and the optional YAML file named by
// CONFIG_FILE. Values in the file win over the environment for the ledger section.
func Load() (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", "8080"),
		Env:                     getEnv("ENV", "development"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		FirebaseAPIKey:          getEnv("FIREBASE_API_KEY", ""),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		PostgresUrl:             getEnv("POSTGRES_CONN_STR", ""),
		MongoURI:                getEnv("MONGO_URI", ""),
		MongoDatabase:           getEnv("MONGO_DATABASE", "lovesignal"),
		MetricsPort:             getEnv("METRICS_PORT", "9090"),
		JWTSecret:               getEnv("JWT_SECRET", ""),
		StoreBackend:            strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		IdentityProvider:        strings.ToLower(getEnv("IDENTITY_PROVIDER", IdentityLocal)),
		KafkaBrokers:            splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:              getEnv("KAFKA_TOPIC", "lovesignal.events"),
		ConfigFile:              getEnv("CONFIG_FILE", ""),
		Ledger: LedgerConfig{
			Categories: splitList(getEnv("SIGNAL_CATEGORIES", "")),
			Policy:     getEnv("LOVE_INDEX_POLICY", "bounded"),
			Mode:       getEnv("LEDGER_MODE", "append-only"),
		},
	}

	ttl, err := time.ParseDuration(getEnv("TOKEN_TTL", "72h"))
	if err != nil {
		return nil, fmt.Errorf("TOKEN_TTL: %w", err)
	}
	cfg.TokenTTL = ttl

	if cfg.ConfigFile != "" {
		if err := cfg.overlay(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if len(fc.Ledger.Categories) > 0 {
		c.Ledger.Categories = fc.Ledger.Categories
	}
	if fc.Ledger.Policy != "" {
		c.Ledger.Policy = fc.Ledger.Policy
	}
	if fc.Ledger.Mode != "" {
		c.Ledger.Mode = fc.Ledger.Mode
	}
	return nil
}

// Validate checks the combinations Load cannot default away.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreMemory:
	case StoreFirestore:
		if c.FirebaseCredentialsPath == "" {
			return fmt.Errorf("STORE_BACKEND=firestore requires FIREBASE_CREDENTIALS_PATH")
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("STORE_BACKEND=mongo requires MONGO_URI")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.IdentityProvider {
	case IdentityLocal:
		if c.JWTSecret == "" {
			return fmt.Errorf("IDENTITY_PROVIDER=local requires JWT_SECRET")
		}
	case IdentityFirebase:
		if c.FirebaseCredentialsPath == "" || c.FirebaseAPIKey == "" {
			return fmt.Errorf("IDENTITY_PROVIDER=firebase requires FIREBASE_CREDENTIALS_PATH and FIREBASE_API_KEY")
		}
	default:
		return fmt.Errorf("unknown IDENTITY_PROVIDER %q", c.IdentityProvider)
	}
	return nil
}

// NeedsFirebase reports whether any component talks to Firebase.
func (c *Config) NeedsFirebase() bool {
	return c.StoreBackend == StoreFirestore || c.IdentityProvider == IdentityFirebase
}

func (c *Config) IsDevelopment() bool { return c.Env == "development" }

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
