package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meal-program/production-service/internal/application"
	"github.com/meal-program/production-service/pkg/kafka"
	"github.com/meal-program/production-service/pkg/mongodb"
	"github.com/meal-program/production-service/pkg/temporal"
)

// Storage drivers
const (
	StorageMongoDB = "mongodb"
	StorageMemory  = "memory"
)

// Config holds the settings shared by the API and the worker
type Config struct {
	ServiceName   string
	ServerAddr    string
	StorageDriver string
	MongoDB       *mongodb.Config
	Kafka         *kafka.Config
	Temporal      *temporal.Config
	Policy        application.Config
	Collaborators Collaborators

	PublishEvents      bool
	OutboxPollInterval time.Duration
}

// Collaborators locates the menu and inventory services. An empty URL
// falls back to the static catalog.
type Collaborators struct {
	MenuServiceURL      string `yaml:"menuServiceUrl"`
	InventoryServiceURL string `yaml:"inventoryServiceUrl"`
	CatalogFile         string `yaml:"catalogFile"`
	Timeout             time.Duration
}

// policyFile is the YAML document named by PRODUCTION_CONFIG_FILE
type policyFile struct {
	RequirePassingVerdict *bool         `yaml:"requirePassingVerdict"`
	PassThreshold         *int          `yaml:"passThreshold"`
	MaxActualPortions     *int          `yaml:"maxActualPortions"`
	Currency              string        `yaml:"currency"`
	Collaborators         Collaborators `yaml:"collaborators"`
}

// Load reads the optional policy file and then the environment. Environment
// variables win over the file.
func Load(serviceName, defaultAddr string) (*Config, error) {
	return load(serviceName, defaultAddr, os.Getenv)
}

func load(serviceName, defaultAddr string, lookup func(string) string) (*Config, error) {
	getEnv := func(key, defaultValue string) string {
		if value := lookup(key); value != "" {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		ServiceName:   serviceName,
		ServerAddr:    getEnv("SERVER_ADDR", defaultAddr),
		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", StorageMongoDB)),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
			Database:       getEnv("MONGODB_DATABASE", "production_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    5,
		},
		Kafka: &kafka.Config{
			Brokers:      strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ClientID:     serviceName,
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: -1,
			WriteTimeout: 10 * time.Second,
		},
		Temporal: &temporal.Config{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			Identity:  serviceName,
		},
		Policy: application.DefaultConfig(),
		Collaborators: Collaborators{
			Timeout: 10 * time.Second,
		},
		PublishEvents:      getEnv("PUBLISH_EVENTS", "true") == "true",
		OutboxPollInterval: time.Second,
	}

	if path := lookup("PRODUCTION_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if file.RequirePassingVerdict != nil {
		c.Policy.RequirePassingVerdict = *file.RequirePassingVerdict
	}
	if file.PassThreshold != nil {
		c.Policy.PassThreshold = *file.PassThreshold
	}
	if file.MaxActualPortions != nil {
		c.Policy.MaxActualPortions = *file.MaxActualPortions
	}
	if file.Currency != "" {
		c.Policy.Currency = file.Currency
	}
	if file.Collaborators.MenuServiceURL != "" {
		c.Collaborators.MenuServiceURL = file.Collaborators.MenuServiceURL
	}
	if file.Collaborators.InventoryServiceURL != "" {
		c.Collaborators.InventoryServiceURL = file.Collaborators.InventoryServiceURL
	}
	if file.Collaborators.CatalogFile != "" {
		c.Collaborators.CatalogFile = file.Collaborators.CatalogFile
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) string) error {
	if v := lookup("REQUIRE_PASSING_VERDICT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REQUIRE_PASSING_VERDICT: %w", err)
		}
		c.Policy.RequirePassingVerdict = b
	}
	if v := lookup("QC_PASS_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("QC_PASS_THRESHOLD: %w", err)
		}
		c.Policy.PassThreshold = n
	}
	if v := lookup("MAX_ACTUAL_PORTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MAX_ACTUAL_PORTIONS: %w", err)
		}
		c.Policy.MaxActualPortions = n
	}
	if v := lookup("CURRENCY"); v != "" {
		c.Policy.Currency = v
	}
	if v := lookup("MENU_SERVICE_URL"); v != "" {
		c.Collaborators.MenuServiceURL = v
	}
	if v := lookup("INVENTORY_SERVICE_URL"); v != "" {
		c.Collaborators.InventoryServiceURL = v
	}
	if v := lookup("CATALOG_FILE"); v != "" {
		c.Collaborators.CatalogFile = v
	}
	return nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case StorageMongoDB, StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.Policy.PassThreshold < 1 || c.Policy.PassThreshold > 100 {
		return fmt.Errorf("pass threshold must be within 1..100, got %d", c.Policy.PassThreshold)
	}
	if c.Policy.MaxActualPortions < 1 {
		return fmt.Errorf("max actual portions must be positive, got %d", c.Policy.MaxActualPortions)
	}
	if len(c.Policy.Currency) != 3 {
		return fmt.Errorf("currency must be a 3-letter ISO code, got %q", c.Policy.Currency)
	}
	return nil
}
