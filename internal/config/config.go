package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from every environment variable the collector reads.
// Nested keys are separated by a double underscore, e.g.
// COLLECTOR_INGEST__PLUGIN_KEY maps to ingest.plugin_key.
const EnvPrefix = "COLLECTOR_"

type Config struct {
	Primary       Primary              `koanf:"primary" validate:"required"`
	Server        ServerConfig         `koanf:"server" validate:"required"`
	Database      DatabaseConfig       `koanf:"database" validate:"required"`
	Ingest        IngestConfig         `koanf:"ingest" validate:"required"`
	Auth          AuthConfig           `koanf:"auth" validate:"required"`
	Storage       *StorageConfig       `koanf:"storage"`
	Events        *EventsConfig        `koanf:"events"`
	Observability *ObservabilityConfig `koanf:"observability"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port               string   `koanf:"port" validate:"required"`
	ReadTimeout        int      `koanf:"read_timeout" validate:"required"`
	WriteTimeout       int      `koanf:"write_timeout" validate:"required"`
	IdleTimeout        int      `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins" validate:"required"`
}

type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

// IngestConfig holds the shared secrets and limits of the receiver endpoint.
type IngestConfig struct {
	Path         string `koanf:"path" validate:"required,startswith=/"`
	SecretHeader string `koanf:"secret_header" validate:"required"`
	Secret       string `koanf:"secret" validate:"required"`
	PluginKey    string `koanf:"plugin_key" validate:"required"`
	FailureDir   string `koanf:"failure_dir" validate:"required"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" validate:"required,gt=0"`
	TrustProxy   bool   `koanf:"trust_proxy"`
}

// AuthConfig is the single operator account guarding the read side.
type AuthConfig struct {
	Username string `koanf:"username" validate:"required"`
	Password string `koanf:"password" validate:"required"`
}

type StorageConfig struct {
	O3 *O3Config `koanf:"o3"`
}

// O3Config points at an S3-compatible bucket (Akave O3, MinIO, S3) used to
// mirror failure artifacts.
type O3Config struct {
	Endpoint  string `koanf:"endpoint"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
}

// EventsConfig enables publishing accepted entries to Kafka.
type EventsConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

// Enabled reports whether both brokers and a topic are configured.
func (c *EventsConfig) Enabled() bool {
	return c != nil && len(c.Brokers) > 0 && c.Topic != ""
}

// Default returns the configuration used for every key that is not set in the environment.
func Default() *Config {
	return &Config{
		Primary: Primary{Env: "development"},
		Server: ServerConfig{
			Port:               "8080",
			ReadTimeout:        30,
			WriteTimeout:       60,
			IdleTimeout:        120,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "browserlog",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 3600,
			ConnMaxIdleTime: 300,
		},
		Ingest: IngestConfig{
			Path:         "/receiver",
			SecretHeader: "X-Receiver-Secret",
			FailureDir:   "unparsed_logs",
			MaxBodyBytes: 32 << 20,
		},
	}
}

// listKeys hold comma separated values in the environment.
var listKeys = map[string]bool{
	"events.brokers":              true,
	"server.cors_allowed_origins": true,
}

// envKeyValue maps COLLECTOR_A__B to a.b and splits list values.
func envKeyValue(name, value string) (string, interface{}) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(name, EnvPrefix)), "__", ".")
	if !listKeys[key] {
		return key, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return key, items
}

// Load reads the configuration from COLLECTOR_* environment variables on top
// of Default and validates it.
func Load() (*Config, error) {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil)
	if err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	mainConfig := Default()
	if err := k.Unmarshal("", mainConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(mainConfig); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	if mainConfig.Observability == nil {
		mainConfig.Observability = DefaultObservabilityConfig()
	}
	if mainConfig.Observability.ServiceName == "" {
		mainConfig.Observability.ServiceName = "browserlog"
	}
	mainConfig.Observability.Environment = mainConfig.Primary.Env

	if err := mainConfig.Observability.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	return mainConfig, nil
}
