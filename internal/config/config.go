package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hanzoai/dbosgo/internal/secrets"
)

// Config holds the entire configuration for a dbosgo process (§6).
type Config struct {
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Executor      ExecutorConfig      `yaml:"executor" mapstructure:"executor"`
	RuntimeConfig RuntimeConfig       `yaml:"runtimeConfig" mapstructure:"runtimeConfig"`
	Admin         AdminConfig         `yaml:"admin" mapstructure:"admin"`
	Telemetry     TelemetryConfig     `yaml:"telemetry" mapstructure:"telemetry"`
	Secrets       secrets.Config      `yaml:"secrets" mapstructure:"secrets"`
	Application   map[string]any      `yaml:"application" mapstructure:"application"`
}

// DatabaseConfig configures the connections to both the application's own
// database (UDB) and the system database (SDB) (§6 "database.*").
type DatabaseConfig struct {
	Hostname       string `yaml:"hostname" mapstructure:"hostname"`
	Port           int    `yaml:"port" mapstructure:"port"`
	Username       string `yaml:"username" mapstructure:"username"`
	Password       string `yaml:"password" mapstructure:"password"`
	UserDatabase   string `yaml:"user_database" mapstructure:"user_database"`
	SystemDatabase string `yaml:"system_database" mapstructure:"system_database"` // default "<user_database>_dbos_sys"
	AppDBClient    string `yaml:"app_db_client" mapstructure:"app_db_client"`     // node-pg, knex, typeorm, prisma — out-of-core, recorded for parity
	SSLCA          string `yaml:"ssl_ca" mapstructure:"ssl_ca"`
	UDBMode        string `yaml:"udb_mode" mapstructure:"udb_mode"` // "postgres" or "sqlite"; sqlite for local dev/tests
}

// ExecutorConfig configures this process's executor identity and recovery
// behavior (§4.1, §6 DBOS__VMID/DBOS__APPVERSION).
type ExecutorConfig struct {
	ExecutorID          string        `yaml:"executor_id" mapstructure:"executor_id"`
	ApplicationVersion  string        `yaml:"application_version" mapstructure:"application_version"`
	MaxRecoveryAttempts int64         `yaml:"max_recovery_attempts" mapstructure:"max_recovery_attempts"`
	RecoveryLockTTL     time.Duration `yaml:"recovery_lock_ttl" mapstructure:"recovery_lock_ttl"`
	RecoveryInterval    time.Duration `yaml:"recovery_interval" mapstructure:"recovery_interval"`
}

// RuntimeConfig is the out-of-core launcher surface named in §6: the HTTP
// port an application exposes, and the entrypoint files the CLI imports to
// trigger workflow/transaction/communicator registration before Init.
type RuntimeConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	Entrypoints []string `yaml:"entrypoints" mapstructure:"entrypoints"`
}

// AdminConfig configures the admin HTTP surface (getWorkflows, cancelWorkflow,
// recoverPendingWorkflows, and the workflow-events websocket, §6).
type AdminConfig struct {
	Enabled bool       `yaml:"enabled" mapstructure:"enabled"`
	Port    int        `yaml:"port" mapstructure:"port"`
	CORS    CORSConfig `yaml:"cors" mapstructure:"cors"`
	Auth    AuthConfig `yaml:"auth" mapstructure:"auth"`
}

// CORSConfig configures the admin surface's cross-origin policy.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials" mapstructure:"allow_credentials"`
}

// AuthConfig guards the admin surface. Empty APIKey disables auth, matching
// local single-operator use.
type AuthConfig struct {
	APIKey    string   `yaml:"api_key" mapstructure:"api_key"`
	SkipPaths []string `yaml:"skip_paths" mapstructure:"skip_paths"`
}

// TelemetryConfig is named in §6 as out-of-core (exporter configuration);
// the core only needs to know whether to emit structured logs at debug
// level and where Prometheus should be scraped from.
type TelemetryConfig struct {
	LogLevel    string `yaml:"log_level" mapstructure:"log_level"`
	MetricsPort int    `yaml:"metrics_port" mapstructure:"metrics_port"`
}

// DefaultConfigPath is the default path for the dbosgo configuration file.
const DefaultConfigPath = "dbos.yaml"

// LoadConfig reads the configuration from the given path, or discovers it
// via viper's search-path convention (current directory, then ./config) if
// configPath is empty, matching the teacher's initConfig discovery pattern.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		discovered, err := discoverConfigPath()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", configPath, err)
	}

	// First unmarshal into a generic map so we can decode via mapstructure,
	// which supports time.Duration string parsing (e.g. "30s", "1m").
	var rawMap map[string]any
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", configPath, err)
	}

	cfg := defaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
		Result:           &cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(rawMap); err != nil {
		return nil, fmt.Errorf("failed to decode configuration from %s: %w", configPath, err)
	}

	if cfg.Database.SystemDatabase == "" && cfg.Database.UserDatabase != "" {
		cfg.Database.SystemDatabase = cfg.Database.UserDatabase + "_dbos_sys"
	}
	if cfg.Secrets.Provider == "" {
		cfg.Secrets = secrets.DefaultConfig()
	}

	applyEnvOverrides(&cfg)

	if err := resolveSecrets(&cfg); err != nil {
		return nil, fmt.Errorf("failed to resolve secrets: %w", err)
	}

	return &cfg, nil
}

// discoverConfigPath locates dbos.yaml by searching the current directory
// and ./config, matching the teacher's cobra.OnInitialize(initConfig)
// discovery pattern (AddConfigPath/SetConfigName/ReadInConfig).
func discoverConfigPath() (string, error) {
	v := viper.New()
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetConfigName(strings.TrimSuffix(filepath.Base(DefaultConfigPath), filepath.Ext(DefaultConfigPath)))
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("configuration file not found (searched . and ./config for %s): %w", DefaultConfigPath, err)
	}
	return v.ConfigFileUsed(), nil
}

// defaultConfig seeds the values §4.1/§6 name as defaults, so a config file
// that omits a section still produces a runnable Executor.
func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Hostname: "localhost",
			Port:     5432,
			Username: "postgres",
			UDBMode:  "postgres",
		},
		Executor: ExecutorConfig{
			ExecutorID:          "local",
			MaxRecoveryAttempts: 50,
			RecoveryLockTTL:     30 * time.Second,
			RecoveryInterval:    10 * time.Second,
		},
		RuntimeConfig: RuntimeConfig{Port: 3000},
		Admin:         AdminConfig{Enabled: true, Port: 3001},
		Telemetry:     TelemetryConfig{LogLevel: "info"},
	}
}

// applyEnvOverrides applies the environment variables named in §6: DBOS__VMID
// sets the executor identity, DBOS__APPVERSION sets the application version
// used for recovery partitioning, PGPASSWORD/DB_PASSWORD set the UDB
// credential, and DBOS_ADMIN_API_KEY sets the admin API key. Each variable
// that is set replaces the file's value; when both password variables are
// set, DB_PASSWORD wins.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DBOS__VMID"); v != "" {
		cfg.Executor.ExecutorID = v
	}
	if v := os.Getenv("DBOS__APPVERSION"); v != "" {
		cfg.Executor.ApplicationVersion = v
	}
	if v := os.Getenv("PGPASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DBOS_ADMIN_API_KEY"); v != "" {
		cfg.Admin.Auth.APIKey = v
	}
}

// resolveSecrets walks the sensitive config fields and resolves any that
// carry the "secret://" prefix through the configured secrets.Provider.
// Plain-text values (including those already set via env-var overrides)
// pass through unchanged.
func resolveSecrets(cfg *Config) error {
	provider, err := secrets.NewProvider(cfg.Secrets)
	if err != nil {
		return err
	}

	resolver := secrets.NewResolver(provider)
	ctx := context.Background()

	fields := []*string{
		&cfg.Database.Password,
		&cfg.Admin.Auth.APIKey,
	}

	for _, f := range fields {
		resolved, resolveErr := resolver.Resolve(ctx, *f)
		if resolveErr != nil {
			return resolveErr
		}
		*f = resolved
	}

	return nil
}
