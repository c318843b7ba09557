package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Tracking   TrackingConfig   `mapstructure:"tracking"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Resolution ResolutionConfig `mapstructure:"resolution"`
	HostLms    []HostLmsConfig  `mapstructure:"host_lms"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
}

// TrackingConfig holds tracking-poller configuration
type TrackingConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	CallTimeout  time.Duration `mapstructure:"call_timeout"`
}

// WorkflowConfig holds workflow engine configuration
type WorkflowConfig struct {
	// RenewalTriggerEnabled gates the renewal transition consortium-wide.
	RenewalTriggerEnabled bool `mapstructure:"renewal_trigger_enabled"`
	// MaxTransitionsPerChain bounds one ProgressAll chain as a loop guard.
	MaxTransitionsPerChain int `mapstructure:"max_transitions_per_chain"`
}

// ResolutionConfig holds supplier-resolution configuration
type ResolutionConfig struct {
	// SortPolicy is "ratio" (loan/borrow-ratio balancing then availability)
	// or "availability".
	SortPolicy string `mapstructure:"sort_policy"`
}

// HostLmsConfig describes one host library system reachable by the broker.
type HostLmsConfig struct {
	Code    string        `mapstructure:"code"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Override with environment variables
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	// Database defaults
	viper.SetDefault("database.path", "data/dcb.db")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	viper.SetDefault("database.migrations_dir", "migrations")

	// Tracking defaults
	viper.SetDefault("tracking.enabled", true)
	viper.SetDefault("tracking.poll_interval", 30*time.Second)
	viper.SetDefault("tracking.batch_size", 50)
	viper.SetDefault("tracking.call_timeout", 10*time.Second)

	// Workflow defaults
	viper.SetDefault("workflow.renewal_trigger_enabled", false)
	viper.SetDefault("workflow.max_transitions_per_chain", 25)

	// Resolution defaults
	viper.SetDefault("resolution.sort_policy", "ratio")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.output_path", "stdout")
	viper.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars() {
	viper.BindEnv("database.path", "DCB_DATABASE_PATH")
	viper.BindEnv("server.port", "DCB_SERVER_PORT")
	viper.BindEnv("logger.level", "DCB_LOG_LEVEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Tracking.PollInterval <= 0 {
		return fmt.Errorf("tracking.poll_interval must be positive")
	}
	if c.Workflow.MaxTransitionsPerChain <= 0 {
		return fmt.Errorf("workflow.max_transitions_per_chain must be positive")
	}
	switch c.Resolution.SortPolicy {
	case "ratio", "availability":
	default:
		return fmt.Errorf("resolution.sort_policy must be ratio or availability")
	}
	for i, h := range c.HostLms {
		if h.Code == "" {
			return fmt.Errorf("host_lms[%d].code is required", i)
		}
		if h.BaseURL == "" {
			return fmt.Errorf("host_lms[%d].base_url is required", i)
		}
	}
	return nil
}
