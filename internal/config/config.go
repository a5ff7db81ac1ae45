package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rpggio/tasktrellis/internal/domain/task"
	"github.com/rpggio/tasktrellis/internal/filestore"
	"github.com/rpggio/tasktrellis/internal/maintenance"
	"github.com/rpggio/tasktrellis/internal/similarity"
	"gopkg.in/yaml.v3"
)

const envPrefix = "TASKTRELLIS_"

// Config defines server configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Transport   TransportConfig   `yaml:"transport"`
	Data        DataConfig        `yaml:"data"`
	Activity    ActivityConfig    `yaml:"activity"`
	Log         LogConfig         `yaml:"log"`
	Auth        AuthConfig        `yaml:"auth"`
	Store       StoreConfig       `yaml:"store"`
	Watch       WatchConfig       `yaml:"watch"`
	Similarity  SimilarityConfig  `yaml:"similarity"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type TransportConfig struct {
	// Mode is "stdio" or "http".
	Mode string `yaml:"mode"`
}

type DataConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

type ActivityConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
}

type StoreConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`
	WriteDelay      time.Duration `yaml:"write_delay"`
}

type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

type SimilarityConfig struct {
	Provider    string        `yaml:"provider"`
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Timeout     time.Duration `yaml:"timeout"`
	Deadline    time.Duration `yaml:"deadline"`
	BatchSize   int           `yaml:"batch_size"`
	Concurrency int           `yaml:"concurrency"`
}

// MaintenanceConfig is the global stage configuration. Entries under
// projects override individual fields of it for one project.
type MaintenanceConfig struct {
	maintenance.Config `yaml:",inline"`
	Projects           map[string]yaml.Node `yaml:"projects"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8080},
		Transport: TransportConfig{Mode: "stdio"},
		Data:      DataConfig{Dir: "data", Format: string(filestore.FormatJSON)},
		Activity:  ActivityConfig{Enabled: true, DBPath: "data/activity.db"},
		Log:       LogConfig{Level: "info"},
		Store: StoreConfig{
			CacheTTL:        task.DefaultCacheTTL,
			CacheMaxEntries: task.DefaultCacheMaxEntries,
			WriteDelay:      task.DefaultWriteDelay,
		},
		Watch: WatchConfig{Enabled: true},
		Similarity: SimilarityConfig{
			Provider:    similarity.ProviderLocal,
			Timeout:     similarity.DefaultTimeout,
			Deadline:    similarity.DefaultDeadline,
			BatchSize:   similarity.DefaultBatchSize,
			Concurrency: similarity.DefaultConcurrency,
		},
		Maintenance: MaintenanceConfig{Config: maintenance.DefaultConfig()},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(envPrefix + "CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) error {
		v := os.Getenv(envPrefix + name)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = b
		return nil
	}

	str("SERVER_HOST", &cfg.Server.Host)
	if portStr := os.Getenv(envPrefix + "SERVER_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid %sSERVER_PORT: %w", envPrefix, err)
		}
		cfg.Server.Port = port
	}
	str("TRANSPORT", &cfg.Transport.Mode)
	str("DATA_DIR", &cfg.Data.Dir)
	str("DATA_FORMAT", &cfg.Data.Format)
	str("ACTIVITY_DB_PATH", &cfg.Activity.DBPath)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_PATH", &cfg.Log.Path)
	str("AUTH_TOKEN", &cfg.Auth.Token)
	str("SIMILARITY_PROVIDER", &cfg.Similarity.Provider)
	str("ORACLE_URL", &cfg.Similarity.URL)
	str("ORACLE_TOKEN", &cfg.Similarity.Token)
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Similarity.APIKey = key
	}

	if err := boolean("AUTH_ENABLED", &cfg.Auth.Enabled); err != nil {
		return err
	}
	return boolean("WATCH_ENABLED", &cfg.Watch.Enabled)
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Transport.Mode {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("transport.mode: unknown mode %q", c.Transport.Mode))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if strings.TrimSpace(c.Data.Dir) == "" {
		errs = append(errs, errors.New("data.dir is required"))
	}
	if _, err := filestore.ParseFormat(c.Data.Format); err != nil {
		errs = append(errs, fmt.Errorf("data.format: %w", err))
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		errs = append(errs, errors.New("auth.token is required when auth is enabled"))
	}
	if c.Store.CacheTTL < 0 || c.Store.CacheMaxEntries < 0 || c.Store.WriteDelay < 0 {
		errs = append(errs, errors.New("store settings must not be negative"))
	}
	switch c.Similarity.Provider {
	case similarity.ProviderLocal:
	case similarity.ProviderHTTP:
		if c.Similarity.URL == "" {
			errs = append(errs, errors.New("similarity.url is required for the http provider"))
		}
	case similarity.ProviderAnthropic:
		if c.Similarity.APIKey == "" {
			errs = append(errs, errors.New("similarity.api_key or ANTHROPIC_API_KEY is required for the anthropic provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("similarity.provider: unknown provider %q", c.Similarity.Provider))
	}
	if c.Similarity.Timeout < 0 || c.Similarity.Deadline < 0 || c.Similarity.BatchSize < 0 || c.Similarity.Concurrency < 0 {
		errs = append(errs, errors.New("similarity settings must not be negative"))
	}

	settings, err := c.Maintenance.Settings()
	if err != nil {
		errs = append(errs, err)
	} else if err := settings.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("maintenance: %w", err))
	}
	return errors.Join(errs...)
}

// Settings resolves the per-project overrides against the global stage
// configuration.
func (m MaintenanceConfig) Settings() (maintenance.Settings, error) {
	s := maintenance.Settings{Default: m.Config}
	if len(m.Projects) == 0 {
		return s, nil
	}
	s.Projects = make(map[string]maintenance.Config, len(m.Projects))
	for id, node := range m.Projects {
		override := m.Config
		if err := node.Decode(&override); err != nil {
			return maintenance.Settings{}, fmt.Errorf("maintenance.projects.%s: %w", id, err)
		}
		s.Projects[id] = override
	}
	return s, nil
}

// StoreOptions converts the store section to task.Service options.
func (c Config) StoreOptions() []task.Option {
	return []task.Option{
		task.WithCacheLimits(c.Store.CacheTTL, c.Store.CacheMaxEntries),
		task.WithWriteDelay(c.Store.WriteDelay),
	}
}

// ScorerConfig converts the similarity section for similarity.New.
func (c Config) ScorerConfig() similarity.Config {
	return similarity.Config{
		Provider:    c.Similarity.Provider,
		URL:         c.Similarity.URL,
		Token:       c.Similarity.Token,
		APIKey:      c.Similarity.APIKey,
		Model:       c.Similarity.Model,
		Timeout:     c.Similarity.Timeout,
		Deadline:    c.Similarity.Deadline,
		BatchSize:   c.Similarity.BatchSize,
		Concurrency: c.Similarity.Concurrency,
	}
}
