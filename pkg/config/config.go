package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	// Database (optional; empty disables persistence)
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Cache
	CacheBackend    string `mapstructure:"CACHE_BACKEND"` // "memory" or "redis"
	RedisURL        string `mapstructure:"REDIS_URL"`
	CacheTTLMinutes int    `mapstructure:"CACHE_TTL_MINUTES"`

	// CORS
	CorsOrigins []string `mapstructure:"CORS_ORIGINS"`

	// nflverse sources
	ScheduleURL   string `mapstructure:"SCHEDULE_URL"`
	PBPReleaseURL string `mapstructure:"PBP_RELEASE_URL"`

	// Board defaults
	DefaultSeason int `mapstructure:"DEFAULT_SEASON"`
	DefaultWeek   int `mapstructure:"DEFAULT_WEEK"`

	// Provider adapters
	ESPNEnabled         bool     `mapstructure:"ESPN_ENABLED"`
	ESPNAPIKey          string   `mapstructure:"ESPN_API_KEY"`
	PFFEnabled          bool     `mapstructure:"PFF_ENABLED"`
	PFFAPIKey           string   `mapstructure:"PFF_API_KEY"`
	SportsDataIOEnabled bool     `mapstructure:"SPORTSDATAIO_ENABLED"`
	SportsDataIOAPIKey  string   `mapstructure:"SPORTSDATAIO_API_KEY"`
	ProviderOrder       []string `mapstructure:"PROVIDER_ORDER"`

	// Edge model knobs
	EdgeWeightQB      float64 `mapstructure:"EDGE_WEIGHT_QB"`
	EdgeWeightRB      float64 `mapstructure:"EDGE_WEIGHT_RB"`
	EdgeWeightWR      float64 `mapstructure:"EDGE_WEIGHT_WR"`
	EdgeWeightTE      float64 `mapstructure:"EDGE_WEIGHT_TE"`
	EdgeWeightOL      float64 `mapstructure:"EDGE_WEIGHT_OL"`
	QBCoverageShare   float64 `mapstructure:"QB_COVERAGE_SHARE"`
	RBRunDefenseShare float64 `mapstructure:"RB_RUND_SHARE"`
	TECoverageLBShare float64 `mapstructure:"TE_COVLB_SHARE"`
	OLPassProShare    float64 `mapstructure:"OL_PASS_SHARE"`
	TrenchDepStrength float64 `mapstructure:"TRENCH_DEP_STRENGTH"`
	CloseMargin       float64 `mapstructure:"CLOSE_MARGIN"`

	// Background refresh
	RefreshCron string `mapstructure:"REFRESH_CRON"`

	// HTTP limits
	ExternalAPITimeout   time.Duration `mapstructure:"EXTERNAL_API_TIMEOUT"`
	RefreshRatePerMinute int           `mapstructure:"REFRESH_RATE_PER_MINUTE"`
}

// ProviderSetting is one adapter's toggle and credential as configured
type ProviderSetting struct {
	Name    string
	Enabled bool
	APIKey  string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")

	// Set defaults
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("ENV", "development")
	viper.SetDefault("DATABASE_URL", "")
	viper.SetDefault("CACHE_BACKEND", "memory")
	viper.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	viper.SetDefault("CACHE_TTL_MINUTES", 360)
	viper.SetDefault("CORS_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("SCHEDULE_URL", "https://raw.githubusercontent.com/nflverse/nflfastR-data/master/data/schedules.csv.gz")
	viper.SetDefault("PBP_RELEASE_URL", "https://github.com/nflverse/nflfastR-data/releases/download")
	viper.SetDefault("DEFAULT_SEASON", 2025)
	viper.SetDefault("DEFAULT_WEEK", 3)
	viper.SetDefault("ESPN_ENABLED", false)
	viper.SetDefault("ESPN_API_KEY", "")
	viper.SetDefault("PFF_ENABLED", false)
	viper.SetDefault("PFF_API_KEY", "")
	viper.SetDefault("SPORTSDATAIO_ENABLED", false)
	viper.SetDefault("SPORTSDATAIO_API_KEY", "")
	viper.SetDefault("PROVIDER_ORDER", "espn,pff,sportsdataio")
	viper.SetDefault("EDGE_WEIGHT_QB", 1.2)
	viper.SetDefault("EDGE_WEIGHT_RB", 0.7)
	viper.SetDefault("EDGE_WEIGHT_WR", 1.1)
	viper.SetDefault("EDGE_WEIGHT_TE", 0.6)
	viper.SetDefault("EDGE_WEIGHT_OL", 1.1)
	viper.SetDefault("QB_COVERAGE_SHARE", 0.6)
	viper.SetDefault("RB_RUND_SHARE", 0.65)
	viper.SetDefault("TE_COVLB_SHARE", 0.55)
	viper.SetDefault("OL_PASS_SHARE", 0.6)
	viper.SetDefault("TRENCH_DEP_STRENGTH", 1.0)
	viper.SetDefault("CLOSE_MARGIN", 0.15)
	viper.SetDefault("REFRESH_CRON", "0 */6 * * *")
	viper.SetDefault("EXTERNAL_API_TIMEOUT", "30s")
	viper.SetDefault("REFRESH_RATE_PER_MINUTE", 10)

	// Read from environment
	viper.AutomaticEnv()

	// Read config file if exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Parse CORS origins from comma-separated string
	if corsStr := viper.GetString("CORS_ORIGINS"); corsStr != "" {
		config.CorsOrigins = strings.Split(corsStr, ",")
	}

	// Parse provider merge order from comma-separated string
	if orderStr := viper.GetString("PROVIDER_ORDER"); orderStr != "" {
		config.ProviderOrder = nil
		for _, name := range strings.Split(orderStr, ",") {
			if name = strings.TrimSpace(strings.ToLower(name)); name != "" {
				config.ProviderOrder = append(config.ProviderOrder, name)
			}
		}
	}

	return &config, nil
}

// ProviderSettings returns the adapters in configured merge order. Enabled
// providers with an empty key stay listed so the adapter can surface its
// credential error instead of the toggle silently hiding it.
func (c *Config) ProviderSettings() []ProviderSetting {
	byName := map[string]ProviderSetting{
		"espn":         {Name: "espn", Enabled: c.ESPNEnabled, APIKey: c.ESPNAPIKey},
		"pff":          {Name: "pff", Enabled: c.PFFEnabled, APIKey: c.PFFAPIKey},
		"sportsdataio": {Name: "sportsdataio", Enabled: c.SportsDataIOEnabled, APIKey: c.SportsDataIOAPIKey},
	}
	var settings []ProviderSetting
	for _, name := range c.ProviderOrder {
		if s, ok := byName[name]; ok {
			settings = append(settings, s)
		}
	}
	return settings
}

// ProviderCredentials returns the API key for a provider and whether the
// provider is enabled. An enabled provider with an empty key is still
// reported enabled; the adapter decides what missing credentials mean.
func (c *Config) ProviderCredentials(name string) (apiKey string, enabled bool) {
	for _, s := range c.ProviderSettings() {
		if s.Name == name {
			return s.APIKey, s.Enabled
		}
	}
	return "", false
}

// EnabledProviders returns the enabled provider names in merge order.
func (c *Config) EnabledProviders() []string {
	var names []string
	for _, s := range c.ProviderSettings() {
		if s.Enabled {
			names = append(names, s.Name)
		}
	}
	return names
}

// CacheTTL returns the dataset/provider cache lifetime
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMinutes) * time.Minute
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
