// Package config loads and validates prerender configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/prerender/internal/browser"
	"github.com/JakeFAU/prerender/internal/logging"
	"github.com/JakeFAU/prerender/internal/route"
	"github.com/JakeFAU/prerender/internal/staticserver"
)

// EnvPrefix namespaces environment overrides, e.g. PRERENDER_SERVER_PORT.
const EnvPrefix = "PRERENDER"

// Config captures every run setting loaded via Viper.
type Config struct {
	Output   OutputConfig   `mapstructure:"output"`
	Server   ServerConfig   `mapstructure:"server"`
	Routes   []string       `mapstructure:"routes"`
	Browser  browser.Config `mapstructure:"browser"`
	Logging  logging.Config `mapstructure:"logging"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Publish  PublishConfig  `mapstructure:"publish"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// OutputConfig locates the pre-built site.
type OutputConfig struct {
	Dir          string `mapstructure:"dir"`
	RootDocument string `mapstructure:"root_document"`
}

// ServerConfig controls the local static server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ManifestConfig controls the run report.
type ManifestConfig struct {
	Path string `mapstructure:"path"`
}

// PublishConfig enables the bucket mirror and the completion event.
type PublishConfig struct {
	GCSBucket     string `mapstructure:"gcs_bucket"`
	GCSPrefix     string `mapstructure:"gcs_prefix"`
	CacheControl  string `mapstructure:"cache_control"`
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// MetricsConfig enables pushing run metrics to a Pushgateway.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// Load builds a Config from an optional file plus the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a Config from an already prepared Viper.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults registers every key so environment overrides resolve even
// without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output.dir", "dist")
	v.SetDefault("output.root_document", staticserver.DefaultRootDocument)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 4173)
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("routes", route.DefaultPaths)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.viewport_width", 1920)
	v.SetDefault("browser.viewport_height", 1080)
	v.SetDefault("browser.nav_timeout", "30s")
	v.SetDefault("browser.idle_window", "500ms")
	v.SetDefault("browser.settle_delay", "2s")
	v.SetDefault("browser.ready_expression", "")
	v.SetDefault("browser.ready_timeout", "10s")
	v.SetDefault("browser.workers", 1)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("manifest.path", "")
	v.SetDefault("publish.gcs_bucket", "")
	v.SetDefault("publish.gcs_prefix", "")
	v.SetDefault("publish.cache_control", "no-cache")
	v.SetDefault("publish.pubsub_project", "")
	v.SetDefault("publish.pubsub_topic", "")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job", "prerender")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, errors.New("output.dir must be set"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be within 0-65535, got %d", c.Server.Port))
	}
	if _, err := c.RouteList(); err != nil {
		errs = append(errs, fmt.Errorf("routes: %w", err))
	}
	if c.Browser.Workers <= 0 {
		errs = append(errs, errors.New("browser.workers must be > 0"))
	}
	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		errs = append(errs, errors.New("browser viewport dimensions must be > 0"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("browser.nav_timeout must be > 0"))
	}
	if c.Browser.IdleWindow <= 0 {
		errs = append(errs, errors.New("browser.idle_window must be > 0"))
	}
	if c.Browser.SettleDelay < 0 {
		errs = append(errs, errors.New("browser.settle_delay must be >= 0"))
	}
	if c.Browser.ReadyExpression != "" && c.Browser.ReadyTimeout <= 0 {
		errs = append(errs, errors.New("browser.ready_timeout must be > 0 when a ready expression is set"))
	}
	if c.Publish.GCSPrefix != "" && c.Publish.GCSBucket == "" {
		errs = append(errs, errors.New("publish.gcs_prefix requires publish.gcs_bucket"))
	}
	if (c.Publish.PubSubTopic == "") != (c.Publish.PubSubProject == "") {
		errs = append(errs, errors.New("publish.pubsub_project and publish.pubsub_topic must be set together"))
	}
	if c.Metrics.PushgatewayURL != "" && c.Metrics.Job == "" {
		errs = append(errs, errors.New("metrics.job must be set when metrics.pushgateway_url is set"))
	}
	return errors.Join(errs...)
}

// RouteList parses the configured routes.
func (c Config) RouteList() (route.List, error) {
	return route.ParseList(c.Routes)
}
