package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            int     `envconfig:"PORT" default:"8080"`
	DatabaseURL     string  `envconfig:"DATABASE_URL"` // empty keeps snapshots in memory
	AssetDir        string  `envconfig:"ASSET_DIR" default:"./data/assets"`
	AllowedOrigins  string  `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:3000"`
	ZoomMin         float64 `envconfig:"ZOOM_MIN" default:"10"`
	ZoomMax         float64 `envconfig:"ZOOM_MAX" default:"200"`
	HistoryLimit    int     `envconfig:"HISTORY_LIMIT" default:"200"` // 0 keeps every entry
	ExportMaxPixels int     `envconfig:"EXPORT_MAX_PIXELS" default:"16777216"`
	LogLevel        string  `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.ZoomMin <= 0 || c.ZoomMax < c.ZoomMin {
		return fmt.Errorf("invalid zoom bounds [%v, %v]", c.ZoomMin, c.ZoomMax)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("invalid history limit %d", c.HistoryLimit)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Origins returns the allowed browser origins.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// OriginHosts returns the hosts of the allowed origins, the form the
// WebSocket upgrader matches against.
func (c *Config) OriginHosts() []string {
	var out []string
	for _, o := range c.Origins() {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		} else {
			out = append(out, o)
		}
	}
	return out
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
