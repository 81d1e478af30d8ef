// Package config loads skywatch's YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/news"
	"github.com/abelbrown/skywatch/internal/poll"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	API       API       `yaml:"api"`
	Poll      Poll      `yaml:"poll"`
	Feed      Feed      `yaml:"feed"`
	Alerts    Alerts    `yaml:"alerts"`
	Chat      Chat      `yaml:"chat"`
	News      News      `yaml:"news"`
	History   History   `yaml:"history"`
	Logging   Logging   `yaml:"logging"`
	Devserver Devserver `yaml:"devserver"`
}

type API struct {
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// Poll holds the cadence of every polled source.
type Poll struct {
	ISS          Cadence `yaml:"iss"`
	JWSTStatus   Cadence `yaml:"jwst_status"`
	Analytics    Cadence `yaml:"analytics"`
	SpaceWeather Cadence `yaml:"space_weather"`
	News         Cadence `yaml:"news"`
}

// Cadence is either an exact delay or a cron expression. In YAML it may
// be a mapping ({every: 5s} or {cron: "*/15 * * * *"}) or a bare scalar,
// which is read as a duration when it parses as one and as cron otherwise.
type Cadence struct {
	Every time.Duration `yaml:"every,omitempty"`
	Cron  string        `yaml:"cron,omitempty"`
}

func (c *Cadence) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = Cadence{}
		if d, err := time.ParseDuration(node.Value); err == nil {
			c.Every = d
		} else {
			c.Cron = node.Value
		}
		return nil
	}
	type plain Cadence
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Cadence(p)
	return nil
}

// Schedule turns the cadence into something the poll scheduler runs.
func (c Cadence) Schedule() (poll.Cadence, error) {
	switch {
	case c.Every > 0 && c.Cron != "":
		return nil, errors.New("set either every or cron, not both")
	case c.Every > 0:
		return poll.Every(c.Every), nil
	case c.Cron != "":
		s, err := cron.ParseStandard(c.Cron)
		if err != nil {
			return nil, fmt.Errorf("cron %q: %w", c.Cron, err)
		}
		return s, nil
	}
	return nil, errors.New("no cadence set")
}

func (c Cadence) String() string {
	if c.Cron != "" {
		return c.Cron
	}
	return c.Every.String()
}

type Feed struct {
	PageSize int    `yaml:"page_size"`
	Scope    string `yaml:"scope"`
	Category string `yaml:"category"`
}

type Alerts struct {
	Limit      int  `yaml:"limit"`
	UnreadOnly bool `yaml:"unread_only"`
}

type Chat struct {
	FallbackMessage string `yaml:"fallback_message"`
}

type News struct {
	Feeds []news.Feed `yaml:"feeds"`
}

type History struct {
	MaxPositions int `yaml:"max_positions"`
}

type Logging struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type Devserver struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		API: API{
			BaseURL:       "http://localhost:8000/api",
			Timeout:       15 * time.Second,
			RatePerSecond: 10,
			Burst:         5,
		},
		Poll: Poll{
			ISS:          Cadence{Every: 5 * time.Second},
			JWSTStatus:   Cadence{Every: 30 * time.Second},
			Analytics:    Cadence{Every: 90 * time.Second},
			SpaceWeather: Cadence{Every: 5 * time.Minute},
			News:         Cadence{Cron: "*/15 * * * *"},
		},
		Feed:      Feed{PageSize: 12, Scope: string(api.ScopeBoth)},
		Alerts:    Alerts{Limit: 20},
		Chat:      Chat{FallbackMessage: "Sorry, I encountered an error. Please try again."},
		News:      News{Feeds: defaultFeeds()},
		History:   History{MaxPositions: 720},
		Logging:   Logging{Level: "info"},
		Devserver: Devserver{Addr: "127.0.0.1:8000"},
	}
}

func defaultFeeds() []news.Feed {
	return []news.Feed{
		{Name: "NASA", URL: "https://www.nasa.gov/news-release/feed/"},
		{Name: "Space.com", URL: "https://www.space.com/feeds/all"},
		{Name: "ESA Science", URL: "https://www.esa.int/rssfeed/Our_Activities/Space_Science"},
	}
}

// ConfigDir returns the XDG config directory for skywatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "skywatch")
}

// LogDir returns the default log directory.
func LogDir() string {
	return filepath.Join(homeDir(), ".skywatch", "logs")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/skywatch/config.yaml > ./config.yaml.
// An empty path with a nil error means "use defaults".
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}
	return "", nil
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// LoadResolved resolves the config path, loads it (or the defaults), then
// applies environment overrides and validates. It returns the path used,
// empty when running on defaults.
func LoadResolved(explicit string) (*Config, string, error) {
	path, err := ResolveConfigPath(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg := DefaultConfig()
	if path != "" {
		if cfg, err = Load(path); err != nil {
			return nil, path, err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// parse parses YAML bytes into a Config, applying defaults first.
func parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from SKYWATCH_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SKYWATCH_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("SKYWATCH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks every value the components will rely on.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if _, err := api.ParseScope(c.Feed.Scope); err != nil {
		errs = append(errs, fmt.Errorf("feed.scope: %w", err))
	}
	if c.Feed.PageSize <= 0 {
		errs = append(errs, errors.New("feed.page_size must be positive"))
	}
	for name, cad := range c.Poll.named() {
		if _, err := cad.Schedule(); err != nil {
			errs = append(errs, fmt.Errorf("poll.%s: %w", name, err))
		}
	}
	for i, f := range c.News.Feeds {
		if f.URL == "" {
			errs = append(errs, fmt.Errorf("news.feeds[%d]: url is required", i))
		}
	}
	return errors.Join(errs...)
}

func (p Poll) named() map[string]Cadence {
	return map[string]Cadence{
		"iss":           p.ISS,
		"jwst_status":   p.JWSTStatus,
		"analytics":     p.Analytics,
		"space_weather": p.SpaceWeather,
		"news":          p.News,
	}
}

// WriteDefault writes the embedded default config to path, refusing to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, DefaultConfigYAML, 0o644)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
