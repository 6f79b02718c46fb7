package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for postshot
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Browser   BrowserConfig   `mapstructure:"browser"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Dedup     DedupConfig     `mapstructure:"dedup"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug bool `mapstructure:"debug"`
}

// TelegramConfig contains bot settings
type TelegramConfig struct {
	Token          string        `mapstructure:"token"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

func (t TelegramConfig) Validate() error {
	if strings.TrimSpace(t.Token) == "" {
		return fmt.Errorf("telegram.token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if t.MaxConcurrency <= 0 {
		return fmt.Errorf("telegram.max_concurrency must be > 0")
	}
	return nil
}

// BrowserConfig controls how the headless browser is launched
type BrowserConfig struct {
	ExecPath       string `mapstructure:"exec_path"`
	Headless       bool   `mapstructure:"headless"`
	DisableGPU     bool   `mapstructure:"disable_gpu"`
	NoSandbox      bool   `mapstructure:"no_sandbox"`
	ViewportWidth  int    `mapstructure:"viewport_width"`
	ViewportHeight int    `mapstructure:"viewport_height"`
	UserAgent      string `mapstructure:"user_agent"`
}

// Normalize applies defaults for unset browser values.
func (b BrowserConfig) Normalize() BrowserConfig {
	b.ExecPath = strings.TrimSpace(b.ExecPath)
	if b.ExecPath == "" {
		b.ExecPath = strings.TrimSpace(os.Getenv("CHROME_PATH"))
	}
	if b.ViewportWidth <= 0 {
		b.ViewportWidth = 500
	}
	if b.ViewportHeight <= 0 {
		b.ViewportHeight = 3000
	}
	return b
}

func (b BrowserConfig) Validate() error {
	if b.ViewportWidth <= 0 || b.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", b.ViewportWidth, b.ViewportHeight)
	}
	return nil
}

// CaptureConfig controls the capture pipeline
type CaptureConfig struct {
	Selector     string        `mapstructure:"selector"`
	WaitStrategy string        `mapstructure:"wait_strategy"` // poll or fixed
	RenderWait   time.Duration `mapstructure:"render_wait"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Format       string        `mapstructure:"format"` // png or jpeg
	JPEGQuality  int           `mapstructure:"jpeg_quality"`
}

func (c CaptureConfig) Normalize() CaptureConfig {
	c.WaitStrategy = strings.ToLower(strings.TrimSpace(c.WaitStrategy))
	if c.WaitStrategy == "" {
		c.WaitStrategy = "poll"
	}
	c.Format = strings.ToLower(strings.TrimSpace(c.Format))
	if c.Format == "" {
		c.Format = "png"
	}
	if c.Format == "jpg" {
		c.Format = "jpeg"
	}
	return c
}

func (c CaptureConfig) Validate() error {
	if strings.TrimSpace(c.Selector) == "" {
		return fmt.Errorf("capture.selector is required")
	}
	switch c.WaitStrategy {
	case "poll", "fixed":
	default:
		return fmt.Errorf("capture.wait_strategy must be poll or fixed, got %q", c.WaitStrategy)
	}
	switch c.Format {
	case "png", "jpeg":
	default:
		return fmt.Errorf("capture.format must be png or jpeg, got %q", c.Format)
	}
	if c.RenderWait < 0 {
		return fmt.Errorf("capture.render_wait cannot be negative")
	}
	if c.WaitStrategy == "poll" && c.PollInterval <= 0 {
		return fmt.Errorf("capture.poll_interval must be > 0 for the poll strategy")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("capture.timeout cannot be negative")
	}
	if c.Format == "jpeg" && (c.JPEGQuality < 1 || c.JPEGQuality > 100) {
		return fmt.Errorf("capture.jpeg_quality must be within 1..100")
	}
	return nil
}

// DedupConfig selects where per-chat forward timestamps live
type DedupConfig struct {
	Backend string        `mapstructure:"backend"` // memory or redis
	TTL     time.Duration `mapstructure:"ttl"`
}

func (d DedupConfig) Validate() error {
	switch d.Backend {
	case "memory", "redis":
		return nil
	default:
		return fmt.Errorf("dedup.backend must be memory or redis, got %q", d.Backend)
	}
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Validate() error {
	if strings.TrimSpace(r.Host) == "" {
		return fmt.Errorf("storage.redis.host required")
	}
	if strings.TrimSpace(r.Port) == "" {
		return fmt.Errorf("storage.redis.port required")
	}
	return nil
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// TelemetryConfig contains telemetry and monitoring settings
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	MetricsPort  int    `mapstructure:"metrics_port"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

func (t TelemetryConfig) Validate() error {
	if t.MetricsPort < 0 {
		return fmt.Errorf("telemetry.metrics_port cannot be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("telegram.poll_timeout", 60*time.Second)
	v.SetDefault("telegram.max_concurrency", 4)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.viewport_width", 500)
	v.SetDefault("browser.viewport_height", 3000)
	v.SetDefault("capture.selector", ".tgme_widget_message_bubble")
	v.SetDefault("capture.wait_strategy", "poll")
	v.SetDefault("capture.render_wait", 5*time.Second)
	v.SetDefault("capture.poll_interval", 250*time.Millisecond)
	v.SetDefault("capture.timeout", 45*time.Second)
	v.SetDefault("capture.format", "png")
	v.SetDefault("capture.jpeg_quality", 90)
	v.SetDefault("dedup.backend", "memory")
	v.SetDefault("dedup.ttl", 7*24*time.Hour)
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", 5*time.Second)
	v.SetDefault("server.address", ":10001")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.metrics_port", 0)
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// Load reads config from path, or searches the usual locations when path is
// empty. A missing file in search mode is not an error: defaults and
// POSTSHOT_* environment variables are enough to run.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("POSTSHOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// TELEGRAM_BOT_TOKEN is accepted for compatibility with existing deployments
	_ = v.BindEnv("telegram.token", "POSTSHOT_TELEGRAM_TOKEN", "TELEGRAM_BOT_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Browser = cfg.Browser.Normalize()
	cfg.Capture = cfg.Capture.Normalize()
	cfg.Dedup.Backend = strings.ToLower(strings.TrimSpace(cfg.Dedup.Backend))

	if err := cfg.Browser.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Capture.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Dedup.Validate(); err != nil {
		return nil, err
	}
	if cfg.Dedup.Backend == "redis" {
		if err := cfg.Storage.Redis.Validate(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
