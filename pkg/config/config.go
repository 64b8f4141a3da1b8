package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config holds all application configuration.
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Build  BuildConfig  `mapstructure:"build"`
	Server ServerConfig `mapstructure:"server"`
	Store  StoreConfig  `mapstructure:"store"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type BuildConfig struct {
	Input       string `mapstructure:"input"`
	OutputDir   string `mapstructure:"output_dir"`
	TileZoom    int    `mapstructure:"tile_zoom"`
	Workers     int    `mapstructure:"workers"`
	BBox        string `mapstructure:"bbox"` // minLat,minLng,maxLat,maxLng
	Verify      bool   `mapstructure:"verify"`
	MetricsFile string `mapstructure:"metrics_file"` // relative to OutputDir unless absolute; empty disables
}

// Bound parses BBox. An empty BBox yields the zero bound (no filter).
func (b BuildConfig) Bound() (orb.Bound, error) {
	if b.BBox == "" {
		return orb.Bound{}, nil
	}
	var minLat, minLng, maxLat, maxLng float64
	if _, err := fmt.Sscanf(b.BBox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng); err != nil {
		return orb.Bound{}, fmt.Errorf("build.bbox %q: expected minLat,minLng,maxLat,maxLng: %w", b.BBox, err)
	}
	if minLat >= maxLat || minLng >= maxLng {
		return orb.Bound{}, fmt.Errorf("build.bbox %q: min must be below max", b.BBox)
	}
	return orb.Bound{Min: orb.Point{minLng, minLat}, Max: orb.Point{maxLng, maxLat}}, nil
}

type ServerConfig struct {
	Port          int    `mapstructure:"port"`
	ReadTimeout   int    `mapstructure:"read_timeout"`
	WriteTimeout  int    `mapstructure:"write_timeout"`
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	CORSOrigin    string `mapstructure:"cors_origin"`
}

type StoreConfig struct {
	TileDir   string `mapstructure:"tile_dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("build.input", "")
	v.SetDefault("build.output_dir", "tiles")
	v.SetDefault("build.tile_zoom", 12)
	v.SetDefault("build.workers", runtime.NumCPU())
	v.SetDefault("build.bbox", "")
	v.SetDefault("build.verify", false)
	v.SetDefault("build.metrics_file", "build_metrics.prom")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.max_concurrent", 100)
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("store.tile_dir", "tiles")
	v.SetDefault("store.cache_size", 256)
}

// Load reads configuration from defaults, a config file and environment
// variables, in increasing order of precedence. If path is empty,
// tile_router.yaml is looked up in . and ./configs and may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("tile_router")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	// Environment variables: TILE_ROUTER_STORE_TILE_DIR → store.tile_dir
	v.SetEnvPrefix("TILE_ROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that configuration values are sane. It reports every
// violation, not just the first.
func (c *Config) Validate() error {
	var err error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			err = multierr.Append(err, fmt.Errorf(format, args...))
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	check(c.Log.Format == "json" || c.Log.Format == "console",
		"log.format must be json or console, got %q", c.Log.Format)

	check(c.Build.TileZoom >= 1 && c.Build.TileZoom <= 20, "build.tile_zoom must be 1-20, got %d", c.Build.TileZoom)
	check(c.Build.Workers >= 1, "build.workers must be positive, got %d", c.Build.Workers)
	check(c.Build.OutputDir != "", "build.output_dir is required")
	if _, bboxErr := c.Build.Bound(); bboxErr != nil {
		err = multierr.Append(err, bboxErr)
	}

	check(c.Server.Port > 0 && c.Server.Port <= 65535, "server.port must be 1-65535, got %d", c.Server.Port)
	check(c.Server.ReadTimeout > 0, "server.read_timeout must be positive, got %d", c.Server.ReadTimeout)
	check(c.Server.WriteTimeout > 0, "server.write_timeout must be positive, got %d", c.Server.WriteTimeout)
	check(c.Server.MaxConcurrent > 0, "server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)

	check(c.Store.TileDir != "", "store.tile_dir is required")
	check(c.Store.CacheSize > 0, "store.cache_size must be positive, got %d", c.Store.CacheSize)

	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
