package app

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Falco0906/syncstream/internal/media"
	"github.com/Falco0906/syncstream/internal/storage"
)

const (
	envPrefix  = "SYNCSTREAM"
	configName = "syncstream"

	BackendLocal = "local"
	BackendS3    = "s3"
)

// Config is the full runtime configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
	Rooms     RoomsConfig     `mapstructure:"rooms"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Client    ClientConfig    `mapstructure:"client"`
}

// ServerConfig defines how the HTTP/WebSocket backend should run.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	WSPath    string `mapstructure:"ws_path"`
	PublicDir string `mapstructure:"public_dir"`
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

type UploadsConfig struct {
	Backend       string         `mapstructure:"backend"`
	Dir           string         `mapstructure:"dir"`
	URLPrefix     string         `mapstructure:"url_prefix"`
	MaxBytes      int64          `mapstructure:"max_bytes"`
	Retention     time.Duration  `mapstructure:"retention"`
	SweepInterval time.Duration  `mapstructure:"sweep_interval"`
	S3            media.S3Config `mapstructure:"s3"`
}

type RoomsConfig struct {
	MaxAge        time.Duration `mapstructure:"max_age"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Addr is the listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// LocalMedia is the disk store configuration for the local backend.
func (c UploadsConfig) LocalMedia() media.LocalConfig {
	return media.LocalConfig{BasePath: c.Dir, URLPrefix: c.URLPrefix}
}

// SetDefaults registers every key so environment overrides apply to all of them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.public_dir", "public")

	v.SetDefault("websocket.ping_interval", 54*time.Second)
	v.SetDefault("websocket.pong_wait", 60*time.Second)
	v.SetDefault("websocket.write_wait", 10*time.Second)
	v.SetDefault("websocket.max_message_size", 8192)

	v.SetDefault("uploads.backend", BackendLocal)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("uploads.url_prefix", "/uploads")
	v.SetDefault("uploads.max_bytes", 500<<20)
	v.SetDefault("uploads.retention", 24*time.Hour)
	v.SetDefault("uploads.sweep_interval", time.Hour)
	v.SetDefault("uploads.s3.endpoint", "")
	v.SetDefault("uploads.s3.region", "us-east-1")
	v.SetDefault("uploads.s3.bucket", "")
	v.SetDefault("uploads.s3.access_key_id", "")
	v.SetDefault("uploads.s3.secret_access_key", "")
	v.SetDefault("uploads.s3.use_path_style", false)
	v.SetDefault("uploads.s3.public_url", "")
	v.SetDefault("uploads.s3.presign_ttl", 24*time.Hour)

	v.SetDefault("rooms.max_age", 24*time.Hour)
	v.SetDefault("rooms.sweep_interval", time.Hour)

	v.SetDefault("ledger.dsn", storage.DefaultDSN)

	v.SetDefault("ratelimit.requests", 30)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("client.server_url", "ws://localhost:3000/ws")
	v.SetDefault("client.username", "")
}

// NewViper returns a viper instance with defaults, SYNCSTREAM_* environment
// overrides and, if found, a syncstream.yaml file. configFile overrides the
// search path.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", envPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.WSPath = NormalizeWSPath(cfg.Server.WSPath)
	cfg.Uploads.Backend = strings.ToLower(strings.TrimSpace(cfg.Uploads.Backend))
	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Uploads.Backend {
	case BackendLocal:
	case BackendS3:
		if c.Uploads.S3.Bucket == "" {
			errs = append(errs, errors.New("uploads.s3.bucket is required for the s3 backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown uploads.backend %q", c.Uploads.Backend))
	}
	if c.Uploads.MaxBytes <= 0 {
		errs = append(errs, errors.New("uploads.max_bytes must be positive"))
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("ratelimit.requests and ratelimit.window must be positive"))
	}
	if c.Rooms.SweepInterval <= 0 || c.Uploads.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep intervals must be positive"))
	}
	return errors.Join(errs...)
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls back
// to /ws when empty.
func NormalizeWSPath(path string) string {
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
