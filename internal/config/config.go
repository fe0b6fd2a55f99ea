// Package config loads the service configuration from an optional file and
// the environment. Nested keys map to upper-case variables with "." replaced
// by "_" (db.host -> DB_HOST, encryption.key -> ENCRYPTION_KEY).
package config

import (
	"errors"
	"fmt"
	"marketchat/backend/internal/codec"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Replay policies applied when a stored row cannot be decrypted during join.
const (
	ReplaySkip  = "skip"
	ReplayAbort = "abort"
)

const (
	// Server
	defaultPort                = "3000"
	defaultShutdownGracePeriod = 10 * time.Second
	defaultEnv                 = "development"
	defaultLogLevel            = "info"

	// Database
	defaultDBDriver        = "postgres"
	defaultDBHost          = "localhost"
	defaultDBPort          = "5432"
	defaultDBSSLMode       = "disable"
	defaultMaxOpenConns    = 50
	defaultMaxIdleConns    = 10
	defaultConnMaxLifetime = 30 * time.Minute

	// Redis
	defaultRedisChannel = "chat:messages"

	// Chat
	defaultStorageTimeout = 5 * time.Second
	defaultStorageRetries = 3
	defaultRetryBackoff   = 100 * time.Millisecond
	defaultSendBuffer     = 256

	// Auth
	defaultTokenTTL = 72 * time.Hour
)

var defaultAllowedOrigins = []string{"http://localhost:5173"}

// ErrMissingKey is returned when no encryption key is configured.
var ErrMissingKey = errors.New("ENCRYPTION_KEY is not set")

// Config captures the runtime parameters of the chat service.
type Config struct {
	Env        string           `mapstructure:"env"`
	Log        LogConfig        `mapstructure:"log"`
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Chat       ChatConfig       `mapstructure:"chat"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ServerConfig struct {
	Port                string        `mapstructure:"port"`
	AllowedOrigins      []string      `mapstructure:"allowed_origins"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`
}

// DatabaseConfig selects the GORM dialector and sizes the shared pool.
// DSN, when set, wins over the individual connection fields.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig enables cross-instance fanout when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type EncryptionConfig struct {
	RawKey    string `mapstructure:"key"`
	Algorithm string `mapstructure:"algorithm"`

	// Key is the decoded RawKey, filled by Load.
	Key Secret `mapstructure:"-"`
}

type ChatConfig struct {
	ReplayPolicy   string        `mapstructure:"replay_policy"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout"`
	StorageRetries int           `mapstructure:"storage_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	SendBuffer     int           `mapstructure:"send_buffer"`
	// LocalesDir overrides the bundled translations when set.
	LocalesDir     string        `mapstructure:"locales_dir"`
}

// AuthConfig turns on JWT checks for WebSocket upgrades when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// Secret holds key material and refuses to print it.
type Secret []byte

func (Secret) String() string   { return "[REDACTED]" }
func (Secret) GoString() string { return "[REDACTED]" }

// Load reads configuration from the provided file path (if any) and the
// environment. A missing or malformed encryption key is an error: the
// service must not start without one.
func Load(path string) (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Server.AllowedOrigins = cleanList(cfg.Server.AllowedOrigins)
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	cfg.Chat.ReplayPolicy = strings.ToLower(strings.TrimSpace(cfg.Chat.ReplayPolicy))
	if cfg.Chat.StorageRetries < 1 {
		cfg.Chat.StorageRetries = 1
	}
	if cfg.Chat.SendBuffer < 1 {
		cfg.Chat.SendBuffer = defaultSendBuffer
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	key, err := codec.ParseKey(cfg.Encryption.RawKey)
	if err != nil {
		if strings.TrimSpace(cfg.Encryption.RawKey) == "" {
			return Config{}, ErrMissingKey
		}
		return Config{}, fmt.Errorf("encryption.key: %w", err)
	}
	cfg.Encryption.Key = key
	cfg.Encryption.RawKey = ""

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// AuthEnabled reports whether WebSocket connections must present a token.
func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func (c Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.Database.Driver)
	}
	switch c.Chat.ReplayPolicy {
	case ReplaySkip, ReplayAbort:
	default:
		return fmt.Errorf("chat.replay_policy must be %q or %q, got %q", ReplaySkip, ReplayAbort, c.Chat.ReplayPolicy)
	}
	switch c.Encryption.Algorithm {
	case codec.AlgorithmAESGCM, codec.AlgorithmXChaCha20Poly1305:
	default:
		return fmt.Errorf("unsupported encryption.algorithm %q", c.Encryption.Algorithm)
	}
	if c.Chat.StorageTimeout <= 0 {
		return fmt.Errorf("chat.storage_timeout must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", defaultEnv)
	v.SetDefault("log.level", defaultLogLevel)

	v.SetDefault("server.port", defaultPort)
	v.SetDefault("server.allowed_origins", defaultAllowedOrigins)
	v.SetDefault("server.shutdown_grace_period", defaultShutdownGracePeriod)

	v.SetDefault("db.driver", defaultDBDriver)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", defaultDBHost)
	v.SetDefault("db.port", defaultDBPort)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "")
	v.SetDefault("db.sslmode", defaultDBSSLMode)
	v.SetDefault("db.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("db.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("db.conn_max_lifetime", defaultConnMaxLifetime)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", defaultRedisChannel)

	v.SetDefault("encryption.key", "")
	v.SetDefault("encryption.algorithm", codec.AlgorithmAESGCM)

	v.SetDefault("chat.replay_policy", ReplaySkip)
	v.SetDefault("chat.storage_timeout", defaultStorageTimeout)
	v.SetDefault("chat.storage_retries", defaultStorageRetries)
	v.SetDefault("chat.retry_backoff", defaultRetryBackoff)
	v.SetDefault("chat.send_buffer", defaultSendBuffer)
	v.SetDefault("chat.locales_dir", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", defaultTokenTTL)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
