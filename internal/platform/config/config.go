// Package config loads layered configuration: defaults, an optional YAML
// file, VCWALLET_* environment variables and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	envPrefix          = "VCWALLET_"
	delimiter          = "."
	listSeparator      = ","
	configFileFlag     = "configfile"
	defaultConfigFile  = "vcwallet.yaml"
	KeystoreModeRemote = "remote"
	KeystoreModeLocal  = "local"
)

// Config is the complete process configuration.
type Config struct {
	Server   Server         `koanf:"server"`
	Wallet   WalletConfig   `koanf:"wallet"`
	Issuance IssuanceConfig `koanf:"issuance"`
	Keystore KeystoreConfig `koanf:"keystore"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Log      LogConfig      `koanf:"log"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdowntimeout"`
}

// WalletConfig describes how issuers and devices reach this wallet.
type WalletConfig struct {
	// URL is the public base URL of this backend (jwks, placeholder logo).
	URL string `koanf:"url"`
	// ClientURL is the wallet front end that receives authorization redirects.
	ClientURL string `koanf:"clienturl"`
	// AppSecret verifies application tokens (HS256).
	AppSecret string `koanf:"appsecret"`
}

// IssuanceConfig tunes the issuance orchestrator.
type IssuanceConfig struct {
	PollInterval     time.Duration `koanf:"pollinterval"`
	HTTPTimeout      time.Duration `koanf:"httptimeout"`
	MetadataCacheTTL time.Duration `koanf:"metadatacachettl"`
}

// KeystoreConfig selects where signing happens.
type KeystoreConfig struct {
	Mode string `koanf:"mode"`
}

// DatabaseConfig configures PostgreSQL. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL          string        `koanf:"url"`
	MaxOpenConns int           `koanf:"maxopenconns"`
	MaxIdleConns int           `koanf:"maxidleconns"`
	ConnMaxIdle  time.Duration `koanf:"connmaxidle"`
}

// RedisConfig configures the shared metadata cache. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `koanf:"url"`
	PoolSize     int           `koanf:"poolsize"`
	MinIdleConns int           `koanf:"minidleconns"`
	DialTimeout  time.Duration `koanf:"dialtimeout"`
	ReadTimeout  time.Duration `koanf:"readtimeout"`
	WriteTimeout time.Duration `koanf:"writetimeout"`
}

// KafkaConfig configures the notification publisher. No brokers selects log delivery.
type KafkaConfig struct {
	Brokers           []string `koanf:"brokers"`
	NotificationTopic string   `koanf:"notificationtopic"`
	Partitions        int32    `koanf:"partitions"`
	ReplicationFactor int16    `koanf:"replicationfactor"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing else is supplied.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Wallet: WalletConfig{
			URL:       "http://localhost:8080",
			ClientURL: "http://localhost:3000/cb",
		},
		Issuance: IssuanceConfig{
			PollInterval:     2 * time.Second,
			HTTPTimeout:      30 * time.Second,
			MetadataCacheTTL: 5 * time.Minute,
		},
		Keystore: KeystoreConfig{Mode: KeystoreModeRemote},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			ConnMaxIdle:  5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			NotificationTopic: "wallet.notifications",
			Partitions:        1,
			ReplicationFactor: 1,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// FlagSet declares the command-line flags understood by Load.
func FlagSet() *pflag.FlagSet {
	d := Default()
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.String(configFileFlag, defaultConfigFile, "YAML config file; missing files are ignored")
	fs.String("server.addr", d.Server.Addr, "HTTP listen address")
	fs.String("wallet.url", d.Wallet.URL, "public base URL of this backend")
	fs.String("wallet.clienturl", d.Wallet.ClientURL, "wallet client redirect URL")
	fs.Duration("issuance.pollinterval", d.Issuance.PollInterval, "deferred credential polling interval")
	fs.String("keystore.mode", d.Keystore.Mode, "keystore mode: remote or local")
	fs.String("database.url", d.Database.URL, "PostgreSQL URL; empty keeps data in memory")
	fs.String("redis.url", d.Redis.URL, "Redis URL for the shared metadata cache")
	fs.StringSlice("kafka.brokers", d.Kafka.Brokers, "Kafka brokers for notifications")
	fs.String("log.level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log.format", d.Log.Format, "log format: json or text")
	return fs
}

// Load resolves the configuration from defaults, file, environment and flags.
// Later sources override earlier ones; flags only override when set explicitly.
func Load(flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(delimiter)

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if err := loadFromFile(k, configFilePath(flags)); err != nil {
		return Config{}, err
	}
	if err := loadFromEnv(k); err != nil {
		return Config{}, err
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, delimiter, k), nil); err != nil {
			return Config{}, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Wallet.AppSecret == "" {
		errs = append(errs, errors.New("wallet.appsecret is required"))
	}
	if c.Wallet.URL == "" {
		errs = append(errs, errors.New("wallet.url is required"))
	}
	if c.Issuance.PollInterval <= 0 {
		errs = append(errs, errors.New("issuance.pollinterval must be positive"))
	}
	switch c.Keystore.Mode {
	case KeystoreModeRemote, KeystoreModeLocal:
	default:
		errs = append(errs, fmt.Errorf("keystore.mode %q is not one of remote, local", c.Keystore.Mode))
	}
	return errors.Join(errs...)
}

func configFilePath(flags *pflag.FlagSet) string {
	if flags == nil {
		return ""
	}
	path, err := flags.GetString(configFileFlag)
	if err != nil {
		return ""
	}
	return path
}

func loadFromFile(k *koanf.Koanf, path string) error {
	if path == "" {
		return nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	return nil
}

func loadFromEnv(k *koanf.Koanf) error {
	provider := env.ProviderWithValue(envPrefix, delimiter, func(rawKey, rawValue string) (string, any) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(rawKey, envPrefix)), "_", delimiter)
		if strings.Contains(rawValue, listSeparator) {
			values := strings.Split(rawValue, listSeparator)
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			return key, values
		}
		return key, rawValue
	})
	if err := k.Load(provider, nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}
	return nil
}
