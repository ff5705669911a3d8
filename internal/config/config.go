// Package config layers configuration the way the teacher does (a local
// .env file plus environment variables) generalized with viper so the CLI
// can also take settings from flags or a config file, with the same
// precedence order (flag > env > config file > default) for every key.
package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"optiinfra/pkginstall/internal/store"
)

// Config is the resolved settings surface for every pkginstall verb.
type Config struct {
	DataDir     string
	LogLevel    string
	Environment string

	ListenAddr string // serve verb's HTTP listen address
	RedisAddr  string // optional progress event bus; empty disables it

	InlineSnapshotCapBytes int64 // file_copy snapshot inlining threshold
	BlobDir                string
}

// Load resolves configuration from (in ascending precedence) defaults, an
// optional config file, environment variables prefixed PKGINSTALL_, and
// bound command-line flags. A local .env file only supplies variables not
// already set in the environment.
func Load(flags *pflag.FlagSet) (*Config, error) {
	godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("pkginstall")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", store.DefaultDataDir())
	v.SetDefault("log-level", "info")
	v.SetDefault("environment", "development")
	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("redis-addr", "")
	v.SetDefault("inline-snapshot-cap-bytes", int64(8*1024*1024))
	v.SetDefault("blob-dir", "")

	v.SetConfigName("pkginstall")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/pkginstall")
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DataDir:                v.GetString("data-dir"),
		LogLevel:               v.GetString("log-level"),
		Environment:            v.GetString("environment"),
		ListenAddr:             v.GetString("listen-addr"),
		RedisAddr:              v.GetString("redis-addr"),
		InlineSnapshotCapBytes: v.GetInt64("inline-snapshot-cap-bytes"),
		BlobDir:                v.GetString("blob-dir"),
	}
	if cfg.BlobDir == "" {
		cfg.BlobDir = cfg.DataDir + "/blobs"
	}
	return cfg, nil
}
