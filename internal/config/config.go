// Package config loads server and client configuration from defaults, an
// optional YAML file and CHAT_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before merging. Double
// underscore separates nesting levels so keys may themselves contain a single
// underscore: CHAT_SERVER__JWT_SECRET becomes server.jwt_secret.
const EnvPrefix = "CHAT_"

type Config struct {
	Server ServerConfig `koanf:"server"`
	Client ClientConfig `koanf:"client"`
	Log    LogConfig    `koanf:"log"`
}

type ServerConfig struct {
	Addr      string `koanf:"addr"`
	DSN       string `koanf:"dsn"`
	JWTSecret string `koanf:"jwt_secret"`
	RedisAddr string `koanf:"redis_addr"`
}

type ClientConfig struct {
	ServerURL string `koanf:"server_url"`
	LogFile   string `koanf:"log_file"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:      ":8080",
			RedisAddr: "", // empty disables cross-instance fan-out
		},
		Client: ClientConfig{
			ServerURL: "http://localhost:8080",
			LogFile:   "chat.log",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only the
// default file locations are tried; a missing file is not an error.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	cfg := defaults()

	if path == "" {
		for _, p := range []string{"config.yaml", "config.yml"} {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return cfg, fmt.Errorf("loading environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
