package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cache backends for the thumbnail store tier.
const (
	CacheBackendNone  = "none"
	CacheBackendDir   = "dir"
	CacheBackendRedis = "redis"
)

// Settings holds non-secret preferences read from config.yaml and
// OPENMARKET_* environment variables.
type Settings struct {
	PerPage   int               `mapstructure:"per_page"`
	MaxPages  int               `mapstructure:"max_pages"`
	Thumbnail ThumbnailSettings `mapstructure:"thumbnail"`
	Cache     CacheSettings     `mapstructure:"cache"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type ThumbnailSettings struct {
	Capacity     int `mapstructure:"capacity"`
	MaxDimension int `mapstructure:"max_dimension"`
	Concurrency  int `mapstructure:"concurrency"`
}

type CacheSettings struct {
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

var settingsDefaults = map[string]any{
	"per_page":                20,
	"max_pages":               50,
	"thumbnail.capacity":      256,
	"thumbnail.max_dimension": 0,
	"thumbnail.concurrency":   4,
	"cache.backend":           CacheBackendDir,
	"cache.redis_url":         "",
	"cache.ttl":               24 * time.Hour,
}

// SettingsDir returns the directory holding config.yaml.
func SettingsDir() string {
	if dir := strings.TrimSpace(os.Getenv("OPENMARKET_CONFIG_DIR")); dir != "" {
		return dir
	}
	if dir, err := userConfigDir(); err == nil && strings.TrimSpace(dir) != "" {
		return filepath.Join(dir, serviceName)
	}
	return filepath.Join(os.TempDir(), serviceName)
}

// LoadSettings reads config.yaml from dir (SettingsDir when empty). A missing
// file is not an error; defaults and environment variables still apply.
func LoadSettings(dir string) (Settings, error) {
	if dir == "" {
		dir = SettingsDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("OPENMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range settingsDefaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config: %w", err)
	}
	s.File = v.ConfigFileUsed()
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate rejects values the client cannot work with.
func (s Settings) Validate() error {
	if s.PerPage < 1 || s.PerPage > 100 {
		return fmt.Errorf("per_page must be between 1 and 100, got %d", s.PerPage)
	}
	if s.MaxPages < 1 {
		return fmt.Errorf("max_pages must be positive, got %d", s.MaxPages)
	}
	if s.Thumbnail.Capacity < 1 {
		return fmt.Errorf("thumbnail.capacity must be positive, got %d", s.Thumbnail.Capacity)
	}
	if s.Thumbnail.MaxDimension < 0 {
		return fmt.Errorf("thumbnail.max_dimension must not be negative, got %d", s.Thumbnail.MaxDimension)
	}
	switch s.Cache.Backend {
	case CacheBackendNone, CacheBackendDir:
	case CacheBackendRedis:
		if strings.TrimSpace(s.Cache.RedisURL) == "" {
			return errors.New("cache.redis_url is required when cache.backend is redis")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q (use none, dir or redis)", s.Cache.Backend)
	}
	return nil
}

// LoadDotEnv loads ~/.openmarket/.env into the process environment.
// Variables that are already set win. A missing file is ignored.
func LoadDotEnv() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	path := filepath.Join(home, ".openmarket", ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// ReadEnvFile parses a dotenv file into an Account. Host is optional.
func ReadEnvFile(path string) (Account, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return Account{}, fmt.Errorf("failed to read env file: %w", err)
	}
	account := Account{
		Host:       strings.TrimSpace(vars[envHost]),
		Identifier: strings.TrimSpace(vars[envIdentifier]),
		Secret:     strings.TrimSpace(vars[envSecret]),
	}
	if account.Identifier == "" || account.Secret == "" {
		return Account{}, fmt.Errorf("env file must define %s and %s", envIdentifier, envSecret)
	}
	return account, nil
}
