package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the YAML file read by Load when no path is given.
var ConfigPath = defaultConfigPath()

func defaultConfigPath() string {
	if v := strings.TrimSpace(os.Getenv("CONFIG_PATH")); v != "" {
		return v
	}
	return "config.yaml"
}

const (
	defaultPort           = "10000"
	defaultSessionTTL     = "8h"
	defaultMaxUploadBytes = 10 << 20
	defaultCORSOrigin     = "http://localhost:5173"
)

// FileConfig represents configuration loaded from YAML and the environment.
type FileConfig struct {
	Port                     string   `yaml:"port"`
	LogLevel                 string   `yaml:"logLevel"`
	DatabaseURL              string   `yaml:"databaseURL"`
	JWTSecret                string   `yaml:"jwtSecret"`
	SessionTTL               string   `yaml:"sessionTTL"`
	RedisAddr                string   `yaml:"redisAddr"`
	RedisPassword            string   `yaml:"redisPassword"`
	CORSAllowedOrigins       []string `yaml:"corsAllowedOrigins"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
	SignupRateLimitPerMinute int      `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	MaxUploadBytes           int64    `yaml:"maxUploadBytes"`
	MinioEndpoint            string   `yaml:"minioEndpoint"`
	MinioAccessKey           string   `yaml:"minioAccessKey"`
	MinioSecretKey           string   `yaml:"minioSecretKey"`
	MinioBucket              string   `yaml:"minioBucket"`
	MinioUseSSL              bool     `yaml:"minioUseSSL"`
	AMQPURL                  string   `yaml:"amqpURL"`
	AMQPExchange             string   `yaml:"amqpExchange"`
	EventsStream             string   `yaml:"eventsStream"`
}

// Load reads path (ConfigPath when empty), applies environment overrides and
// defaults, then validates. A missing file is not an error.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	str := map[string]*string{
		"PORT":             &cfg.Port,
		"LOG_LEVEL":        &cfg.LogLevel,
		"DATABASE_URL":     &cfg.DatabaseURL,
		"JWT_SECRET":       &cfg.JWTSecret,
		"SESSION_TTL":      &cfg.SessionTTL,
		"REDIS_ADDR":       &cfg.RedisAddr,
		"REDIS_PASSWORD":   &cfg.RedisPassword,
		"MINIO_ENDPOINT":   &cfg.MinioEndpoint,
		"MINIO_ACCESS_KEY": &cfg.MinioAccessKey,
		"MINIO_SECRET_KEY": &cfg.MinioSecretKey,
		"MINIO_BUCKET":     &cfg.MinioBucket,
		"AMQP_URL":         &cfg.AMQPURL,
		"AMQP_EXCHANGE":    &cfg.AMQPExchange,
		"EVENTS_STREAM":    &cfg.EventsStream,
	}
	for key, dst := range str {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	ints := map[string]*int{
		"SIGNUP_RATE_LIMIT_PER_MINUTE": &cfg.SignupRateLimitPerMinute,
		"LOGIN_RATE_LIMIT_PER_MINUTE":  &cfg.LoginRateLimitPerMinute,
	}
	for key, dst := range ints {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s must be an integer: %w", key, err)
			}
			*dst = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MAX_UPLOAD_BYTES")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MAX_UPLOAD_BYTES must be an integer: %w", err)
		}
		cfg.MaxUploadBytes = n
	}
	if v := strings.TrimSpace(os.Getenv("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL must be a boolean: %w", err)
		}
		cfg.MinioUseSSL = b
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{defaultCORSOrigin}
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set JWT_SECRET)")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("config: port %q is not a number", cfg.Port)
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if cfg.MinioEndpoint != "" && cfg.MinioBucket == "" {
		return errors.New("config: minioBucket is required when minioEndpoint is set (set MINIO_BUCKET)")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseSessionTTL parses the token lifetime. Empty means the 8h default.
func ParseSessionTTL(ttlStr string) (time.Duration, error) {
	if ttlStr == "" {
		ttlStr = defaultSessionTTL
	}
	dur, err := time.ParseDuration(ttlStr)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("invalid sessionTTL duration: %s must be positive", ttlStr)
	}
	return dur, nil
}
