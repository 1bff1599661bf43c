package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddress   string
	BaseURL         string
	FileStoragePath string
	DatabaseDSN     string
	GRPCAddress     string
	JWTSecret       string
	LinkTTL         time.Duration
	RateLimit       int
	RedisAddr       string
	LogLevel        string
	QRServiceURL    string

	// TrustedProxies lists proxy IPs or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Other peers are identified by socket address.
	TrustedProxies []string

	ClickBatchSize     int
	ClickFlushInterval time.Duration
	SweepInterval      time.Duration
	ShutdownTimeout    time.Duration

	// ExpiredRetention is how long expired links are kept, and reported as
	// expired, before the sweeper deletes them.
	ExpiredRetention time.Duration
}

// fileConfig mirrors Config for JSON and YAML config files. Durations use
// time.ParseDuration syntax such as "720h".
type fileConfig struct {
	ServerAddress      *string  `json:"server_address" yaml:"server_address"`
	BaseURL            *string  `json:"base_url" yaml:"base_url"`
	FileStoragePath    *string  `json:"file_storage_path" yaml:"file_storage_path"`
	DatabaseDSN        *string  `json:"database_dsn" yaml:"database_dsn"`
	GRPCAddress        *string  `json:"grpc_address" yaml:"grpc_address"`
	JWTSecret          *string  `json:"jwt_secret" yaml:"jwt_secret"`
	LinkTTL            *string  `json:"link_ttl" yaml:"link_ttl"`
	RateLimit          *int     `json:"rate_limit" yaml:"rate_limit"`
	RedisAddr          *string  `json:"redis_addr" yaml:"redis_addr"`
	LogLevel           *string  `json:"log_level" yaml:"log_level"`
	QRServiceURL       *string  `json:"qr_service_url" yaml:"qr_service_url"`
	TrustedProxies     []string `json:"trusted_proxies" yaml:"trusted_proxies"`
	ClickBatchSize     *int     `json:"click_batch_size" yaml:"click_batch_size"`
	ClickFlushInterval *string  `json:"click_flush_interval" yaml:"click_flush_interval"`
	SweepInterval      *string  `json:"sweep_interval" yaml:"sweep_interval"`
	ExpiredRetention   *string  `json:"expired_retention" yaml:"expired_retention"`
	ShutdownTimeout    *string  `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		ServerAddress:      ":8080",
		BaseURL:            "http://localhost:8080",
		FileStoragePath:    getDefaultStoragePath(),
		JWTSecret:          "shortlinks-secret-key",
		LinkTTL:            720 * time.Hour,
		RateLimit:          60,
		LogLevel:           "info",
		QRServiceURL:       "https://api.qrserver.com/v1/create-qr-code/",
		ClickBatchSize:     100,
		ClickFlushInterval: time.Second,
		SweepInterval:      time.Minute,
		ExpiredRetention:   7 * 24 * time.Hour,
		ShutdownTimeout:    10 * time.Second,
	}
}

// NewConfig builds the configuration from defaults, an optional config file
// (-c or CONFIG), command line flags and environment variables, in increasing
// order of priority. A .env file in the working directory is loaded first.
func NewConfig() (*Config, error) {
	cfg := Default()

	var configPath string
	flag.StringVar(&configPath, "c", "", "Path to a JSON or YAML config file")
	flag.StringVar(&cfg.ServerAddress, "a", cfg.ServerAddress, "HTTP server address (e.g. localhost:8888)")
	flag.StringVar(&cfg.BaseURL, "b", cfg.BaseURL, "Base URL for shortened URLs (e.g. http://localhost:8000)")
	flag.StringVar(&cfg.FileStoragePath, "f", cfg.FileStoragePath, "Path to file storage")
	flag.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "Database DSN: postgres://..., file:links.db, libsql://...")
	flag.StringVar(&cfg.GRPCAddress, "g", cfg.GRPCAddress, "gRPC server address, empty to disable")
	flag.StringVar(&cfg.JWTSecret, "k", cfg.JWTSecret, "Secret for signing auth cookies")
	flag.DurationVar(&cfg.LinkTTL, "t", cfg.LinkTTL, "Lifetime of new short links, 0 for no expiry")
	flag.IntVar(&cfg.RateLimit, "r", cfg.RateLimit, "Shorten requests allowed per client per minute, 0 to disable")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for shared rate limiting")
	flag.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "Log level (debug, info, warn, error)")
	flag.StringVar(&cfg.QRServiceURL, "qr", cfg.QRServiceURL, "QR code rendering service URL")
	flag.Func("trusted-proxies", "Comma-separated proxy IPs or CIDRs allowed to set X-Forwarded-For", func(v string) error {
		cfg.TrustedProxies = splitList(v)
		return nil
	})

	flag.Parse()

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if configPath == "" {
		configPath = os.Getenv("CONFIG")
	}
	if configPath != "" {
		fc, err := readFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := fc.apply(cfg, set); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	fc := &fileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, fc)
	default:
		err = json.Unmarshal(data, fc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc, nil
}

// apply copies values from the file into cfg unless the matching flag was set.
func (fc *fileConfig) apply(cfg *Config, flagSet map[string]bool) error {
	setString := func(flagName string, src *string, dst *string) {
		if src != nil && !flagSet[flagName] {
			*dst = *src
		}
	}
	setString("a", fc.ServerAddress, &cfg.ServerAddress)
	setString("b", fc.BaseURL, &cfg.BaseURL)
	setString("f", fc.FileStoragePath, &cfg.FileStoragePath)
	setString("d", fc.DatabaseDSN, &cfg.DatabaseDSN)
	setString("g", fc.GRPCAddress, &cfg.GRPCAddress)
	setString("k", fc.JWTSecret, &cfg.JWTSecret)
	setString("redis", fc.RedisAddr, &cfg.RedisAddr)
	setString("l", fc.LogLevel, &cfg.LogLevel)
	setString("qr", fc.QRServiceURL, &cfg.QRServiceURL)

	if fc.RateLimit != nil && !flagSet["r"] {
		cfg.RateLimit = *fc.RateLimit
	}
	if fc.ClickBatchSize != nil {
		cfg.ClickBatchSize = *fc.ClickBatchSize
	}
	if fc.TrustedProxies != nil && !flagSet["trusted-proxies"] {
		cfg.TrustedProxies = fc.TrustedProxies
	}

	durations := []struct {
		flagName string
		key      string
		src      *string
		dst      *time.Duration
	}{
		{"t", "link_ttl", fc.LinkTTL, &cfg.LinkTTL},
		{"", "click_flush_interval", fc.ClickFlushInterval, &cfg.ClickFlushInterval},
		{"", "sweep_interval", fc.SweepInterval, &cfg.SweepInterval},
		{"", "expired_retention", fc.ExpiredRetention, &cfg.ExpiredRetention},
		{"", "shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.src == nil || flagSet[d.flagName] {
			continue
		}
		parsed, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func applyEnv(cfg *Config) error {
	stringVars := map[string]*string{
		"SERVER_ADDRESS":    &cfg.ServerAddress,
		"BASE_URL":          &cfg.BaseURL,
		"FILE_STORAGE_PATH": &cfg.FileStoragePath,
		"DATABASE_DSN":      &cfg.DatabaseDSN,
		"GRPC_ADDRESS":      &cfg.GRPCAddress,
		"JWT_SECRET":        &cfg.JWTSecret,
		"REDIS_ADDR":        &cfg.RedisAddr,
		"LOG_LEVEL":         &cfg.LogLevel,
		"QR_SERVICE_URL":    &cfg.QRServiceURL,
	}
	for key, dst := range stringVars {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"RATE_LIMIT":       &cfg.RateLimit,
		"CLICK_BATCH_SIZE": &cfg.ClickBatchSize,
	}
	for key, dst := range ints {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = n
		}
	}

	durations := map[string]*time.Duration{
		"LINK_TTL":             &cfg.LinkTTL,
		"CLICK_FLUSH_INTERVAL": &cfg.ClickFlushInterval,
		"SWEEP_INTERVAL":       &cfg.SweepInterval,
		"EXPIRED_RETENTION":    &cfg.ExpiredRetention,
		"SHUTDOWN_TIMEOUT":     &cfg.ShutdownTimeout,
	}
	for key, dst := range durations {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			*dst = d
		}
	}

	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getDefaultStoragePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "links.jsonl"
	}
	return filepath.Join(homeDir, ".shortlinks", "links.jsonl")
}
