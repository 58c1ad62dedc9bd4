package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		Server     ServerConfig     `yaml:"server"`
		Database   DatabaseConfig   `yaml:"database"`
		JWT        JWTConfig        `yaml:"jwt"`
		Logger     LoggerConfig     `yaml:"logger"`
		Session    SessionConfig    `yaml:"session"`
		Pagination PaginationConfig `yaml:"pagination"`
		CORS       CORSConfig       `yaml:"cors"`
		Uploads    UploadsConfig    `yaml:"uploads"`
		Metrics    MetricsConfig    `yaml:"metrics"`
		Tracing    TracingConfig    `yaml:"tracing"`
		I18n       I18nConfig       `yaml:"i18n"`
		Seed       SeedConfig       `yaml:"seed"`
	}

	ServerConfig struct {
		Addr            string        `yaml:"addr"`
		Mode            string        `yaml:"mode"` // debug, release, test
		Version         string        `yaml:"version"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		Web             bool          `yaml:"web"` // server-rendered UI on /
	}

	// DatabaseConfig represents the database configuration
	DatabaseConfig struct {
		Type           string `yaml:"type"` // postgres, mysql, sqlite
		DSN            string `yaml:"dsn"`  // wins over the discrete fields when set
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		User           string `yaml:"user"`
		Password       string `yaml:"password"`
		DBName         string `yaml:"dbname"`
		SSLMode        string `yaml:"sslmode"`
		MigrationsPath string `yaml:"migrations_path"`
		AutoMigrate    bool   `yaml:"auto_migrate"`
	}

	JWTConfig struct {
		Secret string        `yaml:"secret"`
		TTL    time.Duration `yaml:"ttl"`
	}

	// LoggerConfig represents the logger configuration
	LoggerConfig struct {
		Level      string `yaml:"level"`       // debug, info, warn, error
		Format     string `yaml:"format"`      // json, console
		Output     string `yaml:"output"`      // stdout, file
		FilePath   string `yaml:"file_path"`   // path to log file when output is file
		MaxSize    int    `yaml:"max_size"`    // MB
		MaxBackups int    `yaml:"max_backups"` // number of rotated files kept
		MaxAge     int    `yaml:"max_age"`     // days
		Compress   bool   `yaml:"compress"`
		Color      bool   `yaml:"color"`
		Stacktrace bool   `yaml:"stacktrace"`
		TimeFormat string `yaml:"time_format"`
	}

	SessionConfig struct {
		Type       string        `yaml:"type"` // memory, redis
		CookieName string        `yaml:"cookie_name"`
		TTL        time.Duration `yaml:"ttl"`
		Secure     bool          `yaml:"secure"`
		Redis      RedisConfig   `yaml:"redis"`
	}

	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	}

	PaginationConfig struct {
		DefaultLimit int `yaml:"default_limit"`
		MaxLimit     int `yaml:"max_limit"`
	}

	CORSConfig struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	}

	UploadsConfig struct {
		Dir            string `yaml:"dir"`
		MaxAvatarBytes int64  `yaml:"max_avatar_bytes"`
	}

	MetricsConfig struct {
		Enabled   bool      `yaml:"enabled"`
		Namespace string    `yaml:"namespace"`
		Buckets   []float64 `yaml:"buckets"` // histogram buckets in seconds
	}

	TracingConfig struct {
		Enabled     bool   `yaml:"enabled"`
		Endpoint    string `yaml:"endpoint"`
		Protocol    string `yaml:"protocol"` // http, grpc
		Insecure    bool   `yaml:"insecure"`
		ServiceName string `yaml:"service_name"`
	}

	I18nConfig struct {
		DefaultLang string `yaml:"default_lang"`
	}

	SeedConfig struct {
		AdminEmail      string `yaml:"admin_email"`
		AdminPassword   string `yaml:"admin_password"`
		SuperAdminEmail string `yaml:"super_admin_email"`
		SuperPassword   string `yaml:"super_admin_password"`
	}
)

var envPattern = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a YAML file, expands ${VAR:default} placeholders and applies defaults.
func Load(path string) (*Config, error) {
	// .env opsional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse is Load without touching the filesystem.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(resolveEnv(data), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveEnv replaces environment variable placeholders in YAML content
func resolveEnv(content []byte) []byte {
	return envPattern.ReplaceAllFunc(content, func(match []byte) []byte {
		m := envPattern.FindSubmatch(match)
		if v, ok := os.LookupEnv(string(m[1])); ok {
			return []byte(v)
		}
		if len(m) > 2 {
			return m[2]
		}
		return nil
	})
}

func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.Server.Version == "" {
		c.Server.Version = "1.0.0"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.Type == "" {
		c.Database.Type = "postgres"
	}
	if c.Database.MigrationsPath == "" {
		c.Database.MigrationsPath = "migrations"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 24 * time.Hour
	}

	if c.Session.Type == "" {
		c.Session.Type = "memory"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "ecoenergy_session"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 14 * 24 * time.Hour
	}
	if c.Session.Redis.Prefix == "" {
		c.Session.Redis.Prefix = "ecoenergy:session:"
	}

	if c.Pagination.DefaultLimit <= 0 {
		c.Pagination.DefaultLimit = 10
	}
	if c.Pagination.MaxLimit <= 0 {
		c.Pagination.MaxLimit = 1000
		// fallback lama: env MAX_LIMIT
		if v, err := strconv.Atoi(os.Getenv("MAX_LIMIT")); err == nil && v > 0 {
			c.Pagination.MaxLimit = v
		}
	}

	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}

	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "media"
	}
	if c.Uploads.MaxAvatarBytes <= 0 {
		c.Uploads.MaxAvatarBytes = 2 * 1024 * 1024
	}

	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ecoenergy"
	}

	if c.Tracing.Protocol == "" {
		c.Tracing.Protocol = "http"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "ecoenergy-api"
	}

	if c.I18n.DefaultLang == "" {
		c.I18n.DefaultLang = "es"
	}
}

func (c *Config) Validate() error {
	switch c.Database.Type {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	switch c.Session.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported session store type: %s", c.Session.Type)
	}
	if c.Session.Type == "redis" && c.Session.Redis.Addr == "" {
		return errors.New("session.redis.addr is required for redis sessions")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	return nil
}

// GetDSN returns the connection string for the configured database type.
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch c.Type {
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			c.User, c.Password, c.Host, c.Port, c.DBName)
	case "sqlite":
		return c.DBName
	default:
		return ""
	}
}
