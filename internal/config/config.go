// Package config loads the YAML configuration file and applies ERRORHUB_*
// environment overrides on top of it.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"cdr.dev/slog/v3"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/errorhub/internal/domain/envelope"
	mysqlp "github.com/bryanwahyu/errorhub/internal/infra/db/mysql"
	"github.com/bryanwahyu/errorhub/internal/infra/db/postgres"
)

const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		IdleTimeout  time.Duration `yaml:"idleTimeout"`
		// CORSOrigins are the browser origins allowed to post envelopes.
		CORSOrigins []string `yaml:"corsOrigins"`
		RateLimit   struct {
			Requests int           `yaml:"requests"`
			Window   time.Duration `yaml:"window"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Database struct {
		Driver     string `yaml:"driver"`
		Path       string `yaml:"path"`
		Host       string `yaml:"host"`
		Port       int    `yaml:"port"`
		User       string `yaml:"user"`
		Password   string `yaml:"password"`
		Name       string `yaml:"name"`
		SSLMode    string `yaml:"sslmode"`
		MaxRetries uint64 `yaml:"maxRetries"`
	} `yaml:"database"`

	// Minio is optional; attachments are stored inline without it.
	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Ingest struct {
		// Keys are accepted for every scope. With no keys at all ingestion
		// is open.
		Keys                 []string           `yaml:"keys"`
		ScopeKeys            map[int64][]string `yaml:"scopeKeys"`
		MaxBodyBytes         int64              `yaml:"maxBodyBytes"`
		MaxDecompressedBytes int64              `yaml:"maxDecompressedBytes"`
	} `yaml:"ingest"`

	Grouping struct {
		Normalize bool `yaml:"normalize"`
	} `yaml:"grouping"`

	Admin struct {
		APIKeys []string `yaml:"apiKeys"`
	} `yaml:"admin"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Scopes []Scope `yaml:"scopes"`
}

// Scope is seeded into the database at startup.
type Scope struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// Default returns the configuration used for absent keys.
func Default() *Config {
	var cfg Config
	cfg.Server.Port = 8000
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Server.RateLimit.Window = time.Minute
	cfg.Database.Driver = DriverSQLite
	cfg.Database.Path = "errorhub.db"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxRetries = 5
	cfg.Minio.BucketName = "errorhub-attachments"
	cfg.Ingest.MaxBodyBytes = 20 << 20
	cfg.Ingest.MaxDecompressedBytes = envelope.DefaultMaxDecompressed
	cfg.Grouping.Normalize = true
	cfg.Log.Level = "info"
	cfg.Log.Format = "human"
	cfg.Scopes = []Scope{{ID: 1, Name: "default"}}
	return &cfg
}

// Load reads the file at path. An empty path yields the defaults. Environment
// overrides are applied in both cases.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, xerrors.Errorf("read config: %w", err)
		}
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML over the defaults, then applies overrides from lookup.
func Parse(data []byte, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, xerrors.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("ERRORHUB_" + key); ok {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup("ERRORHUB_" + key); ok {
			*dst = splitList(v)
		}
	}

	if v, ok := lookup("ERRORHUB_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return xerrors.Errorf("ERRORHUB_PORT: %w", err)
		}
		c.Server.Port = port
	}
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_PATH", &c.Database.Path)
	str("DATABASE_HOST", &c.Database.Host)
	str("DATABASE_USER", &c.Database.User)
	str("DATABASE_PASSWORD", &c.Database.Password)
	str("DATABASE_NAME", &c.Database.Name)
	str("MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	list("INGEST_KEYS", &c.Ingest.Keys)
	list("ADMIN_API_KEYS", &c.Admin.APIKeys)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return xerrors.New("database.path is required for sqlite")
		}
	case DriverMySQL, DriverPostgres:
		if c.Database.Host == "" || c.Database.Name == "" {
			return xerrors.Errorf("database.host and database.name are required for %s", c.Database.Driver)
		}
	default:
		return xerrors.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return xerrors.Errorf("invalid server.port %d", c.Server.Port)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	if c.Log.Format != "human" && c.Log.Format != "json" {
		return xerrors.Errorf("log.format must be human or json, got %q", c.Log.Format)
	}
	seen := map[int64]bool{}
	for _, s := range c.Scopes {
		if s.ID <= 0 {
			return xerrors.Errorf("scope ids must be positive, got %d", s.ID)
		}
		if seen[s.ID] {
			return xerrors.Errorf("duplicate scope id %d", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func (c *Config) LogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, xerrors.Errorf("unknown log.level %q", c.Log.Level)
	}
}

// MySQLDSN builds the go-sql-driver DSN from the database section.
func (c *Config) MySQLDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return mysqlp.DSN(c.Database.Host, port, c.Database.User, c.Database.Password, c.Database.Name)
}

// PostgresDSN builds the libpq URL from the database section.
func (c *Config) PostgresDSN() string {
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	return postgres.DSN(c.Database.Host, port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode)
}
