package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Extract  ExtractConfig  `yaml:"extract"`
	Database DatabaseConfig `yaml:"database"`
	OCR      OCRConfig      `yaml:"ocr"`
	Server   ServerConfig   `yaml:"server"`
	Events   EventsConfig   `yaml:"events"`
	Mirror   MirrorConfig   `yaml:"mirror"`
	LogLevel string         `yaml:"log_level"`
}

// PathsConfig holds the drop folder and the archive root
type PathsConfig struct {
	SourceDir string `yaml:"source_dir"`
	DestDir   string `yaml:"dest_dir"`
}

// IngestConfig holds polling and file-stability settings
type IngestConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	StabilitySamples  int           `yaml:"stability_samples"`
	StabilityInterval time.Duration `yaml:"stability_interval"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryBackoff      time.Duration `yaml:"retry_backoff"`
	Watch             bool          `yaml:"watch"`
	WatchDebounce     time.Duration `yaml:"watch_debounce"`
}

// ExtractConfig holds extraction batch settings
type ExtractConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `yaml:"driver"` // postgres | sqlite
	DSN              string        `yaml:"dsn"`
	MaxConns         int32         `yaml:"max_conns"`
	MinConns         int32         `yaml:"min_conns"`
	MaxConnLifetime  time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`
	StatementTimeout time.Duration `yaml:"statement_timeout"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine      string `yaml:"engine"` // tesseract | gosseract
	Language    string `yaml:"language"`
	DPI         int    `yaml:"dpi"`
	Pdftoppm    string `yaml:"pdftoppm"`
	Tesseract   string `yaml:"tesseract"`
	Lsof        string `yaml:"lsof"`
	TessdataDir string `yaml:"tessdata_dir"`

	// MergeLevel is 0 (none), 1 (same line) or 2 (paragraph).
	MergeLevel   int     `yaml:"merge_level"`
	RowThreshold float64 `yaml:"row_threshold"` // pixels between vertical centers
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
}

// EventsConfig enables report events on kafka when Brokers is non-empty
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MirrorConfig enables S3 mirroring of archived files when Bucket is non-empty
type MirrorConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			SourceDir: "/srv/samba/shared",
			DestDir:   "/home/nsyy/pdf-report-catalog",
		},
		Ingest: IngestConfig{
			PollInterval:      20 * time.Second,
			StabilitySamples:  3,
			StabilityInterval: time.Second,
			RetryAttempts:     3,
			RetryBackoff:      5 * time.Second,
			Watch:             true,
			WatchDebounce:     2 * time.Second,
		},
		Extract: ExtractConfig{
			Interval:  2 * time.Minute,
			BatchSize: 5,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxConns:        10,
			MinConns:        2,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		OCR: OCRConfig{
			Engine:       "tesseract",
			Language:     "chi_sim+eng",
			DPI:          300,
			Pdftoppm:     "pdftoppm",
			Tesseract:    "tesseract",
			Lsof:         "lsof",
			RowThreshold: 10,
		},
		Server: ServerConfig{
			HTTPAddr: ":8080",
			GRPCAddr: ":9090",
		},
		Events: EventsConfig{
			Topic: "ehp-reports",
		},
		LogLevel: "info",
	}
}

// LoadConfig loads defaults, then the YAML file named by EHP_CONFIG (if any),
// then environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("EHP_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadConfigFile loads defaults overlaid with a YAML file, without consulting the environment.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("read config file %s", path), err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse config file %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Paths.SourceDir = getEnv("EHP_SOURCE_DIR", c.Paths.SourceDir)
	c.Paths.DestDir = getEnv("EHP_DEST_DIR", c.Paths.DestDir)

	c.Ingest.PollInterval = getEnvAsDuration("EHP_POLL_INTERVAL", c.Ingest.PollInterval)
	c.Ingest.StabilitySamples = getEnvAsInt("EHP_STABILITY_SAMPLES", c.Ingest.StabilitySamples)
	c.Ingest.StabilityInterval = getEnvAsDuration("EHP_STABILITY_INTERVAL", c.Ingest.StabilityInterval)
	c.Ingest.RetryAttempts = getEnvAsInt("EHP_RETRY_ATTEMPTS", c.Ingest.RetryAttempts)
	c.Ingest.RetryBackoff = getEnvAsDuration("EHP_RETRY_BACKOFF", c.Ingest.RetryBackoff)
	c.Ingest.Watch = getEnvAsBool("EHP_WATCH", c.Ingest.Watch)

	c.Extract.Interval = getEnvAsDuration("EHP_EXTRACT_INTERVAL", c.Extract.Interval)
	c.Extract.BatchSize = getEnvAsInt("EHP_EXTRACT_BATCH", c.Extract.BatchSize)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_URL", c.Database.DSN)
	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)
	c.Database.StatementTimeout = getEnvAsDuration("DB_STATEMENT_TIMEOUT", c.Database.StatementTimeout)

	c.OCR.Engine = getEnv("OCR_ENGINE", c.OCR.Engine)
	c.OCR.Language = getEnv("OCR_LANG", c.OCR.Language)
	c.OCR.DPI = getEnvAsInt("OCR_DPI", c.OCR.DPI)
	c.OCR.Pdftoppm = getEnv("PDFTOPPM_BIN", c.OCR.Pdftoppm)
	c.OCR.Tesseract = getEnv("TESSERACT_BIN", c.OCR.Tesseract)
	c.OCR.Lsof = getEnv("LSOF_BIN", c.OCR.Lsof)
	c.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", c.OCR.TessdataDir)
	c.OCR.MergeLevel = getEnvAsInt("OCR_MERGE_LEVEL", c.OCR.MergeLevel)
	c.OCR.RowThreshold = getEnvAsFloat("OCR_ROW_THRESHOLD", c.OCR.RowThreshold)

	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Events.Brokers = splitList(brokers)
	}
	c.Events.Topic = getEnv("KAFKA_TOPIC", c.Events.Topic)

	c.Mirror.Bucket = getEnv("S3_BUCKET", c.Mirror.Bucket)
	c.Mirror.Prefix = getEnv("S3_PREFIX", c.Mirror.Prefix)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.SourceDir) == "" {
		return NewAppError("CONFIG_ERROR", "EHP_SOURCE_DIR is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Paths.DestDir) == "" {
		return NewAppError("CONFIG_ERROR", "EHP_DEST_DIR is required", ErrInvalidInput)
	}
	if filepath.Clean(c.Paths.SourceDir) == filepath.Clean(c.Paths.DestDir) {
		return NewAppError("CONFIG_ERROR", "EHP_SOURCE_DIR and EHP_DEST_DIR must differ", ErrInvalidInput)
	}
	if c.Ingest.PollInterval <= 0 {
		return NewAppError("CONFIG_ERROR", "EHP_POLL_INTERVAL must be positive", ErrInvalidInput)
	}
	if c.Extract.BatchSize <= 0 {
		return NewAppError("CONFIG_ERROR", "EHP_EXTRACT_BATCH must be positive", ErrInvalidInput)
	}
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
		}
	case "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported DB_DRIVER %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.OCR.DPI <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_DPI must be positive", ErrInvalidInput)
	}
	if c.OCR.MergeLevel < 0 || c.OCR.MergeLevel > 2 {
		return NewAppError("CONFIG_ERROR", "OCR_MERGE_LEVEL must be 0, 1 or 2", ErrInvalidInput)
	}
	if c.OCR.RowThreshold <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_ROW_THRESHOLD must be positive", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
