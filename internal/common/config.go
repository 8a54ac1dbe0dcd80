package common

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// DefaultConfigPath is read when LABREPORT_CONFIG is unset. A missing file is not an error.
const DefaultConfigPath = "labreport.yaml"

// Config holds all application configuration
type Config struct {
	LogLevel    string             `yaml:"logLevel"`
	Store       StoreConfig        `yaml:"store"`
	Server      ServerConfig       `yaml:"server"`
	Credentials entity.Credentials `yaml:"credentials"`
	Providers   ProvidersConfig    `yaml:"providers"`
	Pipeline    PipelineConfig     `yaml:"pipeline"`
}

// StoreConfig holds history store configuration
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // sqlite | postgres
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"maxConns"`
	MinConns        int32         `yaml:"minConns"`
	MaxConnLifetime time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime time.Duration `yaml:"maxConnIdleTime"`
	DialTimeout     time.Duration `yaml:"dialTimeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string   `yaml:"grpcAddr"`
	HTTPAddr    string   `yaml:"httpAddr"`
	CORSOrigins []string `yaml:"corsOrigins"`
	UploadDir   string   `yaml:"uploadDir"`
	// ImageRoot is the only directory image_path requests may read from.
	// Empty falls back to UploadDir; both empty disables path input.
	ImageRoot   string   `yaml:"imageRoot"`
}

// ProviderConfig is shared by every remote provider.
type ProviderConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// ProvidersConfig groups the remote OCR and chat providers.
type ProvidersConfig struct {
	Vision       ProviderConfig  `yaml:"vision"`
	LegacyOCR    ProviderConfig  `yaml:"legacyOCR"`
	Chat         ProviderConfig  `yaml:"chat"`
	TextFallback FallbackConfig  `yaml:"textFallback"`
	Tesseract    TesseractConfig `yaml:"tesseract"`

	// UseCredentialChain resolves the legacy OCR key pair from the Alibaba
	// Cloud default credential chain when the config leaves it empty.
	UseCredentialChain bool `yaml:"useCredentialChain"`
}

// FallbackConfig configures the secondary structuring provider.
type FallbackConfig struct {
	ProviderConfig `yaml:",inline"`

	Enabled bool `yaml:"enabled"`
}

// TesseractConfig configures the local OCR fallback.
type TesseractConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Binary      string `yaml:"binary"`
	Lang        string `yaml:"lang"`
	TessdataDir string `yaml:"tessdataDir"`
}

// PipelineConfig tunes the orchestrator and its worker queue.
type PipelineConfig struct {
	ParallelExtraction bool          `yaml:"parallelExtraction"`
	MaxPromptChars     int           `yaml:"maxPromptChars"`
	Workers            int           `yaml:"workers"`
	QueueSize          int           `yaml:"queueSize"`
	RunTimeout         time.Duration `yaml:"runTimeout"`
}

// LoadConfig reads the YAML file named by LABREPORT_CONFIG (or DefaultConfigPath)
// and then applies environment overrides.
func LoadConfig() (*Config, error) {
	return LoadConfigFile(getEnv("LABREPORT_CONFIG", DefaultConfigPath))
}

// LoadConfigFile loads path (optional), applies env overrides and defaults, and validates.
func LoadConfigFile(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, NewAppError("CONFIG_ERROR", "parse "+path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// env-only configuration
		default:
			return nil, NewAppError("CONFIG_ERROR", "read "+path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.DSN = getEnv("DB_URL", c.Store.DSN)
	c.Store.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Store.MaxConns)
	c.Store.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Store.MinConns)
	c.Store.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Store.MaxConnLifetime)
	c.Store.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Store.MaxConnIdleTime)
	c.Store.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Store.DialTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.HTTPAddr = getEnv("HTTP_ADDR", c.Server.HTTPAddr)
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	c.Server.UploadDir = getEnv("UPLOAD_DIR", c.Server.UploadDir)
	c.Server.ImageRoot = getEnv("IMAGE_ROOT", c.Server.ImageRoot)

	c.Credentials.VisionKey = getEnv("DASHSCOPE_API_KEY", c.Credentials.VisionKey)
	c.Credentials.ChatKey = getEnv("DEEPSEEK_API_KEY", c.Credentials.ChatKey)
	c.Credentials.LegacyAccessKeyID = getEnv("ALIYUN_ACCESS_KEY_ID", c.Credentials.LegacyAccessKeyID)
	c.Credentials.LegacyAccessKeySecret = getEnv("ALIYUN_ACCESS_KEY_SECRET", c.Credentials.LegacyAccessKeySecret)

	p := &c.Providers
	p.Vision.Model = getEnv("VISION_MODEL", p.Vision.Model)
	p.Vision.Timeout = getEnvAsDuration("VISION_TIMEOUT", p.Vision.Timeout)
	p.LegacyOCR.BaseURL = getEnv("LEGACY_OCR_ENDPOINT", p.LegacyOCR.BaseURL)
	p.LegacyOCR.Timeout = getEnvAsDuration("LEGACY_OCR_TIMEOUT", p.LegacyOCR.Timeout)
	p.Chat.BaseURL = getEnv("CHAT_BASE_URL", p.Chat.BaseURL)
	p.Chat.Model = getEnv("CHAT_MODEL", p.Chat.Model)
	p.Chat.Timeout = getEnvAsDuration("CHAT_TIMEOUT", p.Chat.Timeout)
	p.TextFallback.Enabled = getEnvAsBool("TEXT_FALLBACK_ENABLED", p.TextFallback.Enabled)
	p.Tesseract.Enabled = getEnvAsBool("TESSERACT_ENABLED", p.Tesseract.Enabled)
	p.Tesseract.TessdataDir = getEnv("TESSDATA_PREFIX", p.Tesseract.TessdataDir)
	p.UseCredentialChain = getEnvAsBool("ALIYUN_CREDENTIAL_CHAIN", p.UseCredentialChain)

	c.Pipeline.ParallelExtraction = getEnvAsBool("PARALLEL_EXTRACTION", c.Pipeline.ParallelExtraction)
	c.Pipeline.Workers = getEnvAsInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.RunTimeout = getEnvAsDuration("PIPELINE_RUN_TIMEOUT", c.Pipeline.RunTimeout)
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "sqlite"
	}
	if c.Store.DSN == "" && c.Store.Driver == "sqlite" {
		c.Store.DSN = "labreport.db"
	}
	if c.Store.MaxConns == 0 {
		c.Store.MaxConns = 10
	}
	if c.Store.MinConns == 0 {
		c.Store.MinConns = 1
	}
	if c.Store.MaxConnLifetime == 0 {
		c.Store.MaxConnLifetime = 30 * time.Minute
	}
	if c.Store.MaxConnIdleTime == 0 {
		c.Store.MaxConnIdleTime = 5 * time.Minute
	}
	if c.Store.DialTimeout == 0 {
		c.Store.DialTimeout = 3 * time.Second
	}
	if c.Server.GRPCAddr == "" {
		c.Server.GRPCAddr = ":8080"
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8081"
	}
	if c.Server.ImageRoot == "" {
		c.Server.ImageRoot = c.Server.UploadDir
	}
	if c.Pipeline.MaxPromptChars == 0 {
		c.Pipeline.MaxPromptChars = 3000
	}
	if c.Pipeline.Workers == 0 {
		c.Pipeline.Workers = 2
	}
	if c.Pipeline.QueueSize == 0 {
		c.Pipeline.QueueSize = 16
	}
	if c.Pipeline.RunTimeout == 0 {
		c.Pipeline.RunTimeout = 2 * time.Minute
	}
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
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported store driver %q", c.Store.Driver), ErrInvalidInput)
	}
	if c.Store.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required for postgres", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" && c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR or HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Pipeline.Workers < 1 {
		return NewAppError("CONFIG_ERROR", "pipeline.workers must be positive", ErrInvalidInput)
	}
	return nil
}
