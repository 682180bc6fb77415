package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/menta2k/image-labeler/internal/utils"
)

// EnvPrefix prefixes every environment override, e.g. LABELER_MODEL_URL
const EnvPrefix = "LABELER"

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Model    ModelConfig    `mapstructure:"model"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Journal  JournalConfig  `mapstructure:"journal"`
	S3       S3Config       `mapstructure:"s3"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig locates the upload and label areas
type StorageConfig struct {
	UploadDir      string `mapstructure:"upload_dir"`
	LabelDir       string `mapstructure:"label_dir"`
	ImageURLPrefix string `mapstructure:"image_url_prefix"`
}

// ModelConfig holds configuration for the inference endpoint
type ModelConfig struct {
	Backend     string        `mapstructure:"backend"`
	URL         string        `mapstructure:"url"`
	VisionModel string        `mapstructure:"vision_model"`
	TextModel   string        `mapstructure:"text_model"`
	Temperature float64       `mapstructure:"temperature"`
	TopP        float64       `mapstructure:"top_p"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	// MaxImageDimension downscales images before recognition; 0 sends them unchanged
	MaxImageDimension int `mapstructure:"max_image_dimension"`
	JPEGQuality       int `mapstructure:"jpeg_quality"`
}

// PipelineConfig bounds concurrent labeling
type PipelineConfig struct {
	MaxConcurrent    int `mapstructure:"max_concurrent"`
	BatchConcurrency int `mapstructure:"batch_concurrency"`
}

// UploadConfig restricts accepted uploads
type UploadConfig struct {
	MaxSize           int64    `mapstructure:"max_size"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// JournalConfig enables the run journal when DatabaseURL is set
type JournalConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
}

// S3Config enables snapshot uploads when Bucket is set
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Prefix          string `mapstructure:"prefix"`
	CreateBucket    bool   `mapstructure:"create_bucket"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            3000,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			UploadDir:      "./uploads",
			LabelDir:       "./labels",
			ImageURLPrefix: "/uploads",
		},
		Model: ModelConfig{
			Backend:           "ollama",
			URL:               "http://localhost:11434",
			VisionModel:       "qwen2.5vl:7b",
			TextModel:         "deepseek-r1:8b",
			Temperature:       0.3,
			TopP:              0.9,
			MaxTokens:         500,
			Timeout:           5 * time.Minute,
			MaxImageDimension: 0,
			JPEGQuality:       85,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent:    0,
			BatchConcurrency: 2,
		},
		Upload: UploadConfig{
			MaxSize:           10 * 1024 * 1024,
			AllowedExtensions: []string{"jpg", "jpeg", "png", "gif", "webp"},
		},
		S3: S3Config{
			Region: "us-east-1",
			Prefix: "exports/",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// settings flattens c into dotted viper keys
func (c *Config) settings() map[string]any {
	return map[string]any{
		"server.host":                 c.Server.Host,
		"server.port":                 c.Server.Port,
		"server.shutdown_timeout":     c.Server.ShutdownTimeout.String(),
		"storage.upload_dir":          c.Storage.UploadDir,
		"storage.label_dir":           c.Storage.LabelDir,
		"storage.image_url_prefix":    c.Storage.ImageURLPrefix,
		"model.backend":               c.Model.Backend,
		"model.url":                   c.Model.URL,
		"model.vision_model":          c.Model.VisionModel,
		"model.text_model":            c.Model.TextModel,
		"model.temperature":           c.Model.Temperature,
		"model.top_p":                 c.Model.TopP,
		"model.max_tokens":            c.Model.MaxTokens,
		"model.timeout":               c.Model.Timeout.String(),
		"model.max_image_dimension":   c.Model.MaxImageDimension,
		"model.jpeg_quality":          c.Model.JPEGQuality,
		"pipeline.max_concurrent":     c.Pipeline.MaxConcurrent,
		"pipeline.batch_concurrency":  c.Pipeline.BatchConcurrency,
		"upload.max_size":             c.Upload.MaxSize,
		"upload.allowed_extensions":   c.Upload.AllowedExtensions,
		"journal.database_url":        c.Journal.DatabaseURL,
		"s3.endpoint":                 c.S3.Endpoint,
		"s3.region":                   c.S3.Region,
		"s3.bucket":                   c.S3.Bucket,
		"s3.access_key_id":            c.S3.AccessKeyID,
		"s3.secret_access_key":        c.S3.SecretAccessKey,
		"s3.prefix":                   c.S3.Prefix,
		"s3.create_bucket":            c.S3.CreateBucket,
		"log.level":                   c.Log.Level,
		"log.development":             c.Log.Development,
	}
}

// Load reads defaults, then the optional config file at path (JSON or YAML
// by extension), then LABELER_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range Default().settings() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SaveToFile writes the configuration to filename, format chosen by extension
func (c *Config) SaveToFile(filename string) error {
	if err := utils.EnsureDir(filepath.Dir(filename)); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range c.settings() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Storage.UploadDir == "" || c.Storage.LabelDir == "" {
		return fmt.Errorf("storage.upload_dir and storage.label_dir are required")
	}

	if filepath.Clean(c.Storage.UploadDir) == filepath.Clean(c.Storage.LabelDir) {
		return fmt.Errorf("storage.upload_dir and storage.label_dir must differ")
	}

	switch c.Model.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("model.backend must be ollama or llamacpp, got %q", c.Model.Backend)
	}

	if u, err := url.Parse(c.Model.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("model.url must be an absolute URL, got %q", c.Model.URL)
	}

	if c.Model.VisionModel == "" || c.Model.TextModel == "" {
		return fmt.Errorf("model.vision_model and model.text_model are required")
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("model.temperature must be between 0 and 2")
	}

	if c.Model.TopP <= 0 || c.Model.TopP > 1 {
		return fmt.Errorf("model.top_p must be in (0, 1]")
	}

	if c.Model.MaxTokens < 1 {
		return fmt.Errorf("model.max_tokens must be positive")
	}

	if c.Model.Timeout <= 0 {
		return fmt.Errorf("model.timeout must be positive")
	}

	if c.Model.MaxImageDimension < 0 {
		return fmt.Errorf("model.max_image_dimension cannot be negative")
	}

	if c.Model.JPEGQuality < 1 || c.Model.JPEGQuality > 100 {
		return fmt.Errorf("model.jpeg_quality must be between 1 and 100")
	}

	if c.Pipeline.MaxConcurrent < 0 || c.Pipeline.BatchConcurrency < 1 {
		return fmt.Errorf("pipeline.max_concurrent cannot be negative and pipeline.batch_concurrency must be positive")
	}

	if c.Upload.MaxSize < 1 {
		return fmt.Errorf("upload.max_size must be positive")
	}

	if len(c.Upload.AllowedExtensions) == 0 {
		return fmt.Errorf("upload.allowed_extensions cannot be empty")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// EnsureDirs creates the upload and label areas
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.UploadDir, c.Storage.LabelDir} {
		if err := utils.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// S3Enabled reports whether snapshot uploads are configured
func (c *Config) S3Enabled() bool { return c.S3.Bucket != "" }

// JournalEnabled reports whether the run journal is configured
func (c *Config) JournalEnabled() bool { return c.Journal.DatabaseURL != "" }

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port) }

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "image-labeler", "config.yaml")
}
