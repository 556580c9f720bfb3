package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fbharvest/pkg/logger"
)

// Config holds all configuration options for the harvester
type Config struct {
	// Remote API settings
	API APIConfig `yaml:"api"`

	// Persistence settings
	Database DatabaseConfig `yaml:"database"`

	// Worker orchestration settings
	Workers WorkersConfig `yaml:"workers"`

	// OCR engine settings
	OCR OCRConfig `yaml:"ocr"`

	// Logging configuration
	Logging logger.Config `yaml:"logging"`
}

// APIConfig holds remote Graph API configuration
type APIConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIVersion string `yaml:"api_version"`

	// AccessTokens is the pool rotated round-robin across requests to
	// spread per-token rate limits
	AccessTokens []string `yaml:"access_tokens"`

	// AggregatorPageID seeds the page registry: every share posted to
	// this page points at a page worth crawling
	AggregatorPageID string `yaml:"aggregator_page_id"`

	// PageLimit is the batch size requested per feed page
	PageLimit int `yaml:"page_limit"`

	// DaysDepth is the age horizon: posts older than this are not crawled
	DaysDepth int `yaml:"days_depth"`

	// LikesDepth is the minimum age in days before likes detail is fetched
	LikesDepth int `yaml:"likes_depth"`

	// MaxPostsPerPage caps feed traversal for a single page
	MaxPostsPerPage int `yaml:"max_posts_per_page"`

	// RateLimitWait is the total time slept through a platform
	// rate-limit error, in 5-minute increments
	RateLimitWait time.Duration `yaml:"rate_limit_wait"`

	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

// DatabaseConfig holds persistence configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// WorkersConfig holds worker orchestration configuration
type WorkersConfig struct {
	LikesSlots int `yaml:"likes_slots"`
	OCRSlots   int `yaml:"ocr_slots"`

	LikesBatchSize int `yaml:"likes_batch_size"`
	OCRBatchSize   int `yaml:"ocr_batch_size"`
	ImageBatchSize int `yaml:"image_batch_size"`

	// CycleSleep is the pause between full crawl cycles
	CycleSleep time.Duration `yaml:"cycle_sleep"`

	// WatchdogInterval is the liveness poll period for worker slots
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`

	// MarkerDir holds per-slot resumption marker files
	MarkerDir string `yaml:"marker_dir"`

	// ImageDir is where downloaded images are mirrored to disk
	ImageDir string `yaml:"image_dir"`
}

// OCRConfig holds OCR consensus engine configuration
type OCRConfig struct {
	Enabled bool `yaml:"enabled"`

	// Languages names the two trained models run over every variant
	Languages []string `yaml:"languages"`

	// TessdataPrefix points at the trained-data directory
	TessdataPrefix string `yaml:"tessdata_prefix"`

	// WordlistPath is the dictionary used for the dictionary-hit ratio
	WordlistPath string `yaml:"wordlist_path"`

	BracketWidth  int     `yaml:"bracket_width"`
	BracketClip   int     `yaml:"bracket_clip"`
	Threshold     int     `yaml:"threshold"`
	EnlargeFactor int     `yaml:"enlarge_factor"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://graph.facebook.com",
			APIVersion:        "v2.8",
			PageLimit:         25,
			DaysDepth:         60,
			LikesDepth:        2,
			MaxPostsPerPage:   2000,
			RateLimitWait:     40 * time.Minute,
			RequestTimeout:    20 * time.Second,
			RequestsPerMinute: 120,
		},
		Database: DatabaseConfig{
			Path: "./fbharvest.db",
		},
		Workers: WorkersConfig{
			LikesSlots:       2,
			OCRSlots:         2,
			LikesBatchSize:   100,
			OCRBatchSize:     500,
			ImageBatchSize:   100,
			CycleSleep:       30 * time.Minute,
			WatchdogInterval: 60 * time.Second,
			MarkerDir:        "./markers",
			ImageDir:         "./images",
		},
		OCR: OCRConfig{
			Enabled:       true,
			Languages:     []string{"eng", "joh"},
			BracketWidth:  6,
			BracketClip:   2,
			Threshold:     180,
			EnlargeFactor: 2,
			MinConfidence: 75.0,
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file,
// then environment variables, then command-line flags
func Load(path string, flags map[string]interface{}) (*Config, error) {
	// .env first so env overrides see its values
	_ = godotenv.Load()

	cfg := DefaultConfig()

	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	cfg.MergeCommandLineFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file is not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) findConfigFile() string {
	locations := []string{
		".fbharvest.yaml",
		".fbharvest.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "fbharvest", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".fbharvest.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if tokens := os.Getenv("FBHARVEST_ACCESS_TOKENS"); tokens != "" {
		c.API.AccessTokens = splitTokens(tokens)
	}
	if pageID := os.Getenv("FBHARVEST_AGGREGATOR_PAGE_ID"); pageID != "" {
		c.API.AggregatorPageID = pageID
	}
	if baseURL := os.Getenv("FBHARVEST_API_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if depth := os.Getenv("FBHARVEST_DAYS_DEPTH"); depth != "" {
		if val, err := strconv.Atoi(depth); err == nil && val > 0 {
			c.API.DaysDepth = val
		}
	}
	if dbPath := os.Getenv("FBHARVEST_DB_PATH"); dbPath != "" {
		c.Database.Path = dbPath
	}
	if slots := os.Getenv("FBHARVEST_OCR_SLOTS"); slots != "" {
		if val, err := strconv.Atoi(slots); err == nil && val >= 0 {
			c.Workers.OCRSlots = val
		}
	}
	if slots := os.Getenv("FBHARVEST_LIKES_SLOTS"); slots != "" {
		if val, err := strconv.Atoi(slots); err == nil && val >= 0 {
			c.Workers.LikesSlots = val
		}
	}
	if logLevel := os.Getenv("FBHARVEST_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if tokens, ok := flags["access-tokens"].(string); ok && tokens != "" {
		c.API.AccessTokens = splitTokens(tokens)
	}
	if pageID, ok := flags["aggregator-page"].(string); ok && pageID != "" {
		c.API.AggregatorPageID = pageID
	}
	if dbPath, ok := flags["database"].(string); ok && dbPath != "" {
		c.Database.Path = dbPath
	}
	if depth, ok := flags["days-depth"].(int); ok && depth > 0 {
		c.API.DaysDepth = depth
	}
	if slots, ok := flags["ocr-slots"].(int); ok && slots >= 0 {
		c.Workers.OCRSlots = slots
	}
	if slots, ok := flags["likes-slots"].(int); ok && slots >= 0 {
		c.Workers.LikesSlots = slots
	}
	if level, ok := flags["log-level"].(string); ok && level != "" {
		c.Logging.Level = level
	}
}

func splitTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}
	if c.API.PageLimit <= 0 {
		errs = append(errs, errors.New("page limit must be positive"))
	}
	if c.API.DaysDepth <= 0 {
		errs = append(errs, errors.New("days depth must be positive"))
	}
	if c.API.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}
	if c.API.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Workers.CycleSleep <= 0 {
		errs = append(errs, errors.New("cycle sleep must be positive"))
	}
	if c.OCR.Enabled {
		if len(c.OCR.Languages) != 2 {
			errs = append(errs, errors.New("exactly two OCR languages are required"))
		}
		if c.OCR.BracketWidth <= 0 || c.OCR.BracketClip < 0 {
			errs = append(errs, errors.New("invalid OCR bracket parameters"))
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
