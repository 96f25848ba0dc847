package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	CORSOrigins []string         `json:"cors_origins"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	FileStore   FileStoreConfig  `json:"file_store"`
	AI          AIConfig         `json:"ai"`
	Import      ImportConfig     `json:"import"`
	Cleanup     CleanupConfig    `json:"cleanup"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIProviderConfig struct {
	Name     string      `json:"name"`
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

// AIConfig drives the normalizer. An empty provider list disables the
// language model; low confidence imports then keep the rule-based tree.
type AIConfig struct {
	Providers       []AIProviderConfig `json:"providers"`
	Threshold       float64            `json:"threshold"`
	MaxCost         float64            `json:"max_cost"`
	PricePer1KChars float64            `json:"price_per_1k_chars"`
	Timeout         int                `json:"timeout"`
	CacheSize       int                `json:"cache_size"`
	CacheTTL        int                `json:"cache_ttl"`
}

type ImportConfig struct {
	WorkDir        string `json:"work_dir"`
	MaxFileSizeMB  int    `json:"max_file_size_mb"`
	Concurrency    int    `json:"concurrency"`
	RetryDelays    []int  `json:"retry_delays"`
	JobTimeout     int    `json:"job_timeout"`
	VocabularyFile string `json:"vocabulary_file"`

	// WatchVocabulary reloads the vocabulary file when it changes.
	WatchVocabulary bool `json:"watch_vocabulary"`

	// UploadInterval is the per-user refill interval in seconds for uploads,
	// 0 disables the limit.
	UploadInterval int `json:"upload_interval"`
	UploadBurst    int `json:"upload_burst"`
}

type CleanupConfig struct {
	Spec      string `json:"spec"`
	MaxAgeHrs int    `json:"max_age_hours"`
}

func (c ImportConfig) MaxFileSize() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

func (c ImportConfig) RetryDelayDurations() []time.Duration {
	out := make([]time.Duration, 0, len(c.RetryDelays))
	for _, sec := range c.RetryDelays {
		out = append(out, time.Duration(sec)*time.Second)
	}
	return out
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	switch cfg.FileStore.Type {
	case "local", "s3":
		if cfg.FileStore.Data == nil {
			return fmt.Errorf("file_store.data is required for %s store", cfg.FileStore.Type)
		}
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	for i, p := range cfg.AI.Providers {
		if p.Provider == "" || p.Model == "" {
			return fmt.Errorf("ai.providers[%d]: provider and model are required", i)
		}
	}
	if cfg.AI.Threshold <= 0 {
		cfg.AI.Threshold = 0.8
	}
	if cfg.AI.Threshold > 1 {
		return fmt.Errorf("ai.threshold must not exceed 1")
	}
	if cfg.AI.MaxCost == 0 {
		cfg.AI.MaxCost = 0.05
	}
	if cfg.AI.PricePer1KChars == 0 {
		cfg.AI.PricePer1KChars = 0.0005
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 60
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 128
	}
	if cfg.AI.CacheTTL == 0 {
		cfg.AI.CacheTTL = 24 * 3600
	}
	if cfg.Import.WorkDir == "" {
		cfg.Import.WorkDir = os.TempDir()
	}
	if cfg.Import.MaxFileSizeMB <= 0 {
		cfg.Import.MaxFileSizeMB = 50
	}
	if cfg.Import.Concurrency <= 0 {
		cfg.Import.Concurrency = 2
	}
	if cfg.Import.RetryDelays == nil {
		cfg.Import.RetryDelays = []int{0, 30, 120}
	}
	if cfg.Import.JobTimeout <= 0 {
		cfg.Import.JobTimeout = 600
	}
	if cfg.Import.UploadInterval < 0 {
		return fmt.Errorf("import.upload_interval must not be negative")
	}
	if cfg.Import.UploadBurst <= 0 {
		cfg.Import.UploadBurst = 5
	}
	if cfg.Import.WatchVocabulary && cfg.Import.VocabularyFile == "" {
		return fmt.Errorf("import.watch_vocabulary needs import.vocabulary_file")
	}
	if cfg.Import.JobTimeout <= cfg.AI.Timeout {
		return fmt.Errorf("import.job_timeout must be longer than ai.timeout")
	}
	if cfg.Cleanup.Spec == "" {
		cfg.Cleanup.Spec = "0 3 * * *"
	}
	if cfg.Cleanup.MaxAgeHrs <= 0 {
		cfg.Cleanup.MaxAgeHrs = 24 * 7
	}
	return nil
}
