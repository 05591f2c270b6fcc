package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port           int              `json:"port"`
	DB             DatabaseConfig   `json:"db"`
	LogConfig      logger.LogConfig `json:"log_config"`
	AI             AIConfig         `json:"ai"`
	Crawl          CrawlConfig      `json:"crawl"`
	Search         SearchConfig     `json:"search"`
	Tiers          []TierConfig     `json:"tiers"`
	FileStore      FileStoreConfig  `json:"file_store"`
	Schedule       ScheduleConfig   `json:"schedule"`
	CORSAllowlist  []string         `json:"cors_allowlist"`
	AskRateLimitMS int              `json:"ask_rate_limit_ms"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type AIConfig struct {
	Provider          string      `json:"provider"`
	Model             string      `json:"model"`
	EmbedProvider     string      `json:"embed_provider"`
	EmbedModel        string      `json:"embed_model"`
	Args              interface{} `json:"args"`
	EmbedArgs         interface{} `json:"embed_args"`
	TimeoutSeconds    int         `json:"timeout_seconds"`
	MaxQuestionChars  int         `json:"max_question_chars"`
	EmbedRetries      int         `json:"embed_retries"`
	EmbedBackoffMS    int         `json:"embed_backoff_ms"`
	EmbedCacheSize    int         `json:"embed_cache_size"`
	EmbedCacheTTLMins int         `json:"embed_cache_ttl_mins"`
}

type CrawlConfig struct {
	MaxPages             int    `json:"max_pages"`
	PageConcurrency      int    `json:"page_concurrency"`
	BusinessConcurrency  int    `json:"business_concurrency"`
	PerDomainConcurrency int    `json:"per_domain_concurrency"`
	PerDomainDelayMS     int    `json:"per_domain_delay_ms"`
	FetchTimeoutSeconds  int    `json:"fetch_timeout_seconds"`
	MaxRedirects         int    `json:"max_redirects"`
	RetryAttempts        int    `json:"retry_attempts"`
	RetryBackoffMS       int    `json:"retry_backoff_ms"`
	RetireAfterMisses    int    `json:"retire_after_misses"`
	MirrorImages         bool   `json:"mirror_images"`
	UserAgent            string `json:"user_agent"`
}

type SearchConfig struct {
	StockPenalty float64 `json:"stock_penalty"`
	DefaultK     int     `json:"default_k"`
	MaxK         int     `json:"max_k"`
}

type TierConfig struct {
	Name             string `json:"name"`
	MaxProducts      int    `json:"max_products"`
	MaxConversations int    `json:"max_conversations"`
	ProductsPerQuery int    `json:"products_per_query"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type ScheduleConfig struct {
	CrawlAllSpec     string `json:"crawl_all_spec"`
	ReindexSpec      string `json:"reindex_spec"`
	ReindexBatchSize int    `json:"reindex_batch_size"`
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
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.DB.DSN == "" && cfg.DB.Host == "" {
		return nil, fmt.Errorf("db.dsn or db.host is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	applyCrawlDefaults(&cfg.Crawl)
	applySearchDefaults(&cfg.Search)
	applyAIDefaults(&cfg.AI)
	if len(cfg.Tiers) == 0 {
		cfg.Tiers = []TierConfig{
			{Name: "free", MaxProducts: 50, MaxConversations: 100, ProductsPerQuery: 5},
			{Name: "pro", MaxProducts: 1000, MaxConversations: 2000, ProductsPerQuery: 10},
		}
	}
	if cfg.Schedule.CrawlAllSpec == "" {
		cfg.Schedule.CrawlAllSpec = "0 3 * * *"
	}
	if cfg.Schedule.ReindexSpec == "" {
		cfg.Schedule.ReindexSpec = "*/10 * * * *"
	}
	if cfg.Schedule.ReindexBatchSize == 0 {
		cfg.Schedule.ReindexBatchSize = 50
	}
	return &cfg, nil
}

func applyCrawlDefaults(c *CrawlConfig) {
	if c.MaxPages == 0 {
		c.MaxPages = 100
	}
	if c.PageConcurrency == 0 {
		c.PageConcurrency = 4
	}
	if c.BusinessConcurrency == 0 {
		c.BusinessConcurrency = 3
	}
	if c.PerDomainConcurrency == 0 {
		c.PerDomainConcurrency = 2
	}
	if c.PerDomainDelayMS == 0 {
		c.PerDomainDelayMS = 250
	}
	if c.FetchTimeoutSeconds == 0 {
		c.FetchTimeoutSeconds = 15
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = 5
	}
	if c.RetryAttempts == 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoffMS == 0 {
		c.RetryBackoffMS = 500
	}
	if c.RetireAfterMisses == 0 {
		c.RetireAfterMisses = 3
	}
	if c.UserAgent == "" {
		c.UserAgent = "ShopAgentBot/1.0"
	}
}

func applySearchDefaults(c *SearchConfig) {
	if c.StockPenalty == 0 {
		c.StockPenalty = 0.85
	}
	if c.DefaultK == 0 {
		c.DefaultK = 5
	}
	if c.MaxK == 0 {
		c.MaxK = 20
	}
}

func applyAIDefaults(c *AIConfig) {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 30
	}
	if c.MaxQuestionChars == 0 {
		c.MaxQuestionChars = 2000
	}
	if c.EmbedRetries == 0 {
		c.EmbedRetries = 3
	}
	if c.EmbedBackoffMS == 0 {
		c.EmbedBackoffMS = 500
	}
	if c.EmbedCacheSize == 0 {
		c.EmbedCacheSize = 10000
	}
	if c.EmbedCacheTTLMins == 0 {
		c.EmbedCacheTTLMins = 120
	}
	if c.EmbedProvider == "" {
		c.EmbedProvider = c.Provider
	}
	if c.EmbedArgs == nil {
		c.EmbedArgs = c.Args
	}
}
