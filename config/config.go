package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Retry     RetryConfig     `yaml:"retry"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Data      DataConfig      `yaml:"data"`
	Pricing   []PriceConfig   `yaml:"pricing"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite, mysql
	DSN  string `yaml:"dsn"`
}

// ProviderConfig 单个 LLM 提供方的连接参数
type ProviderConfig struct {
	Provider    string        `yaml:"provider"` // openai, perplexity
	Driver      string        `yaml:"driver"`   // eino, openai, http
	APIURL      string        `yaml:"api_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

type LLMConfig struct {
	Primary  ProviderConfig `yaml:"primary"`
	Research ProviderConfig `yaml:"research"`
}

type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
	MaxBackoff time.Duration `yaml:"max_backoff"`
}

type PipelineConfig struct {
	MaxKeywords       int           `yaml:"max_keywords"`
	OutlineMin        int           `yaml:"outline_min"`
	OutlineMax        int           `yaml:"outline_max"`
	HumanizerMinRatio float64       `yaml:"humanizer_min_ratio"`
	Workers           int           `yaml:"workers"`
	KeywordCooldown   time.Duration `yaml:"keyword_cooldown"` // 关键词再次使用前的冷却期
}

type DataConfig struct {
	Dir         string `yaml:"dir"`
	PostsDir    string `yaml:"posts_dir"`
	MarkdownDir string `yaml:"markdown_dir"`
	ContextDir  string `yaml:"context_dir"`
	CostLog     string `yaml:"cost_log"`
}

// PriceConfig 覆盖内置价格表的一行
type PriceConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
	Insecure    bool   `yaml:"insecure"`
}

var (
	cfg  *Config
	once sync.Once
)

func GetConfig() *Config {
	once.Do(func() {
		// .env 只补充未设置的环境变量
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			klog.Warningf("加载 .env 失败: %v", err)
		}
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config.yaml"
		}
		loaded, err := Load(configPath)
		if err != nil {
			klog.Warningf("配置校验失败，使用默认配置: %v", err)
			loaded = Default()
			applyEnv(loaded)
			fillDerived(loaded)
		}
		cfg = loaded
	})
	return cfg
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			DSN:  "./data/app.db",
		},
		LLM: LLMConfig{
			Primary: ProviderConfig{
				Provider:    "openai",
				Driver:      "eino",
				APIURL:      "https://api.openai.com/v1",
				Model:       "gpt-4o-mini",
				MaxTokens:   4096,
				Temperature: 0.7,
				Timeout:     2 * time.Minute,
			},
			Research: ProviderConfig{
				Provider:    "perplexity",
				Driver:      "http",
				APIURL:      "https://api.perplexity.ai",
				Model:       "llama-3-sonar-small-online",
				MaxTokens:   2048,
				Temperature: 0.2,
				Timeout:     2 * time.Minute,
			},
		},
		Retry: RetryConfig{
			MaxRetries: 1,
			Backoff:    time.Second,
			MaxBackoff: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxKeywords:       20,
			OutlineMin:        8,
			OutlineMax:        14,
			HumanizerMinRatio: 0.6,
			Workers:           2,
			KeywordCooldown:   24 * time.Hour,
		},
		Data: DataConfig{
			Dir: "./data",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "blogforge",
		},
	}
}

// Load 从指定路径读取配置；文件不存在时使用默认值，环境变量优先级高于配置文件
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	applyEnv(config)
	fillDerived(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.LLM.Primary.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.Primary.APIURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL_NAME"); model != "" {
		config.LLM.Primary.Model = model
	}
	if apiKey := os.Getenv("PERPLEXITY_API_KEY"); apiKey != "" {
		config.LLM.Research.APIKey = apiKey
	}
	if model := os.Getenv("PERPLEXITY_MODEL_NAME"); model != "" {
		config.LLM.Research.Model = model
	}

	// 数据库环境变量
	if dbType := os.Getenv("DB_TYPE"); dbType != "" {
		config.Database.Type = dbType
	}
	if dbDSN := os.Getenv("DB_DSN"); dbDSN != "" {
		config.Database.DSN = dbDSN
	}

	// 数据目录环境变量
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		config.Data.Dir = dataDir
	}
	if contextDir := os.Getenv("CONTEXT_DIR"); contextDir != "" {
		config.Data.ContextDir = contextDir
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		config.Telemetry.Endpoint = endpoint
	}
}

func fillDerived(config *Config) {
	if config.Data.PostsDir == "" {
		config.Data.PostsDir = filepath.Join(config.Data.Dir, "generated_posts")
	}
	if config.Data.MarkdownDir == "" {
		config.Data.MarkdownDir = filepath.Join(config.Data.Dir, "markdown_posts")
	}
	if config.Data.ContextDir == "" {
		config.Data.ContextDir = filepath.Join(config.Data.Dir, "context")
	}
	if config.Data.CostLog == "" {
		config.Data.CostLog = filepath.Join(config.Data.Dir, "api_cost_log.md")
	}
}

// Validate 只做非负数值范围检查
func (c *Config) Validate() error {
	for name, p := range map[string]ProviderConfig{"primary": c.LLM.Primary, "research": c.LLM.Research} {
		if p.Temperature < 0 {
			return fmt.Errorf("llm.%s.temperature must be non-negative, got %v", name, p.Temperature)
		}
		if p.MaxTokens < 0 {
			return fmt.Errorf("llm.%s.max_tokens must be non-negative, got %d", name, p.MaxTokens)
		}
		if p.Timeout < 0 {
			return fmt.Errorf("llm.%s.timeout must be non-negative, got %s", name, p.Timeout)
		}
	}
	if c.Retry.MaxRetries < 0 || c.Retry.Backoff < 0 || c.Retry.MaxBackoff < 0 {
		return fmt.Errorf("retry settings must be non-negative")
	}
	if c.Pipeline.MaxKeywords < 0 || c.Pipeline.Workers < 0 || c.Pipeline.HumanizerMinRatio < 0 || c.Pipeline.KeywordCooldown < 0 {
		return fmt.Errorf("pipeline settings must be non-negative")
	}
	if c.Pipeline.OutlineMin < 0 || c.Pipeline.OutlineMax < c.Pipeline.OutlineMin {
		return fmt.Errorf("pipeline outline bounds invalid: min=%d max=%d", c.Pipeline.OutlineMin, c.Pipeline.OutlineMax)
	}
	for _, p := range c.Pricing {
		if p.InputPer1K < 0 || p.OutputPer1K < 0 {
			return fmt.Errorf("pricing for %s/%s must be non-negative", p.Provider, p.Model)
		}
	}
	return nil
}

// Save 写出 YAML 配置，不包含 API Key
func (c *Config) Save(path string) error {
	cp := *c
	cp.LLM.Primary.APIKey = ""
	cp.LLM.Research.APIKey = ""
	data, err := yaml.Marshal(&cp)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
