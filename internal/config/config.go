// Package config loads lectern settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration marks settings that make the process unable to start.
var ErrConfiguration = errors.New("invalid configuration")

// EnvPrefix is prepended to every environment override, e.g. LECTERN_LLM_MODEL.
const EnvPrefix = "LECTERN"

// Config holds all application configuration.
type Config struct {
	Corpus    CorpusConfig    `mapstructure:"corpus"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Index     IndexConfig     `mapstructure:"index"`
	Milvus    MilvusConfig    `mapstructure:"milvus"`
	Router    RouterConfig    `mapstructure:"router"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

type CorpusConfig struct {
	Root    string `mapstructure:"root"`
	Catalog string `mapstructure:"catalog"`
	// Strict fails ingestion on the first malformed transcript file.
	Strict bool `mapstructure:"strict"`
}

type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap"`
}

type EmbeddingConfig struct {
	Provider          string  `mapstructure:"provider"`
	Model             string  `mapstructure:"model"`
	Dimension         int     `mapstructure:"dimension"`
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	BatchSize         int     `mapstructure:"batch_size"`
	Concurrency       int     `mapstructure:"concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type LLMConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type IndexConfig struct {
	Path        string        `mapstructure:"path"`
	Engine      string        `mapstructure:"engine"`
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
}

type MilvusConfig struct {
	Address          string `mapstructure:"address"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
	M                int    `mapstructure:"m"`
	EfConstruction   int    `mapstructure:"ef_construction"`
	EfSearch         int    `mapstructure:"ef_search"`
}

type RouterConfig struct {
	RetrievalK  int      `mapstructure:"retrieval_k"`
	ScanLimit   int      `mapstructure:"scan_limit"`
	TimePhrases []string `mapstructure:"time_phrases"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	AdminToken   string        `mapstructure:"admin_token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Environment  string  `mapstructure:"environment"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("corpus.root", "data/transcripts")
	v.SetDefault("corpus.catalog", "")
	v.SetDefault("corpus.strict", true)

	v.SetDefault("chunking.chunk_size", 1000)
	v.SetDefault("chunking.chunk_overlap", 200)

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.requests_per_second", 0)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("index.path", "data/index/lectern.idx")
	v.SetDefault("index.engine", "chromem")
	v.SetDefault("index.load_timeout", 30*time.Second)

	v.SetDefault("milvus.address", "localhost:19530")
	v.SetDefault("milvus.collection_prefix", "lectern_chunks")
	v.SetDefault("milvus.m", 16)
	v.SetDefault("milvus.ef_construction", 256)
	v.SetDefault("milvus.ef_search", 64)

	v.SetDefault("router.retrieval_k", 5)
	v.SetDefault("router.scan_limit", 300)
	v.SetDefault("router.time_phrases", []string{})

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("tracing.otlp_endpoint", "")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Load reads configuration from path, or from lectern.yaml in the working
// directory or ./configs when path is empty. A missing default file is not an
// error; a missing explicit file is. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lectern")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.applyFallbacks()

	return &cfg, nil
}

// applyFallbacks fills credentials from the plain variables the OpenAI and
// Milvus clients read on their own.
func (c *Config) applyFallbacks() {
	key := os.Getenv("OPENAI_API_KEY")
	if c.Embedding.APIKey == "" && c.Embedding.Provider == "openai" {
		c.Embedding.APIKey = key
	}
	if c.LLM.APIKey == "" && c.LLM.Provider == "openai" {
		c.LLM.APIKey = key
	}
	if addr := os.Getenv("MILVUS_ADDRESS"); addr != "" && os.Getenv(EnvPrefix+"_MILVUS_ADDRESS") == "" {
		c.Milvus.Address = addr
	}
}

// Validate returns an ErrConfiguration-wrapped error describing every
// setting that would make the process fail later.
func (c *Config) Validate() error {
	problems := c.indexProblems()
	problems = append(problems, c.answerProblems()...)
	return asError(problems)
}

// ValidateIndex checks only what ingestion and inspection need, so the
// index can be built on a machine without generation credentials.
func (c *Config) ValidateIndex() error {
	return asError(c.indexProblems())
}

func (c *Config) indexProblems() []string {
	var problems []string

	if c.Corpus.Root == "" {
		problems = append(problems, "corpus.root is empty")
	}
	if c.Chunking.ChunkSize <= 0 {
		problems = append(problems, fmt.Sprintf("chunking.chunk_size %d must be positive", c.Chunking.ChunkSize))
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		problems = append(problems, fmt.Sprintf("chunking.chunk_overlap %d must be in [0, chunk_size)", c.Chunking.ChunkOverlap))
	}

	switch c.Embedding.Provider {
	case "openai":
		if c.Embedding.APIKey == "" {
			problems = append(problems, "embedding provider 'openai' is configured but api_key is empty")
		}
	case "ollama", "hashing":
	default:
		problems = append(problems, fmt.Sprintf("embedding.provider %q is not one of openai, ollama, hashing", c.Embedding.Provider))
	}
	if c.Embedding.Dimension <= 0 {
		problems = append(problems, fmt.Sprintf("embedding.dimension %d must be positive", c.Embedding.Dimension))
	}

	if c.Index.Path == "" {
		problems = append(problems, "index.path is empty")
	}
	switch c.Index.Engine {
	case "chromem":
	case "milvus":
		if c.Milvus.Address == "" {
			problems = append(problems, "index.engine is milvus but milvus.address is empty")
		}
	default:
		problems = append(problems, fmt.Sprintf("index.engine %q is not one of chromem, milvus", c.Index.Engine))
	}

	return problems
}

func (c *Config) answerProblems() []string {
	var problems []string

	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			problems = append(problems, "llm provider 'openai' is configured but api_key is empty")
		}
	case "ollama":
	default:
		problems = append(problems, fmt.Sprintf("llm.provider %q is not one of openai, ollama", c.LLM.Provider))
	}
	if c.LLM.MaxTokens < 0 {
		problems = append(problems, fmt.Sprintf("llm.max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Router.RetrievalK <= 0 {
		problems = append(problems, fmt.Sprintf("router.retrieval_k %d must be positive", c.Router.RetrievalK))
	}
	if c.Router.ScanLimit < 0 {
		problems = append(problems, fmt.Sprintf("router.scan_limit %d is negative", c.Router.ScanLimit))
	}

	return problems
}

func asError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
}

// Warnings reports suspicious values that do not prevent startup.
func (c *Config) Warnings() []string {
	var warnings []string

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.Timeout <= 0 {
		warnings = append(warnings, "llm.timeout is not positive; generation calls will not be bounded")
	}
	if c.Router.ScanLimit == 0 {
		warnings = append(warnings, "router.scan_limit is 0; the router falls back to its default of 300")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		warnings = append(warnings, fmt.Sprintf("tracing sample_rate %.2f is outside [0, 1]", c.Tracing.SampleRate))
	}

	return warnings
}
