package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"mathatom/internal/capability"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Provider selection. Provider picks the default vendor; the per-task
	// overrides route individual capabilities to a different one.
	Provider          capability.Vendor
	StructureProvider capability.Vendor
	SummaryProvider   capability.Vendor

	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	GoogleAPIKey    string
	GoogleModel     string

	// Worker pool
	WorkerCount          int
	MaxQueueSize         int
	MaxConcurrentAtomize int
	MaxConcurrentSummary int

	// Upload limits
	MaxUploadBytes int64

	// Atomization
	MaxRecursionDepth        int
	MinContentLengthForSplit int

	// Job state
	JobTTL time.Duration

	// Persistence and output
	DBPath    string
	OutputDir string

	// PDF
	PDFFallbackPdftotext bool
}

func Load() Config {
	_ = godotenv.Load() // optional .env in the working directory

	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("MATHATOM_API_KEY"),

		Provider:          capability.Vendor(envOr("AI_PROVIDER", "claude")),
		StructureProvider: capability.Vendor(os.Getenv("STRUCTURE_PROVIDER")),
		SummaryProvider:   capability.Vendor(os.Getenv("SUMMARY_PROVIDER")),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicModel:  envOr("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     envOr("OPENAI_MODEL", "gpt-4o"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),
		GoogleModel:     envOr("GOOGLE_MODEL", "gemini-1.5-pro"),

		WorkerCount:          envInt("WORKER_COUNT", 2),
		MaxQueueSize:         envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentAtomize: envInt("MAX_CONCURRENT_ATOMIZE", 4),
		MaxConcurrentSummary: envInt("MAX_CONCURRENT_SUMMARY", 4),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		MaxRecursionDepth:        envInt("MAX_RECURSION_DEPTH", 10),
		MinContentLengthForSplit: envInt("MIN_CONTENT_LENGTH_FOR_SPLIT", 500),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		DBPath:    envOr("DB_PATH", "mathatom.db"),
		OutputDir: envOr("OUTPUT_DIR", "output"),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),
	}

	if cfg.StructureProvider == "" {
		cfg.StructureProvider = cfg.Provider
	}
	if cfg.SummaryProvider == "" {
		cfg.SummaryProvider = cfg.Provider
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentAtomize <= 0 {
		cfg.MaxConcurrentAtomize = 4
	}
	if cfg.MaxConcurrentSummary <= 0 {
		cfg.MaxConcurrentSummary = 4
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.MaxRecursionDepth <= 0 {
		cfg.MaxRecursionDepth = 10
	}
	if cfg.MinContentLengthForSplit <= 0 {
		cfg.MinContentLengthForSplit = 500
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}

	return cfg
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("MATHATOM_API_KEY is required")
	}
	for _, v := range []capability.Vendor{c.Provider, c.StructureProvider, c.SummaryProvider} {
		if key, err := c.VendorKey(v); err != nil {
			return err
		} else if key == "" {
			return fmt.Errorf("API key for provider %q is required", v)
		}
	}
	return nil
}

// VendorKey returns the API key configured for a vendor.
func (c Config) VendorKey(v capability.Vendor) (string, error) {
	switch v {
	case capability.VendorClaude:
		return c.AnthropicAPIKey, nil
	case capability.VendorOpenAI:
		return c.OpenAIAPIKey, nil
	case capability.VendorGoogle:
		return c.GoogleAPIKey, nil
	default:
		return "", fmt.Errorf("unknown provider %q", v)
	}
}

// VendorModel returns the model configured for a vendor.
func (c Config) VendorModel(v capability.Vendor) string {
	switch v {
	case capability.VendorOpenAI:
		return c.OpenAIModel
	case capability.VendorGoogle:
		return c.GoogleModel
	default:
		return c.AnthropicModel
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
