package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Pipeline PipelineConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Server   ServerConfig
	Store    StoreConfig
}

// PipelineConfig holds batch-processing configuration
type PipelineConfig struct {
	Workers    int
	OutputDir  string
	SchemaPath string
	DPI        int
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	PSM           int
	OEM           int
}

// LLMConfig holds completion-service configuration
type LLMConfig struct {
	Provider     string // "openai" | "gemini"
	Model        string
	APIKey       string
	GeminiAPIKey string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
	RPM          int // requests per minute, 0 = unlimited
}

// ServerConfig holds HTTP daemon configuration
type ServerConfig struct {
	Addr      string
	UploadDir string
}

// StoreConfig holds run-history storage configuration
type StoreConfig struct {
	DBPath string // empty = no run history
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			Workers:    getEnvAsInt("INVOICY_WORKERS", 4),
			OutputDir:  getEnv("INVOICY_OUTPUT_DIR", "./out"),
			SchemaPath: getEnv("INVOICE_SCHEMA", ""),
			DPI:        getEnvAsInt("INVOICY_DPI", 300),
		},
		OCR: OCRConfig{
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			PSM:           getEnvAsInt("TESSERACT_PSM", 0),
			OEM:           getEnvAsInt("TESSERACT_OEM", 0),
		},
		LLM: LLMConfig{
			Provider:     getEnv("LLM_PROVIDER", "openai"),
			Model:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			Temperature:  getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			MaxTokens:    getEnvAsInt("LLM_MAX_TOKENS", 4096),
			Timeout:      getEnvAsDuration("LLM_TIMEOUT", 45*time.Second),
			RPM:          getEnvAsInt("LLM_RPM", 0),
		},
		Server: ServerConfig{
			Addr:      getEnv("INVOICY_ADDR", ":8080"),
			UploadDir: getEnv("INVOICY_UPLOAD_DIR", "./uploads"),
		},
		Store: StoreConfig{
			DBPath: getEnv("INVOICY_DB", ""),
		},
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

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
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

// Validate checks that the selected completion provider has credentials.
// Failing here is fatal at startup; nothing else is.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrConfiguration)
		}
	case "gemini":
		if c.LLM.GeminiAPIKey == "" {
			return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrConfiguration)
		}
	default:
		return NewAppError("CONFIG_ERROR", "LLM_PROVIDER must be one of: openai | gemini", ErrConfiguration)
	}
	if c.Pipeline.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "INVOICY_WORKERS must be positive", ErrConfiguration)
	}
	return nil
}
