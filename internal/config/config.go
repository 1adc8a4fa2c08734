// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/RichardoC/rfp-chat/internal/db"
	"github.com/RichardoC/rfp-chat/internal/llm"
)

const (
	VariantDefault = "default"
	VariantBranded = "branded"
)

// SecretKeyName is the environment variable holding the provider API key.
const SecretKeyName = "GOOGLE_API_KEY"

type Branding struct {
	Variant    string
	Title      string
	HideChrome bool
	LogoURL    string
	Footer     string
}

type Config struct {
	Addr          string
	Provider      string
	Model         string
	OpenAIBaseURL string
	DBPath        string
	MaxUploadMB   int64
	SessionIdle   time.Duration
	APIKey        string
	Debug         bool
	Branding      Branding
}

// Load builds a Config from getenv, which is usually os.Getenv.
func Load(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Addr:          orDefault(getenv("RFPCHAT_ADDR"), ":8100"),
		Provider:      orDefault(getenv("RFPCHAT_PROVIDER"), llm.ProviderGoogleAI),
		Model:         orDefault(getenv("RFPCHAT_MODEL"), llm.DefaultModel),
		OpenAIBaseURL: getenv("RFPCHAT_OPENAI_BASE_URL"),
		DBPath:        orDefault(getenv("RFPCHAT_DB"), db.MemoryPath),
		MaxUploadMB:   20,
		SessionIdle:   2 * time.Hour,
		APIKey:        getenv(SecretKeyName),
		Debug:         getenv("RFPCHAT_DEBUG") != "",
	}

	if v := getenv("RFPCHAT_MAX_UPLOAD_MB"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RFPCHAT_MAX_UPLOAD_MB %q", v)
		}
		cfg.MaxUploadMB = n
	}
	if v := getenv("RFPCHAT_SESSION_IDLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RFPCHAT_SESSION_IDLE %q", v)
		}
		cfg.SessionIdle = d
	}

	switch cfg.Provider {
	case llm.ProviderGoogleAI, llm.ProviderOpenAI:
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	variant := orDefault(getenv("RFPCHAT_VARIANT"), VariantDefault)
	switch variant {
	case VariantDefault:
		cfg.Branding = Branding{Variant: variant, Title: "RFP Automation MVP"}
	case VariantBranded:
		cfg.Branding = Branding{
			Variant:    variant,
			Title:      "RFP Automation MVP",
			HideChrome: true,
			LogoURL:    getenv("RFPCHAT_LOGO_URL"),
			Footer:     getenv("RFPCHAT_FOOTER"),
		}
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}

	return cfg, nil
}

// FromEnv is Load with the process environment.
func FromEnv() (*Config, error) {
	return Load(os.Getenv)
}

func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
