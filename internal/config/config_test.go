package config

import (
	"testing"
	"time"

	"github.com/RichardoC/rfp-chat/internal/db"
	"github.com/RichardoC/rfp-chat/internal/llm"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(env(nil))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Addr != ":8100" {
		t.Errorf("got addr %q", cfg.Addr)
	}
	if cfg.Provider != llm.ProviderGoogleAI || cfg.Model != "gemini-2.5-flash" {
		t.Errorf("got provider %q model %q", cfg.Provider, cfg.Model)
	}
	if cfg.DBPath != db.MemoryPath {
		t.Errorf("got db path %q", cfg.DBPath)
	}
	if cfg.MaxUploadBytes() != 20<<20 {
		t.Errorf("got upload limit %d", cfg.MaxUploadBytes())
	}
	if cfg.APIKey != "" {
		t.Error("no key expected")
	}
	if cfg.Branding.Variant != VariantDefault || cfg.Branding.HideChrome {
		t.Errorf("unexpected branding: %+v", cfg.Branding)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(env(map[string]string{
		"GOOGLE_API_KEY":          "secret",
		"RFPCHAT_ADDR":            ":9000",
		"RFPCHAT_PROVIDER":        "openai",
		"RFPCHAT_MODEL":           "llama3.1:8b",
		"RFPCHAT_OPENAI_BASE_URL": "http://localhost:11434/v1/",
		"RFPCHAT_MAX_UPLOAD_MB":   "5",
		"RFPCHAT_SESSION_IDLE":    "30m",
		"RFPCHAT_VARIANT":         "branded",
		"RFPCHAT_LOGO_URL":        "/logo.png",
		"RFPCHAT_FOOTER":          "Powered by Acme",
	}))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.APIKey != "secret" || cfg.Addr != ":9000" || cfg.Provider != "openai" || cfg.Model != "llama3.1:8b" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxUploadBytes() != 5<<20 || cfg.SessionIdle != 30*time.Minute {
		t.Errorf("limits not applied: %+v", cfg)
	}
	b := cfg.Branding
	if !b.HideChrome || b.LogoURL != "/logo.png" || b.Footer != "Powered by Acme" {
		t.Errorf("unexpected branding: %+v", b)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"provider":    {"RFPCHAT_PROVIDER": "bedrock"},
		"variant":     {"RFPCHAT_VARIANT": "neon"},
		"upload size": {"RFPCHAT_MAX_UPLOAD_MB": "-1"},
		"idle":        {"RFPCHAT_SESSION_IDLE": "soon"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(env(vars)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
