package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader reads configuration. Tests override Lookup and ReadFile to inject
// deterministic environments and files.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load reads the YAML file at path, or LIVCAP_CONFIG, or the default config
// path when it exists, applies environment overrides, and validates.
func (l Loader) Load(path string) (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	var cfg Config
	explicit := path != ""
	if !explicit {
		if v, ok := l.Lookup("LIVCAP_CONFIG"); ok && strings.TrimSpace(v) != "" {
			path, explicit = strings.TrimSpace(v), true
		} else {
			path = DefaultConfigPath()
		}
	}
	if err := l.applyFile(path, explicit, &cfg); err != nil {
		return Config{}, err
	}

	overrideString(l.Lookup, "LIVCAP_SOCKET", &cfg.Socket)
	overrideString(l.Lookup, "LIVCAP_DB", &cfg.Database)
	overrideString(l.Lookup, "LIVCAP_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "LIVCAP_RECOGNIZER_URL", &cfg.Recognizer.URL)
	overrideString(l.Lookup, "LIVCAP_RECOGNIZER_TOKEN", &cfg.Recognizer.Token)
	overrideString(l.Lookup, "LIVCAP_TRANSLATION_BACKEND", &cfg.Translation.Backend)
	overrideString(l.Lookup, "LIVCAP_TRANSLATION_BASE_URL", &cfg.Translation.BaseURL)
	overrideString(l.Lookup, "LIVCAP_TRANSLATION_MODEL", &cfg.Translation.Model)
	overrideString(l.Lookup, "LIVCAP_TARGET_LANGUAGE", &cfg.Translation.TargetLanguage)
	overrideString(l.Lookup, "OPENAI_API_KEY", &cfg.Translation.OpenAIAPIKey)
	overrideString(l.Lookup, "GEMINI_API_KEY", &cfg.Translation.GeminiAPIKey)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (l Loader) applyFile(path string, required bool, cfg *Config) error {
	data, err := l.ReadFile(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}
