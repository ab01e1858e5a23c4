package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Ollama  OllamaConfig
	Storage StorageConfig
	API     APIConfig
	Worker  WorkerConfig
	Prompts PromptsConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type StorageConfig struct {
	DataDir string
}

type APIConfig struct {
	Token string
}

type WorkerConfig struct {
	PollInterval        string
	BackfillConcurrency int
}

type PromptsConfig struct {
	// Enabled gates gap prompt generation entirely.
	Enabled bool
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	dataDir := defaultDataDir()
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "phi3.5",
		},
		Storage: StorageConfig{
			DataDir: dataDir,
		},
		Worker: WorkerConfig{
			PollInterval:        "2s",
			BackfillConcurrency: 3,
		},
		Prompts: PromptsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: app.driftline) and the
// API token falls back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/driftline/config.json
// and the token falls back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (DRIFTLINE_*) override backend values on all
// platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		if tok, err := kc.Get("driftline", "api_token"); err == nil && tok != "" {
			cfg.API.Token = tok
		}
	}

	if cfg.API.Token == "" {
		msg := "missing required config: API token. " +
			"Set it via environment variable DRIFTLINE_API_TOKEN" +
			apiTokenHint()
		return Config{}, fmt.Errorf("%s", msg)
	}

	return cfg, nil
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
