package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	OpenRouter OpenRouterConfig
	Governor   GovernorConfig
	Retry      RetryConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type OpenRouterConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	SiteURL  string
	SiteName string
}

type GovernorConfig struct {
	MinInterval   time.Duration
	CourtesyDelay time.Duration
}

type RetryConfig struct {
	MaxAttempts int
}

type LogConfig struct {
	Level string
}

// HasAPIKey reports whether an OpenRouter key was found anywhere.
func (c Config) HasAPIKey() bool {
	return strings.TrimSpace(c.OpenRouter.APIKey) != ""
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		OpenRouter: OpenRouterConfig{
			BaseURL:  "https://openrouter.ai/api/v1",
			Model:    "google/gemini-2.0-flash-exp:free",
			SiteURL:  "https://civicbot.example.com",
			SiteName: "CivicBot",
		},
		Governor: GovernorConfig{
			MinInterval:   2000 * time.Millisecond,
			CourtesyDelay: 500 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// apiKeyEnvFallback is read when CIVICBOT_OPENROUTER_API_KEY is unset.
const apiKeyEnvFallback = "OPENROUTER_API_KEY"

// Load reads configuration from the platform-native backend, a .env file
// in the working directory, environment variables, and the secret store.
//
// On macOS the backend is UserDefaults (domain: com.civicbot.app) and the
// API key may live in the Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/civicbot/config.json
// and the API key may live in $XDG_DATA_HOME/civicbot/secrets.json.
//
// Values from .env never replace variables already set in the environment.
// Environment variables (CIVICBOT_*) override backend values on all
// platforms. A missing API key is not an error; callers check HasAPIKey.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{}, []string{".env"})
}

// keychain abstracts secret storage for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain, envFiles []string) (Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return Config{}, err
	}

	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.OpenRouter.APIKey == "" {
		cfg.OpenRouter.APIKey = os.Getenv(apiKeyEnvFallback)
	}
	if cfg.OpenRouter.APIKey == "" {
		if key, err := kc.Get(secretService, secretAccount); err == nil && key != "" {
			cfg.OpenRouter.APIKey = key
		}
	}

	return cfg, nil
}

func loadEnvFiles(paths []string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

const (
	secretService = "civicbot"
	secretAccount = "openrouter_api_key"
)

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// MissingKeyHint tells the user where an API key can be provided.
func MissingKeyHint() string {
	return "set CIVICBOT_OPENROUTER_API_KEY or OPENROUTER_API_KEY (a .env file works too)" + apiKeyHint()
}
