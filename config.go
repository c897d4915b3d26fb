package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".notepilot"

// Embedded defaults, written out to the config directory on first run so
// users can customize them.
//
//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/content_strategy.md
var defaultStrategy string

// Settings is the YAML configuration structure.
type Settings struct {
	OutputDirectory string `yaml:"output_directory"`
	Theme           string `yaml:"theme"`
	Provider        struct {
		Model            string `yaml:"model"`
		IdeasMaxTokens   int    `yaml:"ideas_max_tokens"`
		ArticleMaxTokens int    `yaml:"article_max_tokens"`
		TimeoutSeconds   int    `yaml:"timeout_seconds"`
	} `yaml:"provider"`
	Store struct {
		Marker        string `yaml:"marker"`
		SelectionFile string `yaml:"selection_file"`
		HistoryFile   string `yaml:"history_file"`
		HistoryLimit  int    `yaml:"history_limit"`
	} `yaml:"store"`
	Email struct {
		SMTPHost string `yaml:"smtp_host"`
		SMTPPort int    `yaml:"smtp_port"`
	} `yaml:"email"`
	Drive struct {
		RootFolder string `yaml:"root_folder"`
	} `yaml:"drive"`
	Categories []string `yaml:"categories"`
}

// getConfigPath returns the path to a config file in the .notepilot directory.
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// loadSettings loads settings from the given path, falling back to the
// embedded defaults when the file does not exist. An explicit path that is
// missing or malformed is an error; the default path silently falls back.
func loadSettings(path string, explicit bool) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if explicit {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("settings file missing: %s", path)}
		}
		data = []byte(defaultSettings)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	return &settings, nil
}

// loadStrategy loads the content-strategy document embedded in every prompt.
// Order: explicit override path, customized copy in .notepilot/, embedded
// default.
func loadStrategy(overridePath string) (string, error) {
	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return "", &ConfigurationError{Reason: fmt.Sprintf("strategy file missing: %s", overridePath)}
		}
		return string(data), nil
	}
	if data, err := os.ReadFile(getConfigPath("content_strategy.md")); err == nil {
		return string(data), nil
	}
	return defaultStrategy, nil
}

// ensureConfigExists creates the config directory and writes the default
// settings and strategy files if they don't exist.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaults := map[string]string{
		"settings.yaml":       defaultSettings,
		"content_strategy.md": defaultStrategy,
	}
	for name, content := range defaults {
		path := getConfigPath(name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				return fmt.Errorf("writing default %s: %w", name, err)
			}
		}
	}
	return nil
}

// Secrets holds the opaque credentials read from the environment. A local
// .env file is loaded first when present.
type Secrets struct {
	OpenAIKey         string
	GitHubToken       string
	WebhookURL        string
	EmailAddress      string
	EmailPassword     string
	GoogleCredentials string
	ContentTheme      string
}

func loadSecrets() *Secrets {
	_ = godotenv.Load() // a missing .env is fine; the environment wins anyway
	return &Secrets{
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		GitHubToken:       os.Getenv("GITHUB_TOKEN"),
		WebhookURL:        os.Getenv("DISCORD_WEBHOOK_URL"),
		EmailAddress:      os.Getenv("EMAIL_ADDRESS"),
		EmailPassword:     os.Getenv("EMAIL_PASSWORD"),
		GoogleCredentials: os.Getenv("GOOGLE_CREDENTIALS"),
		ContentTheme:      os.Getenv("CONTENT_THEME"),
	}
}

// requirePipeline checks the secrets both daily jobs cannot run without.
// Notification, email and Drive credentials stay optional: those channels
// are best-effort.
func (s *Secrets) requirePipeline() error {
	if s.OpenAIKey == "" {
		return &ConfigurationError{Reason: "OPENAI_API_KEY is not set"}
	}
	if s.GitHubToken == "" {
		return &ConfigurationError{Reason: "GITHUB_TOKEN is not set"}
	}
	return nil
}

// emailConfigured reports whether the email delivery channel has credentials.
func (s *Secrets) emailConfigured() bool {
	return s.EmailAddress != "" && s.EmailPassword != ""
}

// theme resolves the content theme: environment overrides settings.
func (s *Secrets) theme(settings *Settings) string {
	if s.ContentTheme != "" {
		return s.ContentTheme
	}
	return settings.Theme
}
