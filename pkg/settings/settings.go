// Package settings resolves the process configuration. Values follow a
// fixed precedence: built-in defaults, then environment variables (with a
// best-effort .env load for local runs), then the optional YAML settings
// file. Provider credentials stay exactly as supplied; model names and
// limit defaults are each connector's business.
package settings

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/flowmuse/flowmuse/pkg/models"
)

// Provider names accepted by FLOWMUSE_PROVIDER and the settings file.
const (
	ProviderOpenAI    = "openai"
	ProviderAzure     = "azure"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Event bus implementations accepted by FLOWMUSE_EVENT_BUS.
const (
	EventBusGoChannel = "gochannel"
	EventBusKafka     = "kafka"
)

// Settings is the resolved process configuration.
type Settings struct {
	Provider        string `envconfig:"FLOWMUSE_PROVIDER"         default:"openai"                   yaml:"provider"`
	Port            int    `envconfig:"FLOWMUSE_PORT"             default:"3000"                     yaml:"port"`
	SnapshotPath    string `envconfig:"FLOWMUSE_SNAPSHOT_PATH"    default:"file://./data/flows.json" yaml:"snapshot_path"`
	CacheURL        string `envconfig:"FLOWMUSE_CACHE_URL"        default:"memory://"                yaml:"cache_url"`
	RegistryURL     string `envconfig:"FLOWMUSE_REGISTRY_URL"     yaml:"registry_url"`
	MirrorURL       string `envconfig:"FLOWMUSE_MIRROR_URL"       yaml:"mirror_url"`
	EventBus        string `envconfig:"FLOWMUSE_EVENT_BUS"        default:"gochannel"                yaml:"event_bus"`
	RefreshSchedule string `envconfig:"FLOWMUSE_REFRESH_SCHEDULE" yaml:"refresh_schedule"`
	LogLevel        string `envconfig:"FLOWMUSE_LOG_LEVEL"        default:"info"                     yaml:"log_level"`

	OpenAI    OpenAISettings    `yaml:"openai"`
	Azure     AzureSettings     `yaml:"azure"`
	Anthropic AnthropicSettings `yaml:"anthropic"`
	Google    GoogleSettings    `yaml:"google"`
}

// OpenAISettings carries credentials and limits for OpenAI-compatible
// endpoints.
type OpenAISettings struct {
	APIKey              string `envconfig:"OPENAI_API_KEY"               yaml:"api_key"`
	Model               string `envconfig:"OPENAI_MODEL"                 yaml:"model"`
	BaseURL             string `envconfig:"OPENAI_BASE_URL"              yaml:"base_url"`
	Organization        string `envconfig:"OPENAI_ORGANIZATION"          yaml:"organization"`
	MaxTokens           int    `envconfig:"OPENAI_MAX_TOKENS"            yaml:"max_tokens"`
	MaxCompletionTokens int    `envconfig:"OPENAI_MAX_COMPLETION_TOKENS" yaml:"max_completion_tokens"`
	MaxContextChars     int    `envconfig:"OPENAI_MAX_CONTEXT_CHARS"     yaml:"max_context_chars"`
}

// AzureSettings carries credentials and limits for Azure-hosted OpenAI
// deployments.
type AzureSettings struct {
	APIKey          string `envconfig:"AZURE_OPENAI_API_KEY"           yaml:"api_key"`
	Endpoint        string `envconfig:"AZURE_OPENAI_ENDPOINT"          yaml:"endpoint"`
	Deployment      string `envconfig:"AZURE_OPENAI_DEPLOYMENT"        yaml:"deployment"`
	APIVersion      string `envconfig:"AZURE_OPENAI_API_VERSION"       yaml:"api_version"`
	MaxTokens       int    `envconfig:"AZURE_OPENAI_MAX_TOKENS"        yaml:"max_tokens"`
	MaxContextChars int    `envconfig:"AZURE_OPENAI_MAX_CONTEXT_CHARS" yaml:"max_context_chars"`
}

// AnthropicSettings carries credentials and limits for the Anthropic API.
type AnthropicSettings struct {
	APIKey          string `envconfig:"ANTHROPIC_API_KEY"           yaml:"api_key"`
	Model           string `envconfig:"ANTHROPIC_MODEL"             yaml:"model"`
	Version         string `envconfig:"ANTHROPIC_VERSION"           yaml:"version"`
	MaxTokens       int    `envconfig:"ANTHROPIC_MAX_TOKENS"        yaml:"max_tokens"`
	MaxContextChars int    `envconfig:"ANTHROPIC_MAX_CONTEXT_CHARS" yaml:"max_context_chars"`
}

// GoogleSettings carries credentials and limits for the Google
// Generative Language API.
type GoogleSettings struct {
	APIKey          string `envconfig:"GOOGLE_API_KEY"           yaml:"api_key"`
	Model           string `envconfig:"GOOGLE_MODEL"             yaml:"model"`
	MaxTokens       int    `envconfig:"GOOGLE_MAX_TOKENS"        yaml:"max_tokens"`
	MaxContextChars int    `envconfig:"GOOGLE_MAX_CONTEXT_CHARS" yaml:"max_context_chars"`
}

// LoadDotenv loads the .env file when present. Local runs keep
// credentials there; deployed processes get real environment variables,
// so a missing file only logs.
func LoadDotenv(logger *slog.Logger) {
	if err := godotenv.Load(".env"); err != nil {
		logger.Warn("Could not load .env file", "error", err)
	}
}

// Load resolves settings from the environment and, when path is
// non-empty, overlays the YAML settings file on top. Keys absent from
// the file keep their environment or default values.
func Load(path string) (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if path == "" {
		return &s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML settings: %w", err)
	}

	return &s, nil
}

// Validate checks the fields every boot needs regardless of provider.
// Provider credentials are deliberately not checked here: an
// unconfigured provider is reported per-request by its own connector.
func (s *Settings) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("port %d is out of range", s.Port)
	}

	if s.Provider == "" {
		return fmt.Errorf("provider is required")
	}

	switch s.Provider {
	case ProviderOpenAI, ProviderAzure, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("unknown provider '%s'", s.Provider)
	}

	switch s.EventBus {
	case EventBusGoChannel, EventBusKafka:
	default:
		return fmt.Errorf("unknown event bus '%s' (expected %s or %s)", s.EventBus, EventBusGoChannel, EventBusKafka)
	}

	return nil
}

// ConnectorConfig assembles the ambient configuration for the named
// provider. Only user-supplied values travel; connectors fill their own
// model and limit defaults.
func (s *Settings) ConnectorConfig(provider string) (models.ConnectorConfig, error) {
	switch provider {
	case ProviderOpenAI:
		return models.ConnectorConfig{
			Provider:            provider,
			APIKey:              s.OpenAI.APIKey,
			Model:               s.OpenAI.Model,
			BaseURL:             s.OpenAI.BaseURL,
			Organization:        s.OpenAI.Organization,
			MaxTokens:           s.OpenAI.MaxTokens,
			MaxCompletionTokens: s.OpenAI.MaxCompletionTokens,
			MaxContextChars:     s.OpenAI.MaxContextChars,
		}, nil
	case ProviderAzure:
		return models.ConnectorConfig{
			Provider:        provider,
			APIKey:          s.Azure.APIKey,
			Endpoint:        s.Azure.Endpoint,
			Deployment:      s.Azure.Deployment,
			APIVersion:      s.Azure.APIVersion,
			MaxTokens:       s.Azure.MaxTokens,
			MaxContextChars: s.Azure.MaxContextChars,
		}, nil
	case ProviderAnthropic:
		return models.ConnectorConfig{
			Provider:         provider,
			APIKey:           s.Anthropic.APIKey,
			Model:            s.Anthropic.Model,
			AnthropicVersion: s.Anthropic.Version,
			MaxTokens:        s.Anthropic.MaxTokens,
			MaxContextChars:  s.Anthropic.MaxContextChars,
		}, nil
	case ProviderGoogle:
		return models.ConnectorConfig{
			Provider:        provider,
			APIKey:          s.Google.APIKey,
			Model:           s.Google.Model,
			MaxTokens:       s.Google.MaxTokens,
			MaxContextChars: s.Google.MaxContextChars,
		}, nil
	default:
		return models.ConnectorConfig{}, fmt.Errorf("unknown provider '%s'", provider)
	}
}
