package models

import "encoding/json"

// ConnectorConfig is the provider connection configuration. One struct
// covers all providers; each connector validates the subset it needs and
// ignores the rest. Per-request overrides decode into the same shape via
// mapstructure before being merged over the ambient configuration.
type ConnectorConfig struct {
	Provider            string `json:"provider"                      mapstructure:"provider"`
	APIKey              string `json:"apiKey,omitempty"              mapstructure:"apiKey"`
	Model               string `json:"model,omitempty"               mapstructure:"model"`
	BaseURL             string `json:"baseUrl,omitempty"             mapstructure:"baseUrl"`
	Organization        string `json:"organization,omitempty"        mapstructure:"organization"`
	Endpoint            string `json:"endpoint,omitempty"            mapstructure:"endpoint"`
	Deployment          string `json:"deployment,omitempty"          mapstructure:"deployment"`
	APIVersion          string `json:"apiVersion,omitempty"          mapstructure:"apiVersion"`
	AnthropicVersion    string `json:"anthropicVersion,omitempty"    mapstructure:"anthropicVersion"`
	MaxTokens           int    `json:"maxTokens,omitempty"           mapstructure:"maxTokens"`
	MaxCompletionTokens int    `json:"maxCompletionTokens,omitempty" mapstructure:"maxCompletionTokens"`
	MaxContextChars     int    `json:"maxContextChars,omitempty"     mapstructure:"maxContextChars"`
}

// Configured reports whether the config carries a credential.
func (c ConnectorConfig) Configured() bool {
	return c.APIKey != ""
}

// Masked returns a copy safe for logs and API responses: the credential is
// reduced to its last four characters.
func (c ConnectorConfig) Masked() ConnectorConfig {
	masked := c
	masked.APIKey = maskSecret(c.APIKey)

	return masked
}

// MarshalJSON always masks the credential. Raw keys never leave the process
// through serialization.
func (c ConnectorConfig) MarshalJSON() ([]byte, error) {
	type alias ConnectorConfig

	return json.Marshal(alias(c.Masked()))
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}

	if len(secret) <= 4 {
		return "****"
	}

	return "****" + secret[len(secret)-4:]
}

// ValidationResult is the outcome of connector configuration validation.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Invalid builds a failed validation result from the given messages.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// ValidConfig is the successful validation result.
func ValidConfig() ValidationResult {
	return ValidationResult{Valid: true}
}
