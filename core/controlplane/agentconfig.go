package controlplane

import (
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultTTSVoice       = "anushka"
	DefaultLLMModel       = "gemini-2.5-flash"
	DefaultWelcomeMessage = "Hello! How can I help you?"
)

var ErrMissingConfigKey = errors.New("agent config is missing a required key")

// AgentConfig is the per-agent configuration served by the control plane.
//
// Secrets arrive decrypted; the value must never be logged as a whole.
type AgentConfig struct {
	Name            string `json:"name" jsonschema:"required"`
	SarvamAPIKey    string `json:"sarvam_api_key" jsonschema:"required"`
	LLMAPIKey       string `json:"llm_api_key" jsonschema:"required"`
	STTLanguageCode string `json:"stt_language_code" jsonschema:"required,example=hi-IN"`
	TTSLanguageCode string `json:"tts_language_code" jsonschema:"required,example=hi-IN"`
	SystemPrompt    string `json:"system_prompt" jsonschema:"required"`

	TTSVoice       string `json:"tts_voice,omitempty" jsonschema:"default=anushka"`
	LLMModel       string `json:"llm_model,omitempty" jsonschema:"default=gemini-2.5-flash"`
	WelcomeMessage string `json:"welcome_message,omitempty" jsonschema:"default=Hello! How can I help you?"`
}

// Validate reports every required key that is absent or empty.
func (c AgentConfig) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"name", c.Name},
		{"sarvam_api_key", c.SarvamAPIKey},
		{"llm_api_key", c.LLMAPIKey},
		{"stt_language_code", c.STTLanguageCode},
		{"tts_language_code", c.TTSLanguageCode},
		{"system_prompt", c.SystemPrompt},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfigKey, strings.Join(missing, ", "))
	}
	return nil
}

func (c AgentConfig) Voice() string {
	return valueOr(c.TTSVoice, DefaultTTSVoice)
}

func (c AgentConfig) Model() string {
	return valueOr(c.LLMModel, DefaultLLMModel)
}

func (c AgentConfig) Welcome() string {
	return valueOr(c.WelcomeMessage, DefaultWelcomeMessage)
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
