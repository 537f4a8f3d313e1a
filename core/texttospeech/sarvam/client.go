package sarvam

import (
	"fmt"
	"slices"
)

const (
	DefaultModel   = "bulbul:v2"
	DefaultSpeaker = "anushka"
	defaultBaseURL = "wss://api.sarvam.ai/text-to-speech/ws"
)

// GetAvailableSpeakers returns the speakers bulbul:v2 can voice.
func GetAvailableSpeakers() []string {
	return []string{"anushka", "manisha", "vidya", "arya", "abhilash", "karun", "hitesh"}
}

type TextToSpeechClient struct {
	apiKey   string
	model    string
	speaker  string
	language string
	baseURL  string
}

type TextToSpeechClientOption func(*TextToSpeechClient)

func WithModel(model string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.model = model }
}

func WithBaseURL(baseURL string) TextToSpeechClientOption {
	return func(c *TextToSpeechClient) { c.baseURL = baseURL }
}

func NewTextToSpeechClient(apiKey, speaker, language string, opts ...TextToSpeechClientOption) (*TextToSpeechClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sarvam api key is required")
	}
	if language == "" {
		return nil, fmt.Errorf("sarvam target language is required")
	}

	client := &TextToSpeechClient{
		apiKey:   apiKey,
		model:    DefaultModel,
		speaker:  DefaultSpeaker,
		language: language,
		baseURL:  defaultBaseURL,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.model == DefaultModel && !slices.Contains(GetAvailableSpeakers(), speaker) {
		return nil, fmt.Errorf("speaker %q is not available for %s", speaker, client.model)
	}
	client.speaker = speaker

	return client, nil
}

func (c *TextToSpeechClient) Speaker() string  { return c.speaker }
func (c *TextToSpeechClient) Language() string { return c.language }
func (c *TextToSpeechClient) Model() string    { return c.model }
