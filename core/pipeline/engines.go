package pipeline

import (
	"context"
	"iter"

	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/milankumarIS/swaram-agent-worker/core/llms"
	"github.com/milankumarIS/swaram-agent-worker/core/llms/gemini"
	"github.com/milankumarIS/swaram-agent-worker/core/speechtotext"
	sarvamstt "github.com/milankumarIS/swaram-agent-worker/core/speechtotext/sarvam"
	"github.com/milankumarIS/swaram-agent-worker/core/texttospeech"
	sarvamtts "github.com/milankumarIS/swaram-agent-worker/core/texttospeech/sarvam"
	"github.com/milankumarIS/swaram-agent-worker/core/turndetection"
	"github.com/milankumarIS/swaram-agent-worker/core/vad"
)

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close(ctx context.Context) error
}

type LLM interface {
	PromptWithStream(ctx context.Context, opts ...llms.StreamingPromptOption) iter.Seq2[string, error]
}

type TextToSpeech interface {
	NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error)
}

type VAD interface {
	Process(frame []byte, encoding audio.EncodingInfo) (speaking, changed bool)
}

type TurnDetector interface {
	IsEndOfTurn(history []llms.Message, pending string) bool
}

// AudioTransport is the audio side of the room the pipeline is bound to.
type AudioTransport interface {
	EncodingInfo() audio.EncodingInfo
	// StreamAudio registers onAudio for inbound frames and returns once
	// streaming has started.
	StreamAudio(ctx context.Context, onAudio func(frame []byte)) error
	SendAudio(frame []byte) error
	// ClearAudio drops outbound audio that has not been played yet.
	ClearAudio()
}

type STTConfig struct {
	APIKey   string
	Model    string
	Language string
}

type LLMConfig struct {
	APIKey       string
	Model        string
	Instructions string
}

type TTSConfig struct {
	APIKey   string
	Speaker  string
	Language string
}

// Engines constructs the per-session engine instances.
type Engines interface {
	NewSpeechToText(ctx context.Context, config STTConfig) (SpeechToText, error)
	NewLLM(ctx context.Context, config LLMConfig) (LLM, error)
	NewTextToSpeech(ctx context.Context, config TTSConfig) (TextToSpeech, error)
	NewVAD() VAD
	NewTurnDetector() TurnDetector
}

// DefaultEngines builds Sarvam speech engines, a Gemini LLM, the energy VAD
// and the multilingual turn detector.
type DefaultEngines struct {
	VADOptions vad.Options
}

func NewDefaultEngines() *DefaultEngines {
	return &DefaultEngines{VADOptions: vad.DefaultOptions()}
}

func (e *DefaultEngines) NewSpeechToText(_ context.Context, config STTConfig) (SpeechToText, error) {
	client, err := sarvamstt.NewTranscriptionClient(config.APIKey, config.Language, sarvamstt.WithModel(config.Model))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (e *DefaultEngines) NewLLM(ctx context.Context, config LLMConfig) (LLM, error) {
	client, err := gemini.NewClient(ctx, config.APIKey, config.Model, config.Instructions)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (e *DefaultEngines) NewTextToSpeech(_ context.Context, config TTSConfig) (TextToSpeech, error) {
	client, err := sarvamtts.NewTextToSpeechClient(config.APIKey, config.Speaker, config.Language)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (e *DefaultEngines) NewVAD() VAD {
	return vad.NewEnergyDetector(e.VADOptions)
}

func (e *DefaultEngines) NewTurnDetector() TurnDetector {
	return turndetection.NewMultilingualModel()
}
