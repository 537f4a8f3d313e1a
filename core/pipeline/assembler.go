package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/milankumarIS/swaram-agent-worker/core/controlplane"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"
)

const (
	STTModel = "saarika:v2.5"

	// autoDetectLanguage lets the STT model pick the spoken language.
	autoDetectLanguage = "unknown"

	DefaultEndpointingTimeout = 3 * time.Second
)

var ErrAssemblyFailed = errors.New("pipeline assembly failed")

type Assembler struct {
	engines            Engines
	voices             VoiceCatalog
	endpointingTimeout time.Duration
	logger             *slog.Logger
}

type AssemblerOption func(*Assembler)

func WithVoiceCatalog(voices VoiceCatalog) AssemblerOption {
	return func(a *Assembler) {
		if len(voices) > 0 {
			a.voices = voices
		}
	}
}

func WithEndpointingTimeout(timeout time.Duration) AssemblerOption {
	return func(a *Assembler) {
		if timeout > 0 {
			a.endpointingTimeout = timeout
		}
	}
}

func WithLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

func NewAssembler(engines Engines, opts ...AssemblerOption) *Assembler {
	if engines == nil {
		engines = NewDefaultEngines()
	}

	a := &Assembler{
		engines:            engines,
		voices:             DefaultVoiceCatalog(),
		endpointingTimeout: DefaultEndpointingTimeout,
		logger:             logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds the engines for one session from its agent config.
//
// Preemptive generation is always on and input noise cancellation always off.
// An unknown speaker falls back to the default voice; any missing required
// key fails the assembly.
func (a *Assembler) Assemble(ctx context.Context, config controlplane.AgentConfig) (*Pipeline, error) {
	ctx, span := tracer.Start(ctx, "assemble pipeline", trace.WithAttributes(attribute.String("agent.name", config.Name)))
	defer span.End()

	p, err := a.assemble(ctx, config)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return p, nil
}

func (a *Assembler) assemble(ctx context.Context, config controlplane.AgentConfig) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a.checkLanguage(ctx, "stt_language_code", config.STTLanguageCode)
	a.checkLanguage(ctx, "tts_language_code", config.TTSLanguageCode)

	voice, ok := a.voices.Resolve(config.Voice())
	if !ok {
		a.logger.WarnContext(ctx, "speaker is not compatible with bulbul:v2, falling back",
			"speaker", config.Voice(), "fallback", voice)
	}

	stt, err := a.engines.NewSpeechToText(ctx, STTConfig{
		APIKey:   config.SarvamAPIKey,
		Model:    STTModel,
		Language: config.STTLanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build speech-to-text: %w", err)
	}

	llm, err := a.engines.NewLLM(ctx, LLMConfig{
		APIKey:       config.LLMAPIKey,
		Model:        config.Model(),
		Instructions: config.SystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build llm: %w", err)
	}

	tts, err := a.engines.NewTextToSpeech(ctx, TTSConfig{
		APIKey:   config.SarvamAPIKey,
		Speaker:  voice,
		Language: config.TTSLanguageCode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build text-to-speech: %w", err)
	}

	return newPipeline(Components{
		SpeechToText: stt,
		LLM:          llm,
		TextToSpeech: tts,
		VAD:          a.engines.NewVAD(),
		TurnDetector: a.engines.NewTurnDetector(),
	}, Options{
		Speaker:              voice,
		PreemptiveGeneration: true,
		NoiseCancellation:    false,
		EndpointingTimeout:   a.endpointingTimeout,
	}, a.logger), nil
}

// checkLanguage warns about codes outside the CLDR tag set. Sarvam accepts
// some of them (od-IN), so the code is passed to the engines unchanged.
func (a *Assembler) checkLanguage(ctx context.Context, key, code string) {
	if code == autoDetectLanguage {
		return
	}
	if _, err := language.Parse(code); err != nil {
		a.logger.WarnContext(ctx, "unrecognised language code, passing it through",
			"key", key, "code", code, "error", err)
	}
}
