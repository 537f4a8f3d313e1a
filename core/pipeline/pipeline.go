package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/milankumarIS/swaram-agent-worker/core/llms"
	"github.com/milankumarIS/swaram-agent-worker/core/speechtotext"
	"github.com/milankumarIS/swaram-agent-worker/core/texttospeech"
)

var (
	ErrAlreadyStarted = errors.New("pipeline already started")
	ErrNotStarted     = errors.New("pipeline not started")
)

type Components struct {
	SpeechToText SpeechToText
	LLM          LLM
	TextToSpeech TextToSpeech
	VAD          VAD
	TurnDetector TurnDetector
}

type Options struct {
	Speaker string
	// PreemptiveGeneration starts generating a reply on every final
	// transcript, before the turn is known to be complete.
	PreemptiveGeneration bool
	NoiseCancellation    bool
	// EndpointingTimeout commits a turn the detector did not consider
	// complete.
	EndpointingTimeout time.Duration
}

// Pipeline is one session's running set of engines.
type Pipeline struct {
	components Components
	options    Options
	logger     *slog.Logger

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	transport   AudioTransport
	history     []llms.Message
	pendingUser string
	speculative *reply
	speaking    *reply
	commitTimer *time.Timer

	closeOnce sync.Once

	observersMu    sync.RWMutex
	userObservers  []func(text string)
	agentObservers []func(text string)
}

func newPipeline(components Components, options Options, l *slog.Logger) *Pipeline {
	if options.EndpointingTimeout <= 0 {
		options.EndpointingTimeout = DefaultEndpointingTimeout
	}
	if l == nil {
		l = logger
	}
	return &Pipeline{components: components, options: options, logger: l}
}

func (p *Pipeline) Options() Options { return p.options }

// OnUserTranscript registers an observer for final user transcripts.
// Observers run on the engine's goroutine and must not block.
func (p *Pipeline) OnUserTranscript(observer func(text string)) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.userObservers = append(p.userObservers, observer)
}

// OnAgentTranscript registers an observer for the text of each agent reply.
// Observers must not block.
func (p *Pipeline) OnAgentTranscript(observer func(text string)) {
	p.observersMu.Lock()
	defer p.observersMu.Unlock()
	p.agentObservers = append(p.agentObservers, observer)
}

func (p *Pipeline) History() []llms.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	history := make([]llms.Message, len(p.history))
	copy(history, p.history)
	return history
}

// Start binds the pipeline to the transport and begins listening.
func (p *Pipeline) Start(ctx context.Context, transport AudioTransport) error {
	ctx, span := tracer.Start(ctx, "start pipeline")
	defer span.End()

	p.mu.Lock()
	if p.ctx != nil {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.transport = transport
	runCtx := p.ctx
	p.mu.Unlock()

	if err := p.components.SpeechToText.Transcribe(runCtx,
		speechtotext.WithTranscriptionCallback(p.onUserTranscript),
		speechtotext.WithSpeechStartedCallback(p.interrupt),
		speechtotext.WithErrorCallback(func(err error) {
			p.logger.WarnContext(runCtx, "speech-to-text stream error", "error", err)
		}),
		speechtotext.WithEncodingInfo(transport.EncodingInfo()),
	); err != nil {
		return fmt.Errorf("failed to start speech-to-text: %w", err)
	}

	if err := transport.StreamAudio(runCtx, p.onInputAudio); err != nil {
		return fmt.Errorf("failed to stream transport audio: %w", err)
	}

	return nil
}

// GenerateReply speaks one reply steered by instructions and returns once it
// has been spoken, interrupted or failed.
func (p *Pipeline) GenerateReply(ctx context.Context, instructions string) error {
	p.mu.Lock()
	if p.ctx == nil {
		p.mu.Unlock()
		return ErrNotStarted
	}
	r := p.startReply(p.historyLocked(), instructions)
	p.mu.Unlock()

	stop := context.AfterFunc(ctx, r.cancel)
	defer stop()

	return p.speak(r)
}

// Close stops any reply in progress and releases the engines.
func (p *Pipeline) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		if p.cancel != nil {
			p.cancel()
		}
		if p.commitTimer != nil {
			p.commitTimer.Stop()
		}
		p.mu.Unlock()

		if closeErr := p.components.SpeechToText.Close(ctx); closeErr != nil {
			err = fmt.Errorf("failed to close speech-to-text: %w", closeErr)
		}
	})
	return err
}

func (p *Pipeline) onInputAudio(frame []byte) {
	if speaking, changed := p.components.VAD.Process(frame, p.transport.EncodingInfo()); changed && speaking {
		p.interrupt()
	}

	if err := p.components.SpeechToText.SendAudio(frame); err != nil {
		p.logger.Debug("failed to forward audio to speech-to-text", "error", err)
	}
}

func (p *Pipeline) onUserTranscript(text string) {
	p.emit(p.userTranscriptObservers(), text)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil || p.ctx.Err() != nil {
		return
	}

	p.pendingUser = strings.TrimSpace(p.pendingUser + " " + text)
	history := p.historyLocked()

	if p.options.PreemptiveGeneration {
		if p.speculative != nil {
			p.speculative.cancel()
		}
		p.speculative = p.startReply(append(history, llms.UserMessage(p.pendingUser)), "")
	}

	if p.components.TurnDetector.IsEndOfTurn(history, p.pendingUser) {
		p.commitLocked()
		return
	}

	if p.commitTimer != nil {
		p.commitTimer.Stop()
	}
	p.commitTimer = time.AfterFunc(p.options.EndpointingTimeout, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.commitLocked()
	})
}

// commitLocked ends the user's turn and speaks the reply to it, reusing the
// speculative reply when it was generated for the same input.
func (p *Pipeline) commitLocked() {
	if p.pendingUser == "" || p.ctx.Err() != nil {
		return
	}
	if p.commitTimer != nil {
		p.commitTimer.Stop()
		p.commitTimer = nil
	}

	pending := p.pendingUser
	p.pendingUser = ""

	r := p.speculative
	p.speculative = nil
	if r == nil || r.input != pending || r.ctx.Err() != nil {
		if r != nil {
			r.cancel()
		}
		r = p.startReply(append(p.historyLocked(), llms.UserMessage(pending)), "")
	}
	p.history = append(p.history, llms.UserMessage(pending))

	if p.speaking != nil {
		p.speaking.cancel()
		p.transport.ClearAudio()
	}

	go func() {
		if err := p.speak(r); err != nil {
			p.logger.Warn("failed to speak reply", "error", err)
		}
	}()
}

func (p *Pipeline) interrupt() {
	p.mu.Lock()
	r := p.speaking
	p.speaking = nil
	p.mu.Unlock()

	if r != nil {
		r.cancel()
		p.transport.ClearAudio()
	}
}

type reply struct {
	// input is the user text the reply answers, empty for instructed replies.
	input  string
	ctx    context.Context
	cancel context.CancelFunc
	chunks chan string
	// err is written before chunks is closed.
	err error
}

func (p *Pipeline) startReply(history []llms.Message, instructions string) *reply {
	ctx, cancel := context.WithCancel(p.ctx)
	r := &reply{ctx: ctx, cancel: cancel, chunks: make(chan string, 64)}
	if n := len(history); n > 0 && history[n-1].Role == llms.MessageRoleUser && instructions == "" {
		r.input = history[n-1].Content
	}

	go func() {
		defer close(r.chunks)
		for chunk, err := range p.components.LLM.PromptWithStream(ctx,
			llms.WithMessages(history...),
			llms.WithInstructions(instructions),
		) {
			if err != nil {
				r.err = err
				return
			}
			select {
			case r.chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return r
}

func (p *Pipeline) speak(r *reply) error {
	defer r.cancel()

	p.mu.Lock()
	p.speaking = r
	transport := p.transport
	p.mu.Unlock()

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	generator, err := p.components.TextToSpeech.NewSpeechGenerator(r.ctx,
		texttospeech.WithSpeechAudioCallback(func(chunk []byte) {
			if r.ctx.Err() != nil {
				return
			}
			if err := transport.SendAudio(chunk); err != nil {
				p.logger.Debug("failed to send speech to transport", "error", err)
			}
		}),
		texttospeech.WithSpeechEndedCallback(finish),
		texttospeech.WithErrorCallback(func(err error) {
			p.logger.Warn("text-to-speech stream error", "error", err)
			finish()
		}),
		texttospeech.WithEncodingInfo(transport.EncodingInfo()),
	)
	if err != nil {
		p.releaseSpeaking(r)
		return fmt.Errorf("failed to open speech generator: %w", err)
	}
	defer generator.Close()

	var text strings.Builder
	for chunk := range r.chunks {
		text.WriteString(chunk)
		if err := generator.SendText(chunk); err != nil {
			p.logger.Debug("failed to send text to speech generator", "error", err)
			r.cancel()
		}
	}

	if r.ctx.Err() == nil {
		if err := generator.EndOfText(); err == nil {
			select {
			case <-done:
			case <-r.ctx.Done():
			}
		}
	}
	interrupted := r.ctx.Err() != nil
	if interrupted {
		_ = generator.Cancel()
	}

	p.releaseSpeaking(r)

	// An interrupted reply was never fully heard, so it is neither remembered
	// nor shown.
	spoken := strings.TrimSpace(text.String())
	if !interrupted && spoken != "" {
		p.mu.Lock()
		p.history = append(p.history, llms.AssistantMessage(spoken))
		p.mu.Unlock()
		p.emit(p.agentTranscriptObservers(), spoken)
	}

	if r.err != nil {
		return fmt.Errorf("failed to generate reply: %w", r.err)
	}
	return nil
}

func (p *Pipeline) releaseSpeaking(r *reply) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.speaking == r {
		p.speaking = nil
	}
}

func (p *Pipeline) historyLocked() []llms.Message {
	history := make([]llms.Message, len(p.history))
	copy(history, p.history)
	return history
}

func (p *Pipeline) userTranscriptObservers() []func(string) {
	p.observersMu.RLock()
	defer p.observersMu.RUnlock()
	return p.userObservers
}

func (p *Pipeline) agentTranscriptObservers() []func(string) {
	p.observersMu.RLock()
	defer p.observersMu.RUnlock()
	return p.agentObservers
}

func (p *Pipeline) emit(observers []func(string), text string) {
	for _, observer := range observers {
		observer(text)
	}
}
