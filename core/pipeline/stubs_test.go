package pipeline

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/milankumarIS/swaram-agent-worker/core/llms"
	"github.com/milankumarIS/swaram-agent-worker/core/speechtotext"
	"github.com/milankumarIS/swaram-agent-worker/core/texttospeech"
)

type speechToTextStub struct {
	mu      sync.Mutex
	options speechtotext.TranscriptionOptions
	audio   [][]byte
	closed  bool
}

func (s *speechToTextStub) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, opt := range opts {
		opt(&s.options)
	}
	return nil
}

func (s *speechToTextStub) SendAudio(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, frame)
	return nil
}

func (s *speechToTextStub) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *speechToTextStub) speechStarted() {
	s.mu.Lock()
	callback := s.options.SpeechStartedCallback
	s.mu.Unlock()
	callback()
}

func (s *speechToTextStub) transcribe(text string) {
	s.mu.Lock()
	callback := s.options.TranscriptionCallback
	s.mu.Unlock()
	callback(text)
}

type llmStub struct {
	mu     sync.Mutex
	calls  []llms.StreamingPromptOptions
	ctxs   []context.Context
	chunks []string
	err    error
}

func (l *llmStub) PromptWithStream(ctx context.Context, opts ...llms.StreamingPromptOption) iter.Seq2[string, error] {
	options := llms.StreamingPromptOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	l.mu.Lock()
	l.calls = append(l.calls, options)
	l.ctxs = append(l.ctxs, ctx)
	chunks, err := l.chunks, l.err
	l.mu.Unlock()

	return func(yield func(string, error) bool) {
		if err != nil {
			yield("", err)
			return
		}
		for _, chunk := range chunks {
			if ctx.Err() != nil {
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (l *llmStub) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

// callFor returns the context of the call answering input as its last user
// message.
func (l *llmStub) callFor(input string) (context.Context, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, call := range l.calls {
		if n := len(call.History); n > 0 && call.History[n-1] == llms.UserMessage(input) {
			return l.ctxs[i], true
		}
	}
	return nil, false
}

func (l *llmStub) lastCall() llms.StreamingPromptOptions {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[len(l.calls)-1]
}

type textToSpeechStub struct {
	err error
	// hold keeps generators from ever finishing their speech.
	hold    bool
	created chan *speechGeneratorStub
}

func (t *textToSpeechStub) NewSpeechGenerator(_ context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	if t.err != nil {
		return nil, t.err
	}
	options := texttospeech.TextToSpeechOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	g := &speechGeneratorStub{options: options, hold: t.hold}
	if t.created != nil {
		t.created <- g
	}
	return g, nil
}

type speechGeneratorStub struct {
	mu      sync.Mutex
	options texttospeech.TextToSpeechOptions
	text    string
	done    bool
	hold    bool

	cancelled bool
}

func (g *speechGeneratorStub) SendText(text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done {
		return errors.New("closed")
	}
	g.text += text
	return nil
}

func (g *speechGeneratorStub) EndOfText() error {
	g.mu.Lock()
	text, hold := g.text, g.hold
	g.mu.Unlock()
	if hold {
		return nil
	}

	go func() {
		g.options.SpeechAudioCallback([]byte(text))
		g.options.SpeechEndedCallback()
	}()
	return nil
}

func (g *speechGeneratorStub) Cancel() error {
	g.mu.Lock()
	g.cancelled = true
	g.mu.Unlock()
	return g.Close()
}

func (g *speechGeneratorStub) wasCancelled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cancelled
}

func (g *speechGeneratorStub) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done = true
	return nil
}

type transportStub struct {
	mu      sync.Mutex
	onAudio func([]byte)
	sent    [][]byte
	cleared int
}

func (t *transportStub) EncodingInfo() audio.EncodingInfo { return audio.GetDefaultEncodingInfo() }

func (t *transportStub) StreamAudio(_ context.Context, onAudio func([]byte)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onAudio = onAudio
	return nil
}

func (t *transportStub) SendAudio(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, frame)
	return nil
}

func (t *transportStub) ClearAudio() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared++
}

func (t *transportStub) clearCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleared
}

func (t *transportStub) sentAudio() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]byte(nil), t.sent...)
}

// vadStub reports a speech onset on every frame when speaking is set.
type vadStub struct {
	speaking bool
}

func (v vadStub) Process([]byte, audio.EncodingInfo) (bool, bool) { return v.speaking, v.speaking }

type turnDetectorStub struct {
	endOfTurn bool
}

func (t turnDetectorStub) IsEndOfTurn([]llms.Message, string) bool { return t.endOfTurn }

type enginesStub struct {
	stt *speechToTextStub
	llm *llmStub
	tts *textToSpeechStub

	sttErr error

	sttConfig STTConfig
	llmConfig LLMConfig
	ttsConfig TTSConfig
}

func newEnginesStub() *enginesStub {
	return &enginesStub{
		stt: &speechToTextStub{},
		llm: &llmStub{chunks: []string{"Hello", " there."}},
		tts: &textToSpeechStub{},
	}
}

func (e *enginesStub) NewSpeechToText(_ context.Context, config STTConfig) (SpeechToText, error) {
	e.sttConfig = config
	if e.sttErr != nil {
		return nil, e.sttErr
	}
	return e.stt, nil
}

func (e *enginesStub) NewLLM(_ context.Context, config LLMConfig) (LLM, error) {
	e.llmConfig = config
	return e.llm, nil
}

func (e *enginesStub) NewTextToSpeech(_ context.Context, config TTSConfig) (TextToSpeech, error) {
	e.ttsConfig = config
	return e.tts, nil
}

func (e *enginesStub) NewVAD() VAD { return vadStub{} }

func (e *enginesStub) NewTurnDetector() TurnDetector { return turnDetectorStub{endOfTurn: true} }
