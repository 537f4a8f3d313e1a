package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/milankumarIS/swaram-agent-worker/core/controlplane"
	"github.com/milankumarIS/swaram-agent-worker/core/pipeline"
)

type roomStub struct {
	name      string
	metadata  string
	connected atomic.Bool

	published    chan []byte
	disconnected atomic.Bool
}

func newRoomStub(metadata string) *roomStub {
	r := &roomStub{name: "room-1", metadata: metadata, published: make(chan []byte, 16)}
	r.connected.Store(true)
	return r
}

func (r *roomStub) Name() string      { return r.name }
func (r *roomStub) Metadata() string  { return r.metadata }
func (r *roomStub) IsConnected() bool { return r.connected.Load() }
func (r *roomStub) Disconnect()       { r.disconnected.Store(true) }

func (r *roomStub) PublishData(_ context.Context, payload []byte) error {
	r.published <- payload
	return nil
}

func (r *roomStub) EncodingInfo() audio.EncodingInfo                      { return audio.GetDefaultEncodingInfo() }
func (r *roomStub) StreamAudio(context.Context, func(frame []byte)) error { return nil }
func (r *roomStub) SendAudio([]byte) error                                { return nil }
func (r *roomStub) ClearAudio()                                           {}

type configSourceStub struct {
	mu          sync.Mutex
	config      controlplane.AgentConfig
	err         error
	fetches     []string
	notifies    []string
	notifyCtxOK bool
}

func (c *configSourceStub) FetchConfig(_ context.Context, agentID string) (controlplane.AgentConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches = append(c.fetches, agentID)
	return c.config, c.err
}

func (c *configSourceStub) NotifySessionEnd(ctx context.Context, sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifies = append(c.notifies, sessionID)
	c.notifyCtxOK = ctx.Err() == nil
}

type assemblerStub struct {
	pipeline *pipelineStub
	err      error
	calls    atomic.Int32
}

func (a *assemblerStub) Assemble(context.Context, controlplane.AgentConfig) (Pipeline, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	return a.pipeline, nil
}

type pipelineStub struct {
	startErr error
	replyErr error
	// onReply runs inside GenerateReply, e.g. to disconnect the room.
	onReply func()

	mu             sync.Mutex
	instructions   []string
	userObservers  []func(string)
	agentObservers []func(string)
	closed         bool
}

func (p *pipelineStub) OnUserTranscript(observer func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userObservers = append(p.userObservers, observer)
}

func (p *pipelineStub) OnAgentTranscript(observer func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.agentObservers = append(p.agentObservers, observer)
}

func (p *pipelineStub) Start(context.Context, pipeline.AudioTransport) error { return p.startErr }

func (p *pipelineStub) GenerateReply(_ context.Context, instructions string) error {
	p.mu.Lock()
	p.instructions = append(p.instructions, instructions)
	observers := p.agentObservers
	p.mu.Unlock()

	if p.onReply != nil {
		p.onReply()
	}
	if p.replyErr != nil {
		return p.replyErr
	}
	for _, observer := range observers {
		observer(instructions)
	}
	return nil
}

func (p *pipelineStub) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func validConfig() controlplane.AgentConfig {
	return controlplane.AgentConfig{
		Name:            "Support",
		SarvamAPIKey:    "sk-sarvam",
		LLMAPIKey:       "sk-llm",
		STTLanguageCode: "hi-IN",
		TTSLanguageCode: "hi-IN",
		SystemPrompt:    "Be helpful.",
	}
}
