package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/milankumarIS/swaram-agent-worker/core/controlplane"
	"github.com/milankumarIS/swaram-agent-worker/core/pipeline"
	"github.com/milankumarIS/swaram-agent-worker/core/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const DefaultPollInterval = time.Second

var (
	ErrTransportFailure = errors.New("session transport failure")
	ErrSessionPanic     = errors.New("session panicked")
)

// Room is the transport side of a session: its metadata, connectivity, the
// data channel transcripts are published on and the audio the pipeline is
// bound to.
type Room interface {
	Name() string
	Metadata() string
	IsConnected() bool
	transcript.Publisher
	pipeline.AudioTransport
}

// Job is one inbound request to run a session in a room.
type Job struct {
	Room     Room
	Metadata string
}

type ConfigSource interface {
	FetchConfig(ctx context.Context, agentID string) (controlplane.AgentConfig, error)
	NotifySessionEnd(ctx context.Context, sessionID string)
}

type Pipeline interface {
	transcript.Source
	Start(ctx context.Context, transport pipeline.AudioTransport) error
	GenerateReply(ctx context.Context, instructions string) error
	Close(ctx context.Context) error
}

type Assembler interface {
	Assemble(ctx context.Context, config controlplane.AgentConfig) (Pipeline, error)
}

// PipelineAssembler adapts *pipeline.Assembler to Assembler.
type PipelineAssembler struct {
	*pipeline.Assembler
}

func (a PipelineAssembler) Assemble(ctx context.Context, config controlplane.AgentConfig) (Pipeline, error) {
	p, err := a.Assembler.Assemble(ctx, config)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Result is the outcome of one session. Err is the error that ended it, nil
// when the room disconnected normally.
type Result struct {
	State State
	Err   error
}

type Orchestrator struct {
	configs      ConfigSource
	assembler    Assembler
	pollInterval time.Duration
	logger       *slog.Logger
	onTransition func(State)
}

type OrchestratorOption func(*Orchestrator)

func WithPollInterval(interval time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if interval > 0 {
			o.pollInterval = interval
		}
	}
}

func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTransitionHook registers a function called on every state the session
// enters.
func WithTransitionHook(hook func(State)) OrchestratorOption {
	return func(o *Orchestrator) {
		o.onTransition = hook
	}
}

func NewOrchestrator(configs ConfigSource, assembler Assembler, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		configs:      configs,
		assembler:    assembler,
		pollInterval: DefaultPollInterval,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives one session to a final state.
//
// Sessions with unusable metadata or config are aborted without side effects.
// Once assembly has begun the session always passes through ENDING, which
// notifies the control plane of the end if the metadata named a session.
func (o *Orchestrator) Run(ctx context.Context, job Job) (result Result) {
	ctx, span := tracer.Start(ctx, "run session", trace.WithAttributes(attribute.String("room.name", job.Room.Name())))
	defer span.End()
	defer func() {
		span.SetAttributes(attribute.String("session.state", result.State.String()))
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		}
	}()

	l := o.logger.With("room", job.Room.Name())
	l.InfoContext(ctx, "starting session")

	o.enter(ctx, l, StateParsingMetadata)
	metadata, err := ParseMetadata(job.Room.Metadata(), job.Metadata)
	if err != nil {
		l.ErrorContext(ctx, "invalid session metadata", "error", err)
		o.enter(ctx, l, StateAborted)
		return Result{State: StateAborted, Err: err}
	}
	l = l.With("agent_id", metadata.AgentID)
	if metadata.SessionID != "" {
		l = l.With("session_id", metadata.SessionID)
	}

	o.enter(ctx, l, StateResolvingConfig)
	config, err := o.configs.FetchConfig(ctx, metadata.AgentID)
	if err != nil {
		l.ErrorContext(ctx, "could not load agent config, closing session", "error", err)
		o.enter(ctx, l, StateAborted)
		return Result{State: StateAborted, Err: err}
	}
	l.InfoContext(ctx, "config loaded", "agent_name", config.Name)

	err = o.runPipeline(ctx, l, job.Room, metadata, config)
	return Result{State: StateTerminated, Err: err}
}

// runPipeline covers ASSEMBLING_PIPELINE through ENDING. The deferred block is
// the only place the end notification is sent.
func (o *Orchestrator) runPipeline(ctx context.Context, l *slog.Logger, room Room, metadata Metadata, config controlplane.AgentConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrSessionPanic, r)
		}
		if err != nil {
			l.ErrorContext(ctx, "session failed", "error", err)
		}

		o.enter(ctx, l, StateEnding)
		if metadata.SessionID != "" {
			o.configs.NotifySessionEnd(context.WithoutCancel(ctx), metadata.SessionID)
		}
		l.InfoContext(ctx, "session finished")
		o.enter(ctx, l, StateTerminated)
	}()

	o.enter(ctx, l, StateAssemblingPipeline)
	p, err := o.assembler.Assemble(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := p.Close(context.WithoutCancel(ctx)); closeErr != nil {
			l.WarnContext(ctx, "failed to close pipeline", "error", closeErr)
		}
	}()

	o.enter(ctx, l, StateActive)
	transcript.NewRelay(ctx, room, transcript.WithLogger(l)).Attach(p)

	if err := p.Start(ctx, room); err != nil {
		return fmt.Errorf("%w: %w", ErrTransportFailure, err)
	}
	if err := p.GenerateReply(ctx, config.Welcome()); err != nil {
		return fmt.Errorf("failed to greet: %w", err)
	}

	return o.waitForDisconnect(ctx, room)
}

func (o *Orchestrator) waitForDisconnect(ctx context.Context, room Room) error {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for room.IsConnected() {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case <-ticker.C:
		}
	}
	return nil
}

func (o *Orchestrator) enter(ctx context.Context, l *slog.Logger, state State) {
	l.DebugContext(ctx, "session state changed", "state", state.String())
	if o.onTransition != nil {
		o.onTransition(state)
	}
}
