package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

const MessageType = "transcript"

// Message is the payload published on the room's data channel for every
// transcript.
type Message struct {
	Type string `json:"type"`
	Role Role   `json:"role"`
	Text string `json:"text"`
}

func NewMessage(role Role, text string) Message {
	return Message{Type: MessageType, Role: role, Text: text}
}

// Publisher sends a payload reliably on the outbound data channel.
type Publisher interface {
	PublishData(ctx context.Context, payload []byte) error
}

// Source produces the two transcript streams.
type Source interface {
	OnUserTranscript(observer func(text string))
	OnAgentTranscript(observer func(text string))
}

// Relay forwards transcripts to a Publisher. Messages of one role are
// published in the order they were produced; the two roles are independent.
// Observers never block on the publish.
type Relay struct {
	publisher Publisher
	logger    *slog.Logger

	ctx   context.Context
	user  *stream
	agent *stream

	wg sync.WaitGroup
}

type RelayOption func(*Relay)

func WithLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRelay creates a relay publishing with a context that carries the values
// of ctx but is never cancelled, so in-flight publishes outlive the session.
func NewRelay(ctx context.Context, publisher Publisher, opts ...RelayOption) *Relay {
	r := &Relay{
		publisher: publisher,
		logger:    logger,
		ctx:       context.WithoutCancel(ctx),
	}
	r.user = &stream{relay: r, role: RoleUser}
	r.agent = &stream{relay: r, role: RoleAgent}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Attach(source Source) {
	source.OnUserTranscript(r.user.push)
	source.OnAgentTranscript(r.agent.push)
}

// Publish queues a transcript for publishing.
func (r *Relay) Publish(role Role, text string) {
	switch role {
	case RoleUser:
		r.user.push(text)
	case RoleAgent:
		r.agent.push(text)
	default:
		r.logger.Warn("dropping transcript with unknown role", "role", role)
	}
}

// Wait blocks until every queued transcript has been published or has failed.
func (r *Relay) Wait() {
	r.wg.Wait()
}

func (r *Relay) publish(role Role, text string) {
	ctx, span := tracer.Start(r.ctx, "publish transcript", trace.WithAttributes(attribute.String("transcript.role", string(role))))
	defer span.End()

	payload, err := json.Marshal(NewMessage(role, text))
	if err == nil {
		err = r.publisher.PublishData(ctx, payload)
	} else {
		err = fmt.Errorf("error marshalling transcript: %w", err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.WarnContext(ctx, "failed to publish transcript", "role", role, "error", err)
	}
}

// stream drains the queue of one role on a single goroutine that exits once
// the queue is empty.
type stream struct {
	relay *Relay
	role  Role

	mu       sync.Mutex
	queue    []string
	draining bool
}

func (s *stream) push(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, text)
	if s.draining {
		return
	}
	s.draining = true
	s.relay.wg.Add(1)
	go s.drain()
}

func (s *stream) drain() {
	defer s.relay.wg.Done()
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		text := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.relay.publish(s.role, text)
	}
}
