package livekit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/webhook"
	"github.com/milankumarIS/swaram-agent-worker/core/session"
)

const eventRoomStarted = "room_started"

// JoinFunc joins the agent to a room.
type JoinFunc func(ctx context.Context, roomName string) (session.Room, error)

type SessionDispatcher interface {
	Dispatch(ctx context.Context, job session.Job)
}

// WebhookHandler starts a session for every room_started webhook LiveKit
// delivers.
type WebhookHandler struct {
	ctx    context.Context
	keys   auth.KeyProvider
	join   JoinFunc
	worker SessionDispatcher
	logger *slog.Logger

	// agentName, when set, restricts the handler to rooms dispatched to it.
	agentName string
}

type WebhookOption func(*WebhookHandler)

// WithAgentName skips rooms whose metadata names a different agent in
// "agentName". Rooms that name no agent are still joined.
func WithAgentName(name string) WebhookOption {
	return func(h *WebhookHandler) {
		h.agentName = name
	}
}

func WithLogger(l *slog.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewWebhookHandler verifies webhooks with the given API key pair. Sessions
// run on ctx, so they end when it is cancelled rather than when the webhook
// request completes.
func NewWebhookHandler(ctx context.Context, apiKey, apiSecret string, join JoinFunc, worker SessionDispatcher, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		ctx:    ctx,
		keys:   auth.NewSimpleKeyProvider(apiKey, apiSecret),
		join:   join,
		worker: worker,
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// JoinWith returns a JoinFunc joining rooms with credentials.
func JoinWith(credentials Credentials) JoinFunc {
	return func(ctx context.Context, roomName string) (session.Room, error) {
		room, err := Join(ctx, credentials, roomName)
		if err != nil {
			return nil, err
		}
		return room, nil
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	event, err := webhook.ReceiveWebhookEvent(r, h.keys)
	if err != nil {
		h.logger.WarnContext(r.Context(), "rejected webhook", "error", err)
		http.Error(w, "invalid webhook", http.StatusUnauthorized)
		return
	}

	if event.GetEvent() != eventRoomStarted {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	info := event.GetRoom()
	if info.GetName() == "" {
		http.Error(w, "room_started without a room", http.StatusBadRequest)
		return
	}

	if !h.dispatchedHere(info.GetMetadata()) {
		h.logger.DebugContext(r.Context(), "room dispatched to another agent", "room", info.GetName())
		w.WriteHeader(http.StatusNoContent)
		return
	}

	room, err := h.join(r.Context(), info.GetName())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to join room", "room", info.GetName(), "error", err)
		http.Error(w, "failed to join room", http.StatusBadGateway)
		return
	}

	h.worker.Dispatch(h.ctx, session.Job{Room: room, Metadata: info.GetMetadata()})
	w.WriteHeader(http.StatusAccepted)
}

func (h *WebhookHandler) dispatchedHere(metadata string) bool {
	if h.agentName == "" {
		return true
	}
	var dispatch struct {
		AgentName string `json:"agentName"`
	}
	// Malformed metadata is left to the session to reject.
	if err := json.Unmarshal([]byte(metadata), &dispatch); err != nil {
		return true
	}
	return dispatch.AgentName == "" || dispatch.AgentName == h.agentName
}
