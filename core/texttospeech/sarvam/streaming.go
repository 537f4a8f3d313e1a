package sarvam

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/milankumarIS/swaram-agent-worker/core/texttospeech"
)

var (
	ErrRequestClosed    = errors.New("streaming request closed")
	ErrRequestCancelled = errors.New("streaming request cancelled")
	ErrTextCompleted    = errors.New("streaming request text already completed")
)

type streamingRequest struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu           sync.Mutex
	textComplete bool
	cancelled    bool
	closed       bool
	ended        bool

	options texttospeech.TextToSpeechOptions
}

func (c *TextToSpeechClient) NewSpeechGenerator(ctx context.Context, opts ...texttospeech.TextToSpeechOption) (texttospeech.SpeechGenerator, error) {
	req := &streamingRequest{
		options: texttospeech.TextToSpeechOptions{
			SpeechAudioCallback: func([]byte) {},
			SpeechEndedCallback: func() {},
			ErrorCallback:       func(error) {},
			EncodingInfo:        audio.GetDefaultEncodingInfo(),
		},
	}
	for _, opt := range opts {
		opt(&req.options)
	}

	var err error
	if req.ws, err = c.connectWebsocket(ctx); err != nil {
		return nil, fmt.Errorf("failed to open websocket: %w", err)
	}

	if err := req.sendWebsocketMessage(c.configMsg(req.options.EncodingInfo)); err != nil {
		_ = req.ws.Close()
		return nil, fmt.Errorf("failed to configure sarvam speech stream: %w", err)
	}

	go req.processIncomingMessages()

	return req, nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	speakURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sarvam url: %w", err)
	}
	query := speakURL.Query()
	query.Set("model", c.model)
	speakURL.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, speakURL.String(),
		http.Header{"Api-Subscription-Key": {c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to sarvam: %w", err)
	}

	return conn, nil
}

type configData struct {
	Speaker            string `json:"speaker"`
	TargetLanguageCode string `json:"target_language_code"`
	OutputAudioCodec   string `json:"output_audio_codec"`
	SpeechSampleRate   string `json:"speech_sample_rate"`
}

type websocketMessage struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func (c *TextToSpeechClient) configMsg(encoding audio.EncodingInfo) websocketMessage {
	return websocketMessage{Type: "config", Data: configData{
		Speaker:            c.speaker,
		TargetLanguageCode: c.language,
		OutputAudioCodec:   encoding.Format.Name(),
		SpeechSampleRate:   strconv.Itoa(encoding.SampleRate),
	}}
}

func sendTextMsg(text string) websocketMessage {
	return websocketMessage{Type: "text", Data: struct {
		Text string `json:"text"`
	}{Text: text}}
}

var flushMsg = websocketMessage{Type: "flush"}

type incomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (r *streamingRequest) processIncomingMessages() {
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) && !r.isClosed() {
				logger.Warn("sarvam websocket read error", "error", err)
				r.options.ErrorCallback(fmt.Errorf("sarvam speech stream failed: %w", err))
			}
			_ = r.Close()
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}
		if done := r.handleMessage(msg); done {
			_ = r.Close()
			return
		}
	}
}

// handleMessage reports whether the stream has produced all requested
// speech.
func (r *streamingRequest) handleMessage(msg []byte) bool {
	var parsedMsg incomingMessage
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Debug("failed to unmarshal sarvam message", "error", err)
		return false
	}

	switch parsedMsg.Type {
	case "audio":
		var data struct {
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(parsedMsg.Data, &data); err != nil {
			logger.Debug("failed to unmarshal sarvam audio", "error", err)
			return false
		}
		chunk, err := base64.StdEncoding.DecodeString(data.Audio)
		if err != nil {
			logger.Debug("failed to decode sarvam audio", "error", err)
			return false
		}
		if !r.isCancelled() {
			r.options.SpeechAudioCallback(chunk)
		}

	case "event":
		var data struct {
			EventType string `json:"event_type"`
		}
		if err := json.Unmarshal(parsedMsg.Data, &data); err != nil {
			return false
		}
		if data.EventType == "final" {
			return r.finishIfComplete()
		}

	case "error":
		var data struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(parsedMsg.Data, &data)
		r.options.ErrorCallback(fmt.Errorf("sarvam speech error: %s", data.Message))
		return true
	}

	return false
}

func (r *streamingRequest) finishIfComplete() bool {
	r.mu.Lock()
	if !r.textComplete || r.ended || r.cancelled {
		r.mu.Unlock()
		return false
	}
	r.ended = true
	r.mu.Unlock()

	r.options.SpeechEndedCallback()
	return true
}

func (r *streamingRequest) SendText(text string) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrRequestClosed
	case r.cancelled:
		r.mu.Unlock()
		return ErrRequestCancelled
	case r.textComplete:
		r.mu.Unlock()
		return ErrTextCompleted
	}
	r.mu.Unlock()

	if err := r.sendWebsocketMessage(sendTextMsg(text)); err != nil {
		return fmt.Errorf("failed to send websocket text message: %w", err)
	}
	return nil
}

func (r *streamingRequest) EndOfText() error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrRequestClosed
	case r.cancelled:
		r.mu.Unlock()
		return ErrRequestCancelled
	case r.textComplete:
		r.mu.Unlock()
		return nil
	}
	r.textComplete = true
	r.mu.Unlock()

	if err := r.sendWebsocketMessage(flushMsg); err != nil {
		return fmt.Errorf("failed to send websocket flush message: %w", err)
	}
	return nil
}

func (r *streamingRequest) Cancel() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRequestClosed
	}
	if r.cancelled {
		r.mu.Unlock()
		return nil
	}
	r.cancelled = true
	r.mu.Unlock()

	return r.Close()
}

func (r *streamingRequest) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err := r.ws.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}

func (r *streamingRequest) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *streamingRequest) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (r *streamingRequest) sendWebsocketMessage(msg websocketMessage) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if r.isClosed() || r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}
