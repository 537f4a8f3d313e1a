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
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/milankumarIS/swaram-agent-worker/core/speechtotext"
)

const (
	DefaultModel   = "saarika:v2.5"
	defaultBaseURL = "wss://api.sarvam.ai/speech-to-text/ws"
)

var ErrStreamNotOpen = errors.New("sarvam transcription stream is not open")

type TranscriptionClient struct {
	apiKey   string
	model    string
	language string
	baseURL  string

	conn   *websocket.Conn
	connMu sync.Mutex

	encoding audio.EncodingInfo
}

type TranscriptionClientOption func(*TranscriptionClient)

func WithModel(model string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.model = model }
}

func WithBaseURL(baseURL string) TranscriptionClientOption {
	return func(c *TranscriptionClient) { c.baseURL = baseURL }
}

func NewTranscriptionClient(apiKey, language string, opts ...TranscriptionClientOption) (*TranscriptionClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sarvam api key is required")
	}
	if language == "" {
		return nil, fmt.Errorf("sarvam transcription language is required")
	}

	client := &TranscriptionClient{
		apiKey:   apiKey,
		model:    DefaultModel,
		language: language,
		baseURL:  defaultBaseURL,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (s *TranscriptionClient) Model() string    { return s.model }
func (s *TranscriptionClient) Language() string { return s.language }

func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	conn, err := s.connectWebsocket(ctx, options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.encoding = options.EncodingInfo
	s.connMu.Unlock()

	go s.readAndProcessMessages(conn, *options)

	return nil
}

func (s *TranscriptionClient) listenURL(encoding audio.EncodingInfo) string {
	listenURL, _ := url.Parse(s.baseURL)
	queryParams := listenURL.Query()
	queryParams.Set("language-code", s.language)
	queryParams.Set("model", s.model)
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("input_audio_codec", codecName(encoding))
	queryParams.Set("vad_signals", "true")
	listenURL.RawQuery = queryParams.Encode()
	return listenURL.String()
}

func (s *TranscriptionClient) connectWebsocket(ctx context.Context, encoding audio.EncodingInfo) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.listenURL(encoding),
		http.Header{"Api-Subscription-Key": {s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to sarvam: %w", err)
	}

	return conn, nil
}

type audioMessage struct {
	Audio audioPayload `json:"audio"`
}

type audioPayload struct {
	Data       string `json:"data"`
	SampleRate int    `json:"sample_rate"`
	Encoding   string `json:"encoding"`
}

func (s *TranscriptionClient) SendAudio(frame []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return ErrStreamNotOpen
	}

	if err := s.conn.WriteJSON(audioMessage{Audio: audioPayload{
		Data:       base64.StdEncoding.EncodeToString(frame),
		SampleRate: s.encoding.SampleRate,
		Encoding:   mimeType(s.encoding),
	}}); err != nil {
		return fmt.Errorf("failed to write to sarvam client: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) Close(_ context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.conn == nil {
		return nil
	}

	_ = s.conn.WriteJSON(struct {
		Type string `json:"type"`
	}{Type: "flush"})
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("failed to close sarvam websocket: %w", err)
	}
	return nil
}

func (s *TranscriptionClient) readAndProcessMessages(conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				logger.Warn("failed to read sarvam websocket message", "error", err)
				if options.ErrorCallback != nil {
					options.ErrorCallback(fmt.Errorf("sarvam transcription stream failed: %w", err))
				}
			}

			s.connMu.Lock()
			if s.conn == conn {
				s.conn = nil
			}
			s.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType == websocket.TextMessage {
			processMessage(msg, options)
		}
	}
}

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type transcriptData struct {
	Transcript   string `json:"transcript"`
	LanguageCode string `json:"language_code"`
}

type eventData struct {
	SignalType string `json:"signal_type"`
}

type errorData struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg streamMessage
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal sarvam message", "error", err)
		return
	}

	switch parsedMsg.Type {
	case "data":
		var data transcriptData
		if err := json.Unmarshal(parsedMsg.Data, &data); err != nil {
			logger.Warn("failed to unmarshal sarvam transcript", "error", err)
			return
		}
		transcript := strings.TrimSpace(data.Transcript)
		if len(transcript) > 0 && options.TranscriptionCallback != nil {
			options.TranscriptionCallback(transcript)
		}

	case "events":
		var data eventData
		if err := json.Unmarshal(parsedMsg.Data, &data); err != nil {
			logger.Warn("failed to unmarshal sarvam event", "error", err)
			return
		}
		switch data.SignalType {
		case "START_SPEECH":
			if options.SpeechStartedCallback != nil {
				options.SpeechStartedCallback()
			}
		case "END_SPEECH":
			if options.SpeechEndedCallback != nil {
				options.SpeechEndedCallback()
			}
		}

	case "error":
		var data errorData
		_ = json.Unmarshal(parsedMsg.Data, &data)
		if options.ErrorCallback != nil {
			options.ErrorCallback(fmt.Errorf("sarvam transcription error %s: %s", data.Code, data.Message))
		}
	}
}

func codecName(encoding audio.EncodingInfo) string {
	switch encoding.Format {
	case audio.EncodingLinear16:
		return "pcm_s16le"
	case audio.EncodingMulaw:
		return "pcm_mulaw"
	case audio.EncodingALaw:
		return "pcm_alaw"
	}
	return encoding.Format.Name()
}

func mimeType(encoding audio.EncodingInfo) string {
	if encoding.Format == audio.EncodingLinear16 {
		return "audio/wav"
	}
	return "audio/" + encoding.Format.Name()
}
