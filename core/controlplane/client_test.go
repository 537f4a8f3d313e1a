package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const validConfigBody = `{
	"name": "Support",
	"sarvam_api_key": "sk-sarvam",
	"llm_api_key": "sk-llm",
	"stt_language_code": "hi-IN",
	"tts_language_code": "hi-IN",
	"system_prompt": "Be helpful.",
	"tts_voice": "karun"
}`

func TestFetchConfigSendsSecretAndDecodesBody(t *testing.T) {
	var gotPath, gotSecret, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Worker-Secret")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(validConfigBody))
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "s3cret")
	config, err := client.FetchConfig(context.Background(), "a1")
	if err != nil {
		t.Fatalf("expected fetch to succeed, got %v", err)
	}

	if gotMethod != http.MethodGet {
		t.Fatalf("expected GET, got %s", gotMethod)
	}
	if gotPath != "/internal/agents/a1/config" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("expected worker secret header, got %q", gotSecret)
	}
	if config.Name != "Support" || config.TTSVoice != "karun" || config.SystemPrompt != "Be helpful." {
		t.Fatalf("unexpected config: %+v", config)
	}
	if config.Model() != DefaultLLMModel {
		t.Fatalf("expected default model, got %q", config.Model())
	}
}

func TestFetchConfigFailuresCollapseToConfigUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non-2xx status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "forbidden", http.StatusForbidden)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("{not json"))
			},
		},
		{
			name: "non-object body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`["name"]`))
			},
		},
		{
			name: "empty object",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{}`))
			},
		},
		{
			name: "missing name",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"sarvam_api_key":"sk-sarvam","system_prompt":"Be helpful."}`))
			},
		},
		{
			name: "null body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`null`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer server.Close()

			_, err := NewClient(server.URL, "").FetchConfig(context.Background(), "a1")
			if !errors.Is(err, ErrConfigUnavailable) {
				t.Fatalf("expected ErrConfigUnavailable, got %v", err)
			}
			if calls.Load() != 1 {
				t.Fatalf("expected exactly one request, got %d", calls.Load())
			}
		})
	}
}

func TestFetchConfigNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(url, "").FetchConfig(context.Background(), "a1")
	if !errors.Is(err, ErrConfigUnavailable) {
		t.Fatalf("expected ErrConfigUnavailable, got %v", err)
	}
}

func TestFetchConfigEscapesAgentID(t *testing.T) {
	var gotRawPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRawPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(validConfigBody))
	}))
	defer server.Close()

	if _, err := NewClient(server.URL, "").FetchConfig(context.Background(), "a/1"); err != nil {
		t.Fatalf("expected fetch to succeed, got %v", err)
	}
	if gotRawPath != "/internal/agents/a%2F1/config" {
		t.Fatalf("expected escaped agent id, got %q", gotRawPath)
	}
}

func TestNotifySessionEndSendsPatch(t *testing.T) {
	var gotMethod, gotPath, gotSecret string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotSecret = r.Header.Get("X-Worker-Secret")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	NewClient(server.URL, "s3cret").NotifySessionEnd(context.Background(), "s1")

	if gotMethod != http.MethodPatch {
		t.Fatalf("expected PATCH, got %q", gotMethod)
	}
	if gotPath != "/api/sessions/s1/end" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("expected worker secret header, got %q", gotSecret)
	}
}

func TestNotifySessionEndSwallowsFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	NewClient(server.URL, "").NotifySessionEnd(context.Background(), "s1")
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt without retry, got %d", calls.Load())
	}

	server.Close()
	NewClient(server.URL, "").NotifySessionEnd(context.Background(), "s1")
}
