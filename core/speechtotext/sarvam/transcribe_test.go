package sarvam

import (
	"net/url"
	"testing"

	"github.com/milankumarIS/swaram-agent-worker/core/audio"
	"github.com/milankumarIS/swaram-agent-worker/core/speechtotext"
)

func TestProcessMessageInvokesCallbacks(t *testing.T) {
	var events []string
	var transcripts []string
	var errs []error

	options := speechtotext.TranscriptionOptions{
		TranscriptionCallback: func(transcript string) { transcripts = append(transcripts, transcript) },
		SpeechStartedCallback: func() { events = append(events, "start") },
		SpeechEndedCallback:   func() { events = append(events, "end") },
		ErrorCallback:         func(err error) { errs = append(errs, err) },
	}

	processMessage([]byte(`{"type":"events","data":{"signal_type":"START_SPEECH"}}`), options)
	processMessage([]byte(`{"type":"data","data":{"transcript":"  namaste  ","language_code":"hi-IN"}}`), options)
	processMessage([]byte(`{"type":"data","data":{"transcript":"   "}}`), options)
	processMessage([]byte(`{"type":"events","data":{"signal_type":"END_SPEECH"}}`), options)
	processMessage([]byte(`{"type":"error","data":{"message":"quota exceeded","code":"429"}}`), options)
	processMessage([]byte(`not json`), options)

	if len(events) != 2 || events[0] != "start" || events[1] != "end" {
		t.Fatalf("expected [start end], got %v", events)
	}
	if len(transcripts) != 1 || transcripts[0] != "namaste" {
		t.Fatalf("expected single trimmed transcript, got %v", transcripts)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error callback, got %v", errs)
	}
}

func TestProcessMessageToleratesUnsetCallbacks(t *testing.T) {
	processMessage([]byte(`{"type":"events","data":{"signal_type":"START_SPEECH"}}`), speechtotext.TranscriptionOptions{})
	processMessage([]byte(`{"type":"data","data":{"transcript":"hello"}}`), speechtotext.TranscriptionOptions{})
}

func TestListenURLCarriesModelAndLanguage(t *testing.T) {
	client, err := NewTranscriptionClient("key", "ta-IN")
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	parsed, err := url.Parse(client.listenURL(audio.GetDefaultEncodingInfo()))
	if err != nil {
		t.Fatalf("expected valid url, got %v", err)
	}

	query := parsed.Query()
	if query.Get("model") != "saarika:v2.5" {
		t.Errorf("expected saarika:v2.5 model, got %q", query.Get("model"))
	}
	if query.Get("language-code") != "ta-IN" {
		t.Errorf("expected ta-IN language, got %q", query.Get("language-code"))
	}
	if query.Get("sample_rate") != "16000" || query.Get("input_audio_codec") != "pcm_s16le" {
		t.Errorf("unexpected audio params: %v", query)
	}
}

func TestNewTranscriptionClientRequiresKeyAndLanguage(t *testing.T) {
	if _, err := NewTranscriptionClient("", "hi-IN"); err == nil {
		t.Fatalf("expected missing api key to fail")
	}
	if _, err := NewTranscriptionClient("key", ""); err == nil {
		t.Fatalf("expected missing language to fail")
	}
}

func TestSendAudioBeforeTranscribeFails(t *testing.T) {
	client, _ := NewTranscriptionClient("key", "hi-IN")
	if err := client.SendAudio([]byte{0, 1}); err != ErrStreamNotOpen {
		t.Fatalf("expected ErrStreamNotOpen, got %v", err)
	}
}
