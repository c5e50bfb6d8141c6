package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		GroqAPIKey:                 "test-key",
		GroqBaseURL:                baseURL,
		TranscriptionModel:         "whisper-large-v3-turbo",
		NoSpeechThreshold:          0.7,
		DeepgramModel:              "nova-2",
		DeepgramLanguage:           "en",
		RemoteCallTimeout:          5,
		CircuitBreakerMaxFailures:  2,
		CircuitBreakerResetTimeout: 60,
	}
}

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o600); err != nil {
		t.Fatalf("Failed to write recording: %v", err)
	}
	return path
}

func TestGroqClient_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("Failed to parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-large-v3-turbo" {
			t.Errorf("Expected whisper-large-v3-turbo, got %q", got)
		}
		if got := r.FormValue("response_format"); got != "verbose_json" {
			t.Errorf("Expected verbose_json, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("Missing file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "audio.wav" {
			t.Errorf("Expected file name audio.wav, got %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "RIFF....WAVE" {
			t.Errorf("Unexpected upload body %q", data)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"  I had a bowl of oatmeal. ","segments":[{"no_speech_prob":0.05}]}`)
	}))
	defer server.Close()

	client := NewGroqClient(testConfig(server.URL), nil)
	got, err := client.Transcribe(context.Background(), writeWAV(t))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if got.Silent {
		t.Error("Expected speech, got silence")
	}
	if got.Text != "I had a bowl of oatmeal." {
		t.Errorf("Expected trimmed text, got %q", got.Text)
	}
}

func TestGroqClient_SilenceRules(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		silent bool
		text   string
	}{
		{"no speech above threshold", `{"text":"Thank you.","segments":[{"no_speech_prob":0.92}]}`, true, ""},
		{"exactly at threshold is speech", `{"text":"Two eggs","segments":[{"no_speech_prob":0.7}]}`, false, "Two eggs"},
		{"only first segment counts", `{"text":"Toast","segments":[{"no_speech_prob":0.1},{"no_speech_prob":0.99}]}`, false, "Toast"},
		{"no segments", `{"text":"phantom","segments":[]}`, true, ""},
		{"blank text", `{"text":"   ","segments":[{"no_speech_prob":0.1}]}`, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			got, err := NewGroqClient(testConfig(server.URL), nil).Transcribe(context.Background(), writeWAV(t))
			if err != nil {
				t.Fatalf("Transcribe failed: %v", err)
			}
			if got.Silent != tt.silent {
				t.Errorf("Expected silent=%v, got %v", tt.silent, got.Silent)
			}
			if got.Text != tt.text {
				t.Errorf("Expected text %q, got %q", tt.text, got.Text)
			}
		})
	}
}

func TestGroqClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"file is too short"}}`)
	}))
	defer server.Close()

	_, err := NewGroqClient(testConfig(server.URL), nil).Transcribe(context.Background(), writeWAV(t))

	var sttErr *Error
	if !errors.As(err, &sttErr) {
		t.Fatalf("Expected *stt.Error, got %T: %v", err, err)
	}
	if sttErr.Kind != KindAPI || sttErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Unexpected error: %+v", sttErr)
	}
	if sttErr.Message != "file is too short" {
		t.Errorf("Expected provider message, got %q", sttErr.Message)
	}
}

func TestGroqClient_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `not json`)
	}))
	defer server.Close()

	_, err := NewGroqClient(testConfig(server.URL), nil).Transcribe(context.Background(), writeWAV(t))

	var sttErr *Error
	if !errors.As(err, &sttErr) || sttErr.Kind != KindDecode {
		t.Fatalf("Expected decode error, got %v", err)
	}
}

func TestGroqClient_MissingFile(t *testing.T) {
	client := NewGroqClient(testConfig("http://127.0.0.1:1"), nil)

	_, err := client.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))

	var sttErr *Error
	if !errors.As(err, &sttErr) || sttErr.Kind != KindInput {
		t.Fatalf("Expected input error, got %v", err)
	}
}

func TestGroqClient_CircuitOpensOnServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewGroqClient(testConfig(server.URL), nil)
	path := writeWAV(t)

	for i := 0; i < 2; i++ {
		if _, err := client.Transcribe(context.Background(), path); err == nil {
			t.Fatal("Expected error from 503")
		}
	}

	_, err := client.Transcribe(context.Background(), path)
	var sttErr *Error
	if !errors.As(err, &sttErr) || sttErr.Kind != KindCircuitOpen {
		t.Fatalf("Expected circuit_open error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", calls)
	}

	if healthy, _ := client.Healthy(context.Background()); healthy {
		t.Error("Expected client to report unhealthy with open breaker")
	}
}

func TestGroqClient_ClientErrorsDoNotOpenCircuit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := NewGroqClient(testConfig(server.URL), nil)
	path := writeWAV(t)

	for i := 0; i < 3; i++ {
		_, err := client.Transcribe(context.Background(), path)
		var sttErr *Error
		if !errors.As(err, &sttErr) || sttErr.Kind != KindAPI {
			t.Fatalf("Attempt %d: expected api error, got %v", i, err)
		}
	}
}

func TestGroqClient_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewGroqClient(testConfig(server.URL), nil).Transcribe(ctx, writeWAV(t))

	var sttErr *Error
	if !errors.As(err, &sttErr) || sttErr.Kind != KindTransport {
		t.Fatalf("Expected transport error, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected wrapped deadline error, got %v", err)
	}
}
