package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/conversation"
	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
	"github.com/lexiqai/voice-calorie-tracker/internal/stt"
)

type stubTranscriber struct{ text string }

func (s stubTranscriber) Transcribe(ctx context.Context, wavPath string) (stt.Transcription, error) {
	return stt.Transcription{Text: s.text}, nil
}

type stubGenerator struct{ reply string }

func (s stubGenerator) NextUtterance(ctx context.Context, transcript []dialogue.Message) (string, error) {
	return s.reply, nil
}

type stubSynthesizer struct{}

func (stubSynthesizer) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	return &audio.Clip{SampleRate: audio.SynthesisSampleRate, Samples: []float32{0.25, -0.25}}, nil
}

type busyConversation struct {
	err error
}

func (b busyConversation) Submit(ctx context.Context, rec audio.Recording) (conversation.TurnResult, error) {
	return conversation.TurnResult{}, b.err
}
func (b busyConversation) Reset() conversation.Session    { return conversation.NewSession() }
func (b busyConversation) Snapshot() conversation.Session { return conversation.NewSession() }

func newTestServer(t *testing.T) (*httptest.Server, *conversation.Manager) {
	t.Helper()
	controller := conversation.NewController(
		stubTranscriber{text: "a bowl of oatmeal"},
		stubGenerator{reply: "With milk or water?"},
		stubSynthesizer{},
		conversation.ControllerConfig{TempDir: t.TempDir()},
	)
	manager := conversation.NewManager(controller, nil)
	server := httptest.NewServer(NewRouter(Options{Conversation: manager, MaxRecordingBytes: 1 << 20}))
	t.Cleanup(server.Close)
	return server, manager
}

func speechWAV() []byte {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = 2000
	}
	return audio.EncodeWAV(audio.Recording{SampleRate: 16000, Channels: 1, Samples: samples})
}

func postTurn(t *testing.T, url string, body []byte) (*http.Response, TurnResponse) {
	t.Helper()
	resp, err := http.Post(url+"/api/turns", "audio/wav", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()

	var out TurnResponse
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
	}
	return resp, out
}

func TestPostTurn(t *testing.T) {
	server, _ := newTestServer(t)

	resp, out := postTurn(t, server.URL, speechWAV())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if out.Outcome != "completed" || !out.AudioAvailable {
		t.Errorf("Unexpected response %+v", out)
	}
	if len(out.Transcript) != 2 || out.Transcript[0].Text != "a bowl of oatmeal" || out.Transcript[1].Role != dialogue.RoleAssistant {
		t.Errorf("Unexpected transcript %+v", out.Transcript)
	}
	if out.SessionID == "" {
		t.Error("Expected a session id")
	}
}

func TestPostTurn_EmptyBodyResets(t *testing.T) {
	server, manager := newTestServer(t)
	postTurn(t, server.URL, speechWAV())

	resp, out := postTurn(t, server.URL, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if out.Outcome != "reset" || len(out.Transcript) != 0 || out.AudioAvailable {
		t.Errorf("Expected reset response, got %+v", out)
	}
	if len(manager.Snapshot().Transcript) != 0 {
		t.Error("Expected the conversation to be cleared")
	}
}

func TestPostTurn_InvalidWAV(t *testing.T) {
	server, _ := newTestServer(t)

	resp, _ := postTurn(t, server.URL, []byte("definitely not a wav file"))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestPostTurn_TooLarge(t *testing.T) {
	router := NewRouter(Options{Conversation: busyConversation{}, MaxRecordingBytes: 64})
	server := httptest.NewServer(router)
	defer server.Close()

	resp, _ := postTurn(t, server.URL, speechWAV())
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", resp.StatusCode)
	}
}

func TestPostTurn_Conflict(t *testing.T) {
	for _, err := range []error{conversation.ErrTurnInProgress, conversation.ErrTurnAbandoned} {
		server := httptest.NewServer(NewRouter(Options{Conversation: busyConversation{err: err}}))

		resp, _ := postTurn(t, server.URL, speechWAV())
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("%v: expected 409, got %d", err, resp.StatusCode)
		}
		server.Close()
	}
}

func TestResetAndTranscript(t *testing.T) {
	server, _ := newTestServer(t)
	postTurn(t, server.URL, speechWAV())

	resp, err := http.Get(server.URL + "/api/transcript")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var before TranscriptResponse
	json.NewDecoder(resp.Body).Decode(&before)
	resp.Body.Close()
	if len(before.Transcript) != 2 {
		t.Fatalf("Expected 2 entries before reset, got %d", len(before.Transcript))
	}

	resp, err = http.Post(server.URL+"/api/reset", "application/json", nil)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	var after TranscriptResponse
	json.NewDecoder(resp.Body).Decode(&after)
	resp.Body.Close()

	if after.Transcript == nil || len(after.Transcript) != 0 || after.AudioAvailable {
		t.Errorf("Expected empty transcript after reset, got %+v", after)
	}
	if after.SessionID == before.SessionID {
		t.Error("Expected a new session id")
	}
}

func TestLatestAudio(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/api/audio/latest")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 before any turn, got %d", resp.StatusCode)
	}

	postTurn(t, server.URL, speechWAV())

	resp, err = http.Get(server.URL + "/api/audio/latest")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Unexpected content type %q", ct)
	}

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	rec, err := audio.DecodeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("Response is not a valid WAV: %v", err)
	}
	if rec.SampleRate != audio.SynthesisSampleRate || len(rec.Samples) != 2 {
		t.Errorf("Unexpected audio %d Hz, %d samples", rec.SampleRate, len(rec.Samples))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := httptest.NewServer(NewRouter(Options{Conversation: busyConversation{}, MetricsEnabled: true}))
	defer server.Close()

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		resp, err := http.Get(server.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
