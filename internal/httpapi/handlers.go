package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/conversation"
	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
)

type handler struct {
	conversation Conversation
	maxBytes     int64
}

// TurnResponse is returned by POST /api/turns
type TurnResponse struct {
	SessionID      string             `json:"session_id"`
	Outcome        string             `json:"outcome"`
	Transcript     []dialogue.Message `json:"transcript"`
	AudioAvailable bool               `json:"audio_available"`
	Failures       []string           `json:"failures,omitempty"`
}

// TranscriptResponse is returned by the reset and transcript endpoints
type TranscriptResponse struct {
	SessionID      string             `json:"session_id"`
	Transcript     []dialogue.Message `json:"transcript"`
	AudioAvailable bool               `json:"audio_available"`
}

func (h *handler) handleTurn(w http.ResponseWriter, r *http.Request) {
	logger := observability.WithCorrelationID(middleware.GetReqID(r.Context()))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "recording exceeds "+strconv.FormatInt(h.maxBytes, 10)+" bytes")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read recording")
		return
	}

	var rec audio.Recording
	if len(body) > 0 {
		rec, err = audio.DecodeWAV(body)
		if err != nil {
			logger.Warn().Err(err).Int("bytes", len(body)).Msg("Rejected recording")
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.conversation.Submit(r.Context(), rec)
	switch {
	case err == nil:
	case errors.Is(err, conversation.ErrTurnInProgress):
		respondError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, conversation.ErrTurnAbandoned):
		respondError(w, http.StatusConflict, err.Error())
		return
	default:
		logger.Info().Err(err).Msg("Turn did not complete")
		respondError(w, http.StatusServiceUnavailable, "turn cancelled")
		return
	}

	resp := TurnResponse{
		SessionID:      result.Session.ID,
		Outcome:        string(result.Outcome),
		Transcript:     transcriptOf(result.Session),
		AudioAvailable: result.Session.LastAudio != nil,
	}
	for _, f := range result.Failures {
		resp.Failures = append(resp.Failures, f.Stage)
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *handler) handleReset(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, transcriptResponse(h.conversation.Reset()))
}

func (h *handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, transcriptResponse(h.conversation.Snapshot()))
}

func (h *handler) handleLatestAudio(w http.ResponseWriter, r *http.Request) {
	clip := h.conversation.Snapshot().LastAudio
	if clip == nil {
		respondError(w, http.StatusNotFound, "no audio available")
		return
	}

	data := audio.EncodeFloatWAV(clip)
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func transcriptResponse(s conversation.Session) TranscriptResponse {
	return TranscriptResponse{
		SessionID:      s.ID,
		Transcript:     transcriptOf(s),
		AudioAvailable: s.LastAudio != nil,
	}
}

func transcriptOf(s conversation.Session) []dialogue.Message {
	if s.Transcript == nil {
		return []dialogue.Message{}
	}
	return s.Transcript
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger := observability.WithComponent("httpapi")
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
