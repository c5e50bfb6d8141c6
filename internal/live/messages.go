package live

import "github.com/lexiqai/voice-calorie-tracker/internal/dialogue"

// Client control message types
const (
	MessageStart    = "start"
	MessageStop     = "stop"
	MessageReset    = "reset"
	MessagePlayback = "playback"
)

// ControlMessage is a text frame sent by the client
type ControlMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate,omitempty"`
	HandsFree  bool   `json:"hands_free,omitempty"`
	Playing    bool   `json:"playing,omitempty"`
}

// StageMessage reports turn progress
type StageMessage struct {
	Type   string `json:"type"`
	TurnID string `json:"turn_id,omitempty"`
	Stage  string `json:"stage"`
}

// TranscriptMessage carries the conversation after a turn or reset
type TranscriptMessage struct {
	Type      string             `json:"type"`
	SessionID string             `json:"session_id"`
	Turns     []dialogue.Message `json:"turns"`
	Outcome   string             `json:"outcome,omitempty"`
}

// AudioMessage announces the binary float32 frame that follows it
type AudioMessage struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sample_rate"`
	Samples    int    `json:"samples"`
}

// ResetMessage tells the client a new conversation started
type ResetMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

// ErrorMessage reports a problem with the client's request
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
