package conversation

import (
	"time"

	"github.com/google/uuid"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
)

// Turn is one transcript entry
type Turn = dialogue.Message

// Session is a snapshot of one conversation.
// Snapshots are values: functions that produce a new state return a new
// Session and never modify the one they were given.
type Session struct {
	ID         string
	CreatedAt  time.Time
	Transcript []Turn
	LastAudio  *audio.Clip

	// Stopped is carried for clients that track a stop request; turn
	// processing does not consult it.
	Stopped bool
}

// NewSession returns an empty conversation with a fresh id
func NewSession() Session {
	return Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a copy whose transcript can be appended to independently
func (s Session) Clone() Session {
	out := s
	if s.Transcript != nil {
		out.Transcript = make([]Turn, len(s.Transcript), len(s.Transcript)+2)
		copy(out.Transcript, s.Transcript)
	}
	return out
}

// withTurn returns a copy of s with t appended
func (s Session) withTurn(t Turn) Session {
	out := s.Clone()
	out.Transcript = append(out.Transcript, t)
	return out
}
