package conversation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
)

// Manager owns the active conversation and applies turn results to it
type Manager struct {
	runner TurnRunner
	events *Broadcaster
	logger zerolog.Logger

	mu         sync.Mutex
	session    Session
	generation uint64
	running    bool
	cancelTurn context.CancelFunc
}

// NewManager creates a manager with a fresh conversation.
// A nil broadcaster gets a private one.
func NewManager(runner TurnRunner, events *Broadcaster) *Manager {
	if events == nil {
		events = NewBroadcaster()
	}
	return &Manager{
		runner:  runner,
		events:  events,
		logger:  observability.WithComponent("conversation"),
		session: NewSession(),
	}
}

// Submit runs one turn against the current conversation and applies its result.
// Only one turn runs at a time; a reset while the turn runs cancels it and
// the turn's result is discarded.
func (m *Manager) Submit(ctx context.Context, rec audio.Recording) (TurnResult, error) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return TurnResult{}, ErrTurnInProgress
	}
	turnCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancelTurn = cancel
	generation := m.generation
	snapshot := m.session.Clone()
	m.mu.Unlock()

	result, err := m.runner.RunTurn(turnCtx, snapshot, rec)
	cancel()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		observability.RecordAbandonedTurn()
		m.logger.Info().Str("turn_id", result.TurnID).Msg("Discarding result of abandoned turn")
		return TurnResult{}, ErrTurnAbandoned
	}
	m.running = false
	m.cancelTurn = nil

	if err != nil {
		return TurnResult{}, err
	}

	m.session = result.Session
	if result.Outcome == OutcomeReset {
		m.generation++
		observability.RecordReset()
		m.events.Publish(Event{Type: EventReset, TurnID: result.TurnID, Session: m.session.Clone()})
	} else {
		m.events.Publish(Event{
			Type:    EventTurn,
			TurnID:  result.TurnID,
			Outcome: result.Outcome,
			Session: m.session.Clone(),
			Audio:   result.Audio,
		})
	}

	result.Session = m.session.Clone()
	return result, nil
}

// Reset starts a new conversation, cancelling any turn in flight
func (m *Manager) Reset() Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
	m.running = false
	m.generation++
	m.session = NewSession()

	observability.RecordReset()
	m.logger.Info().Str("session_id", m.session.ID).Msg("Conversation reset")
	m.events.Publish(Event{Type: EventReset, Session: m.session.Clone()})

	return m.session.Clone()
}

// Snapshot returns a copy of the current conversation
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Busy reports whether a turn is in flight
func (m *Manager) Busy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Subscribe registers a listener for stage, turn and reset events
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.Subscribe(buffer)
}
