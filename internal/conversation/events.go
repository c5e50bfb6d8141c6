package conversation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
)

// Stage is the observable progress of a turn
type Stage string

const (
	StageIdle         Stage = "idle"
	StageTranscribing Stage = "transcribing"
	StageSilent       Stage = "silent"
	StageTranscribed  Stage = "transcribed"
	StageGenerating   Stage = "generating"
	StageSynthesizing Stage = "synthesizing"
	StageComplete     Stage = "complete"
)

// StageObserver is notified as a turn moves through its stages
type StageObserver interface {
	StageChanged(ctx context.Context, turnID string, stage Stage)
}

// EventType identifies what an Event carries
type EventType string

const (
	EventStage EventType = "stage"
	EventTurn  EventType = "turn"
	EventReset EventType = "reset"
)

// Event is published to subscribers of the active conversation
type Event struct {
	Type    EventType
	TurnID  string
	Stage   Stage
	Outcome Outcome
	Session Session
	Audio   *audio.Clip
}

// Broadcaster fans conversation events out to subscribers.
// Slow subscribers lose events rather than block the publisher.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int
	logger      zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[int]chan Event),
		logger:      observability.WithComponent("conversation"),
	}
}

// Subscribe registers a listener. The returned function unsubscribes and
// closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber without blocking
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			b.logger.Warn().
				Int("subscriber", id).
				Str("event", string(ev.Type)).
				Msg("Subscriber channel full, dropping event")
		}
	}
}

// StageChanged publishes a stage event unless the turn was already abandoned
func (b *Broadcaster) StageChanged(ctx context.Context, turnID string, stage Stage) {
	if ctx.Err() != nil {
		return
	}
	b.Publish(Event{Type: EventStage, TurnID: turnID, Stage: stage})
}
