package live

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/conversation"
	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second

	defaultSampleRate = 16000
)

// Conversation is the part of the conversation manager a live socket drives
type Conversation interface {
	Submit(ctx context.Context, rec audio.Recording) (conversation.TurnResult, error)
	Reset() conversation.Session
	Snapshot() conversation.Session
	Subscribe(buffer int) (<-chan conversation.Event, func())
	Busy() bool
}

// Handler upgrades requests to live conversation sockets
type Handler struct {
	conversation Conversation
	upgrader     websocket.Upgrader

	vadThreshold     float64
	vadSilenceFrames int
	maxSamples       int
}

// NewHandler creates a live socket handler
func NewHandler(conv Conversation, cfg *config.Config) *Handler {
	maxSamples := int(cfg.MaxRecordingBytes / 2)
	if maxSamples <= 0 {
		maxSamples = 30 * 60 * defaultSampleRate
	}
	return &Handler{
		conversation: conv,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Clients are local tools, not browsers on other origins
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		vadThreshold:     cfg.VADEnergyThreshold,
		vadSilenceFrames: cfg.VADSilenceFrames,
		maxSamples:       maxSamples,
	}
}

// connection holds the state of one live socket
type connection struct {
	conv       Conversation
	conn       *websocket.Conn
	logger     zerolog.Logger
	maxSamples int

	vadThreshold     float64
	vadSilenceFrames int

	// writeMu serializes writes; gorilla connections allow one writer
	writeMu sync.Mutex

	mu         sync.Mutex
	sampleRate int
	handsFree  bool
	recording  bool
	playing    bool
	busy       bool
	samples    []int16
	vad        *audio.VADDetector

	// idle is closed once this socket's in-flight turn has released the recorder
	idle chan struct{}

	ctx    context.Context
	turns  sync.WaitGroup
	cancel context.CancelFunc
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := observability.WithComponent("live")
		logger.Warn().Err(err).Msg("Failed to upgrade connection")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := &connection{
		conv:             h.conversation,
		conn:             conn,
		logger:           observability.WithCorrelationID(observability.NewCorrelationID()).With().Str("component", "live").Logger(),
		maxSamples:       h.maxSamples,
		vadThreshold:     h.vadThreshold,
		vadSilenceFrames: h.vadSilenceFrames,
		sampleRate:       defaultSampleRate,
		ctx:              ctx,
		cancel:           cancel,
	}
	defer func() {
		cancel()
		c.turns.Wait()
	}()

	events, unsubscribe := h.conversation.Subscribe(32)
	defer unsubscribe()

	c.logger.Info().Str("remote_addr", r.RemoteAddr).Msg("Live connection opened")

	go c.forwardEvents(events)
	go c.pingLoop()

	c.sendTranscript(h.conversation.Snapshot(), "")
	c.readLoop()

	c.logger.Info().Msg("Live connection closed")
}

func (c *connection) readLoop() {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		switch msgType {
		case websocket.TextMessage:
			c.handleControl(data)
		case websocket.BinaryMessage:
			c.handleAudio(data)
		}
	}
}

func (c *connection) handleControl(data []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("malformed control message")
		return
	}

	switch msg.Type {
	case MessageStart:
		c.mu.Lock()
		if msg.SampleRate > 0 {
			c.sampleRate = msg.SampleRate
		}
		c.handsFree = msg.HandsFree
		c.samples = nil
		if c.handsFree {
			c.recording = false
			c.vad = audio.NewVADDetector(&audio.VADConfig{
				EnergyThreshold: c.vadThreshold,
				SilenceFrames:   c.vadSilenceFrames,
				FrameSize:       audio.FrameSizeFor(c.sampleRate),
			})
		} else {
			c.recording = !c.busy
			c.vad = nil
		}
		c.mu.Unlock()

		c.logger.Debug().Int("sample_rate", msg.SampleRate).Bool("hands_free", msg.HandsFree).Msg("Capture started")

	case MessageStop:
		c.mu.Lock()
		rec, ok := c.takeRecording()
		c.handsFree = false
		c.vad = nil
		c.mu.Unlock()

		if ok {
			c.submit(rec)
		}

	case MessageReset:
		c.mu.Lock()
		c.recording = false
		c.samples = nil
		if c.vad != nil {
			c.vad.Reset()
		}
		c.mu.Unlock()

		c.conv.Reset()

	case MessagePlayback:
		c.mu.Lock()
		c.playing = msg.Playing
		c.mu.Unlock()

	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *connection) handleAudio(data []byte) {
	chunk := audio.BytesToSamples(data)

	c.mu.Lock()
	if c.busy || c.conv.Busy() {
		c.mu.Unlock()
		return
	}

	var submitRec audio.Recording
	var submitNow bool

	if c.handsFree && c.vad != nil {
		// from is where the part of the chunk not yet assigned to a recording begins
		from := 0
		for _, b := range c.vad.Process(chunk) {
			switch b.Event {
			case audio.VADSpeechStart:
				if !c.playing && !c.recording {
					c.recording = true
					c.samples = nil
				}
			case audio.VADSpeechEnd:
				if c.recording {
					c.samples = append(c.samples, chunk[from:b.Offset]...)
					rec, ok := c.takeRecording()
					if submitNow {
						c.logger.Debug().Int("samples", len(rec.Samples)).Msg("Dropping utterance while a turn is pending")
					} else {
						submitRec, submitNow = rec, ok
					}
				}
				from = b.Offset
			}
		}
		chunk = chunk[from:]
	}

	if c.recording && len(chunk) > 0 {
		c.samples = append(c.samples, chunk...)
		if len(c.samples) >= c.maxSamples && !submitNow {
			c.logger.Warn().Int("samples", len(c.samples)).Msg("Recording reached size limit")
			submitRec, submitNow = c.takeRecording()
		}
	}
	c.mu.Unlock()

	if submitNow {
		c.submit(submitRec)
	}
}

// takeRecording ends the current recording. The detector keeps its state so
// speech later in the same chunk still opens a recording. c.mu must be held.
func (c *connection) takeRecording() (audio.Recording, bool) {
	if !c.recording {
		return audio.Recording{}, false
	}
	rec := audio.Recording{SampleRate: c.sampleRate, Channels: 1, Samples: c.samples}
	c.recording = false
	c.samples = nil
	return rec, !rec.Empty()
}

// submit runs the turn in the background; audio arriving meanwhile is dropped
func (c *connection) submit(rec audio.Recording) {
	idle := make(chan struct{})
	c.mu.Lock()
	c.busy = true
	c.idle = idle
	c.mu.Unlock()

	c.turns.Add(1)
	go func() {
		defer c.turns.Done()
		defer func() {
			c.mu.Lock()
			c.busy = false
			c.mu.Unlock()
			close(idle)
		}()

		_, err := c.conv.Submit(c.ctx, rec)
		switch {
		case err == nil:
		case errors.Is(err, conversation.ErrTurnAbandoned):
			c.logger.Debug().Msg("Turn abandoned after reset")
		case errors.Is(err, conversation.ErrTurnInProgress):
			c.sendError(err.Error())
		case errors.Is(err, context.Canceled):
		default:
			c.logger.Error().Err(err).Msg("Turn failed")
			c.sendError("turn failed")
		}
	}()
}

func (c *connection) forwardEvents(events <-chan conversation.Event) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case conversation.EventStage:
				c.writeJSON(StageMessage{Type: "stage", TurnID: ev.TurnID, Stage: string(ev.Stage)})
			case conversation.EventTurn:
				// Clients may answer a turn at once; make sure their audio is accepted
				if !c.awaitIdle() {
					return
				}
				c.sendTranscript(ev.Session, string(ev.Outcome))
				if ev.Audio != nil {
					c.sendAudio(ev.Audio)
				}
			case conversation.EventReset:
				c.writeJSON(ResetMessage{Type: MessageReset, SessionID: ev.Session.ID})
				c.sendTranscript(ev.Session, "")
			}
		}
	}
}

// awaitIdle blocks until this socket has no turn holding the recorder
func (c *connection) awaitIdle() bool {
	c.mu.Lock()
	idle := c.idle
	c.mu.Unlock()
	if idle == nil {
		return true
	}
	select {
	case <-idle:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *connection) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *connection) sendTranscript(s conversation.Session, outcome string) {
	turns := s.Transcript
	if turns == nil {
		turns = []dialogue.Message{}
	}
	c.writeJSON(TranscriptMessage{Type: "transcript", SessionID: s.ID, Turns: turns, Outcome: outcome})
}

func (c *connection) sendAudio(clip *audio.Clip) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(AudioMessage{Type: "audio", SampleRate: clip.SampleRate, Samples: len(clip.Samples)}); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write audio header")
		return
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio.EncodeFloat32LE(clip.Samples)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write audio")
	}
}

func (c *connection) sendError(message string) {
	c.writeJSON(ErrorMessage{Type: "error", Message: message})
}

func (c *connection) writeJSON(v interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to write message")
	}
}
