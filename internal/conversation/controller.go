package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
	"github.com/lexiqai/voice-calorie-tracker/internal/stt"
	"github.com/lexiqai/voice-calorie-tracker/internal/tts"
)

const (
	// TranscriptionPlaceholder stands in for the user's words when transcription fails
	TranscriptionPlaceholder = "Error in audio transcription."

	// DialoguePlaceholder stands in for the assistant's reply when generation fails
	DialoguePlaceholder = "Sorry, I had trouble coming up with a reply. Could you say that again?"
)

// Outcome summarizes how a turn ended
type Outcome string

const (
	OutcomeReset     Outcome = "reset"
	OutcomeSilent    Outcome = "silent"
	OutcomeCompleted Outcome = "completed"
	OutcomeDegraded  Outcome = "degraded" // completed with at least one placeholder or missing audio
)

// StageFailure records a remote stage that failed during a turn
type StageFailure struct {
	Stage string
	Err   error
}

// TurnResult is the state produced by one turn
type TurnResult struct {
	TurnID   string
	Session  Session
	Audio    *audio.Clip
	Outcome  Outcome
	Failures []StageFailure
}

// TurnRunner runs a single conversational turn
type TurnRunner interface {
	RunTurn(ctx context.Context, session Session, rec audio.Recording) (TurnResult, error)
}

// ControllerConfig holds the non-client settings of a Controller
type ControllerConfig struct {
	CallTimeout          time.Duration
	TempDir              string
	SilenceGateThreshold float64
	Observer             StageObserver
}

// Controller drives one turn through transcription, dialogue and synthesis
type Controller struct {
	transcriber stt.Transcriber
	generator   dialogue.Generator
	synthesizer tts.Synthesizer

	callTimeout time.Duration
	tempDir     string
	silenceGate float64
	observer    StageObserver
}

// NewController creates a turn controller over the given clients
func NewController(transcriber stt.Transcriber, generator dialogue.Generator, synthesizer tts.Synthesizer, cfg ControllerConfig) *Controller {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	return &Controller{
		transcriber: transcriber,
		generator:   generator,
		synthesizer: synthesizer,
		callTimeout: cfg.CallTimeout,
		tempDir:     cfg.TempDir,
		silenceGate: cfg.SilenceGateThreshold,
		observer:    cfg.Observer,
	}
}

// RunTurn processes one recording against the given session snapshot.
// The returned error is non-nil only when ctx was cancelled before the turn
// finished; remote failures are reported through placeholders and Failures.
func (c *Controller) RunTurn(ctx context.Context, session Session, rec audio.Recording) (result TurnResult, err error) {
	turnID := uuid.New().String()
	logger := observability.WithTurn(session.ID, turnID)
	metrics := observability.NewTurnMetrics(turnID)

	metrics.RecordTurnStart()
	defer func() {
		outcome := string(result.Outcome)
		if err != nil {
			outcome = "abandoned"
		}
		metrics.RecordTurnEnd(outcome)
	}()

	if rec.Empty() {
		c.report(ctx, turnID, StageIdle)
		logger.Info().Msg("Empty recording, starting a new conversation")
		return TurnResult{TurnID: turnID, Session: NewSession(), Outcome: OutcomeReset}, nil
	}

	metrics.RecordAudioSeconds("recorded", rec.Duration().Seconds())

	if c.silenceGate > 0 && rec.RMS() < c.silenceGate {
		c.report(ctx, turnID, StageSilent)
		logger.Debug().Float64("rms", rec.RMS()).Msg("Recording below energy gate")
		return c.silent(turnID, session), nil
	}

	result = TurnResult{TurnID: turnID}

	c.report(ctx, turnID, StageTranscribing)
	userText, silent := c.transcribe(ctx, rec, metrics, logger, &result)
	if err := ctx.Err(); err != nil {
		return c.abandon(logger, StageTranscribing, err)
	}
	if silent {
		c.report(ctx, turnID, StageSilent)
		return c.silent(turnID, session), nil
	}
	c.report(ctx, turnID, StageTranscribed)

	next := session.withTurn(Turn{Role: dialogue.RoleUser, Text: userText})

	c.report(ctx, turnID, StageGenerating)
	reply := c.generate(ctx, next.Transcript, metrics, logger, &result)
	if err := ctx.Err(); err != nil {
		return c.abandon(logger, StageGenerating, err)
	}
	next = next.withTurn(Turn{Role: dialogue.RoleAssistant, Text: reply})

	c.report(ctx, turnID, StageSynthesizing)
	clip := c.synthesize(ctx, reply, metrics, logger, &result)
	if err := ctx.Err(); err != nil {
		return c.abandon(logger, StageSynthesizing, err)
	}
	next.LastAudio = clip
	if clip != nil {
		metrics.RecordAudioSeconds("synthesized", clip.Duration().Seconds())
	}

	result.Session = next
	result.Audio = clip
	result.Outcome = OutcomeCompleted
	if len(result.Failures) > 0 {
		result.Outcome = OutcomeDegraded
	}

	c.report(ctx, turnID, StageComplete)
	logger.Info().
		Str("outcome", string(result.Outcome)).
		Int("transcript_len", len(next.Transcript)).
		Int("failures", len(result.Failures)).
		Msg("Turn complete")

	return result, nil
}

func (c *Controller) transcribe(ctx context.Context, rec audio.Recording, metrics *observability.TurnMetrics, logger zerolog.Logger, result *TurnResult) (string, bool) {
	tmp, err := audio.WriteTempWAV(c.tempDir, rec)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write recording")
		metrics.RecordError("temp_file", "transcription")
		result.Failures = append(result.Failures, StageFailure{Stage: observability.StageTranscription, Err: err})
		return TranscriptionPlaceholder, false
	}
	defer func() {
		if err := tmp.Remove(); err != nil {
			logger.Warn().Err(err).Str("path", tmp.Path).Msg("Failed to remove temp recording")
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	metrics.RecordStageStart(observability.StageTranscription)
	tr, err := c.transcriber.Transcribe(callCtx, tmp.Path)
	metrics.RecordStageEnd(observability.StageTranscription, err == nil)

	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		logger.Error().Err(err).Msg("Transcription failed")
		metrics.RecordError(errorKind(err), "transcription")
		result.Failures = append(result.Failures, StageFailure{Stage: observability.StageTranscription, Err: err})
		return TranscriptionPlaceholder, false
	}
	if tr.Silent {
		logger.Debug().Float64("no_speech_prob", tr.NoSpeechProb).Msg("No speech detected")
		return "", true
	}

	logger.Debug().Str("text", tr.Text).Msg("Transcribed")
	return tr.Text, false
}

func (c *Controller) generate(ctx context.Context, transcript []Turn, metrics *observability.TurnMetrics, logger zerolog.Logger, result *TurnResult) string {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	metrics.RecordStageStart(observability.StageDialogue)
	reply, err := c.generator.NextUtterance(callCtx, transcript)
	metrics.RecordStageEnd(observability.StageDialogue, err == nil)

	if err != nil {
		if ctx.Err() != nil {
			return ""
		}
		logger.Error().Err(err).Msg("Dialogue generation failed")
		metrics.RecordError(errorKind(err), "dialogue")
		result.Failures = append(result.Failures, StageFailure{Stage: observability.StageDialogue, Err: err})
		return DialoguePlaceholder
	}

	logger.Debug().Str("reply", reply).Msg("Generated reply")
	return reply
}

func (c *Controller) synthesize(ctx context.Context, text string, metrics *observability.TurnMetrics, logger zerolog.Logger, result *TurnResult) *audio.Clip {
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	metrics.RecordStageStart(observability.StageSynthesis)
	clip, err := c.synthesizer.Synthesize(callCtx, text)
	metrics.RecordStageEnd(observability.StageSynthesis, err == nil)

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		logger.Error().Err(err).Msg("Speech synthesis failed")
		metrics.RecordError(errorKind(err), "synthesis")
		result.Failures = append(result.Failures, StageFailure{Stage: observability.StageSynthesis, Err: err})
		return nil
	}
	return clip
}

func (c *Controller) silent(turnID string, session Session) TurnResult {
	return TurnResult{TurnID: turnID, Session: session.Clone(), Outcome: OutcomeSilent}
}

func (c *Controller) abandon(logger zerolog.Logger, stage Stage, err error) (TurnResult, error) {
	logger.Info().Str("stage", string(stage)).Err(err).Msg("Turn abandoned")
	return TurnResult{}, err
}

func (c *Controller) report(ctx context.Context, turnID string, stage Stage) {
	if c.observer != nil {
		c.observer.StageChanged(ctx, turnID, stage)
	}
}

var _ TurnRunner = (*Controller)(nil)
