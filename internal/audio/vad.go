package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold for speech detection
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame (320 for 20ms at 16kHz)
}

// DefaultVADConfig returns a default VAD configuration for 16kHz microphone audio
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   25,  // 500ms of silence (25 frames * 20ms)
		FrameSize:       320, // 20ms at 16kHz
	}
}

// FrameSizeFor returns the number of samples in a 20ms frame
func FrameSizeFor(sampleRate int) int {
	size := sampleRate / 50
	if size < 1 {
		return 1
	}
	return size
}

// VADDetector performs energy-based Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
	pending        []int16
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes one audio frame.
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []int16) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// VADEvent marks a speech boundary found while processing a chunk
type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechEnd
)

// VADBoundary is a speech boundary and the offset in the processed chunk
// just past the frame that produced it
type VADBoundary struct {
	Event  VADEvent
	Offset int
}

// Process splits an arbitrary-length chunk into frames and runs each through
// the detector. Samples left over from a partial frame are kept for the next
// call. The returned boundaries are in order of occurrence.
func (v *VADDetector) Process(samples []int16) []VADBoundary {
	frameSize := v.config.FrameSize
	if frameSize < 1 {
		frameSize = 1
	}

	carried := len(v.pending)
	v.pending = append(v.pending, samples...)

	var boundaries []VADBoundary
	consumed := 0
	for len(v.pending)-consumed >= frameSize {
		_, started, ended := v.ProcessFrame(v.pending[consumed : consumed+frameSize])
		consumed += frameSize
		offset := consumed - carried
		if started {
			boundaries = append(boundaries, VADBoundary{Event: VADSpeechStart, Offset: offset})
		}
		if ended {
			boundaries = append(boundaries, VADBoundary{Event: VADSpeechEnd, Offset: offset})
		}
	}

	// Keep the leftover in a fresh slice so the backing array does not grow without bound
	v.pending = append([]int16(nil), v.pending[consumed:]...)
	return boundaries
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
	v.pending = nil
}
