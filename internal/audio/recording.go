package audio

import "time"

// SynthesisSampleRate is the rate of every clip produced by speech synthesis
const SynthesisSampleRate = 24000

// Recording is one captured user utterance as interleaved 16-bit PCM
type Recording struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Empty reports whether the recording carries no audio
func (r Recording) Empty() bool {
	return len(r.Samples) == 0
}

// Duration returns the playback length of the recording
func (r Recording) Duration() time.Duration {
	return frameDuration(len(r.Samples), r.channels(), r.SampleRate)
}

// RMS returns the root mean square energy across all samples
func (r Recording) RMS() float64 {
	return CalculateRMS(r.Samples)
}

func (r Recording) channels() int {
	if r.Channels < 1 {
		return 1
	}
	return r.Channels
}

// Clip is synthesized mono audio as 32-bit float samples
type Clip struct {
	SampleRate int
	Samples    []float32
}

// Duration returns the playback length of the clip
func (c *Clip) Duration() time.Duration {
	if c == nil {
		return 0
	}
	return frameDuration(len(c.Samples), 1, c.SampleRate)
}

func frameDuration(samples, channels, sampleRate int) time.Duration {
	if sampleRate <= 0 || samples == 0 {
		return 0
	}
	frames := samples / channels
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
