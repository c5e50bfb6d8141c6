package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WAV format tags
const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
)

var (
	// ErrInvalidWAV is returned for data that is not a RIFF/WAVE container
	ErrInvalidWAV = errors.New("invalid WAV data")
	// ErrUnsupportedWAV is returned for encodings other than 16-bit PCM and 32-bit float
	ErrUnsupportedWAV = errors.New("unsupported WAV encoding")
)

// EncodeWAV wraps the recording as a 16-bit PCM WAV file
func EncodeWAV(rec Recording) []byte {
	return wrapWAV(SamplesToBytes(rec.Samples), formatPCM, rec.SampleRate, 16, rec.channels())
}

// EncodeFloatWAV wraps the clip as a mono 32-bit float WAV file
func EncodeFloatWAV(clip *Clip) []byte {
	if clip == nil {
		return wrapWAV(nil, formatIEEEFloat, SynthesisSampleRate, 32, 1)
	}
	return wrapWAV(EncodeFloat32LE(clip.Samples), formatIEEEFloat, clip.SampleRate, 32, 1)
}

func wrapWAV(data []byte, format, sampleRate, bitsPerSample, channels int) []byte {
	dataLen := len(data)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, 44, 44+dataLen)

	// RIFF chunk descriptor
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")

	// fmt sub-chunk
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], uint16(format))
	binary.LittleEndian.PutUint16(header[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(bitsPerSample))

	// data sub-chunk
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	return append(header, data...)
}

type wavFormat struct {
	format        int
	channels      int
	sampleRate    int
	bitsPerSample int
}

// DecodeWAV parses a 16-bit PCM or 32-bit float WAV file into a recording.
// Float input is converted to 16-bit PCM.
func DecodeWAV(data []byte) (Recording, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Recording{}, ErrInvalidWAV
	}

	var (
		fmtChunk *wavFormat
		payload  []byte
		found    bool
	)

	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(data) || end < body {
			// Some writers leave the data size unset when streaming
			if id == "data" {
				end = len(data)
			} else {
				return Recording{}, fmt.Errorf("%w: chunk %q overruns file", ErrInvalidWAV, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Recording{}, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			f := &wavFormat{
				format:        int(binary.LittleEndian.Uint16(data[body:])),
				channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				sampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				bitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
			if f.format == formatExtensible && size >= 26 {
				f.format = int(binary.LittleEndian.Uint16(data[body+24:]))
			}
			fmtChunk = f
		case "data":
			payload = data[body:end]
			found = true
		}

		// Chunks are word aligned
		off = end + end%2
	}

	if fmtChunk == nil || !found {
		return Recording{}, fmt.Errorf("%w: missing fmt or data chunk", ErrInvalidWAV)
	}
	if fmtChunk.channels < 1 || fmtChunk.sampleRate < 1 {
		return Recording{}, fmt.Errorf("%w: bad channel count or sample rate", ErrInvalidWAV)
	}

	rec := Recording{
		SampleRate: fmtChunk.sampleRate,
		Channels:   fmtChunk.channels,
	}

	switch {
	case fmtChunk.format == formatPCM && fmtChunk.bitsPerSample == 16:
		rec.Samples = BytesToSamples(payload)
	case fmtChunk.format == formatIEEEFloat && fmtChunk.bitsPerSample == 32:
		rec.Samples = FloatToInt16(DecodeFloat32LE(payload))
	default:
		return Recording{}, fmt.Errorf("%w: format %d with %d bits", ErrUnsupportedWAV, fmtChunk.format, fmtChunk.bitsPerSample)
	}

	return rec, nil
}
