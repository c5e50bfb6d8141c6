package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// TempWAVName returns the content-derived file name for a recording
func TempWAVName(rec Recording) string {
	sum := xxhash.Sum64(SamplesToBytes(rec.Samples))
	return strconv.FormatUint(sum, 16) + ".wav"
}

// TempWAV is a recording written to disk for upload
type TempWAV struct {
	Path string
}

// WriteTempWAV writes the recording as a 16-bit PCM WAV file in dir.
// The caller must call Remove once the file is no longer needed.
func WriteTempWAV(dir string, rec Recording) (*TempWAV, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	path := filepath.Join(dir, TempWAVName(rec))
	if err := os.WriteFile(path, EncodeWAV(rec), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write temp recording: %w", err)
	}

	return &TempWAV{Path: path}, nil
}

// Remove deletes the file. It is safe to call on a nil receiver and more than once.
func (t *TempWAV) Remove() error {
	if t == nil || t.Path == "" {
		return nil
	}
	if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
