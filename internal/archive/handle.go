package archive

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// Extension is the file extension of archived recordings.
const Extension = ".webm"

// Handle is a decoded recording materialized as a temporary file for players and downloads.
// Release must be called once the consumer is done with it.
type Handle struct {
	Path string
	Size int64

	once sync.Once
	err  error
}

// PlayableHandle decodes v into a temporary file.
func PlayableHandle(v SavedVideo) (*Handle, error) {
	data, err := v.Decode()
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "facetrack-*"+Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to create playback file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write playback file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write playback file: %w", err)
	}
	return &Handle{Path: f.Name(), Size: int64(len(data))}, nil
}

// Release deletes the temporary file. Calling it more than once is harmless.
func (h *Handle) Release() error {
	h.once.Do(func() {
		if err := os.Remove(h.Path); err != nil && !os.IsNotExist(err) {
			h.err = err
		}
	})
	return h.err
}

// DownloadName is the file name a recording is saved under: "{name}.webm".
func DownloadName(v SavedVideo) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', 0:
			return '-'
		}
		return r
	}, v.Name)
	if name == "" {
		name = v.ID
	}
	return name + Extension
}
