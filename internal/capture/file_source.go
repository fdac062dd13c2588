package capture

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
)

// FileSource reads the latest snapshot written to a fixed path, e.g. by a
// kiosk camera daemon that overwrites the file on every frame.
type FileSource struct {
	Path string
}

func (s FileSource) Frame() (image.Image, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening frame file: %w", err)
	}
	defer f.Close()

	frame, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("error decoding frame file: %w", err)
	}
	return frame, nil
}
