package capture

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"log/slog"
)

const jpegQuality = 80 // matches the 0.8 quality factor used by the web client

// FrameSource supplies the current frame of a live video feed. Implementations
// are injected explicitly; the capturer never goes looking for a source on its
// own.
type FrameSource interface {
	Frame() (image.Image, error)
}

type Capturer struct {
	source FrameSource
}

func NewCapturer(source FrameSource) *Capturer {
	return &Capturer{source: source}
}

// Capture grabs the current frame and encodes it as a self-describing
// data-URI JPEG payload. Every failure mode (no source attached, source
// error, zero-size frame, encode error) degrades to an empty string; a
// missing snapshot is never an error for the caller. The source's playback
// state is untouched, so Capture can be called repeatedly.
func (c *Capturer) Capture() string {
	if c == nil || c.source == nil {
		return ""
	}

	frame, err := c.source.Frame()
	if err != nil {
		slog.Debug("frame capture failed", "error", err)
		return ""
	}
	if frame == nil {
		return ""
	}

	bounds := frame.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return ""
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: jpegQuality}); err != nil {
		slog.Debug("frame encode failed", "error", err)
		return ""
	}

	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}
