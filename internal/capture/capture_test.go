package capture_test

import (
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"

	"stylist-backend/internal/capture"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	frame image.Image
	err   error
}

func (s staticSource) Frame() (image.Image, error) {
	return s.frame, s.err
}

func testFrame(w, h int) image.Image {
	frame := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			frame.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return frame
}

func TestCaptureNoSource(t *testing.T) {
	assert.Equal(t, "", capture.NewCapturer(nil).Capture())
}

func TestCaptureSourceError(t *testing.T) {
	capturer := capture.NewCapturer(staticSource{err: errors.New("camera detached")})
	assert.Equal(t, "", capturer.Capture())
}

func TestCaptureZeroSizeFrame(t *testing.T) {
	capturer := capture.NewCapturer(staticSource{frame: image.NewRGBA(image.Rect(0, 0, 0, 0))})
	assert.Equal(t, "", capturer.Capture())
}

func TestCaptureNilFrame(t *testing.T) {
	capturer := capture.NewCapturer(staticSource{})
	assert.Equal(t, "", capturer.Capture())
}

func TestCaptureEncodesDataURI(t *testing.T) {
	capturer := capture.NewCapturer(staticSource{frame: testFrame(32, 24)})

	payload := capturer.Capture()
	require.NotEmpty(t, payload)
	assert.True(t, strings.HasPrefix(payload, "data:image/jpeg;base64,"))

	// Capture is idempotent with respect to source state.
	assert.Equal(t, payload, capturer.Capture())
}
