package transcript_test

import (
	"sync"
	"testing"
	"time"

	"stylist-backend/internal/transcript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	emit    func(transcript.Event)
	stops   int
	started int
	failure error
}

func (r *fakeRecognizer) Start(emit func(transcript.Event)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return r.failure
	}
	r.emit = emit
	r.started++
	return nil
}

func (r *fakeRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
}

func (r *fakeRecognizer) send(ev transcript.Event) {
	r.mu.Lock()
	emit := r.emit
	r.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

func (r *fakeRecognizer) stopCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func newTestSource(r transcript.Recognizer, n transcript.Notifier) *transcript.Source {
	return transcript.NewSource(r, n, transcript.WithTimings(20*time.Millisecond, 10*time.Millisecond))
}

func TestLiveTranscriptConcatenation(t *testing.T) {
	recognizer := &fakeRecognizer{}
	source := newTestSource(recognizer, nil)
	defer source.Stop()

	source.Start(func(string) {})

	recognizer.send(transcript.Event{Kind: transcript.SegmentInterim, Text: "what should"})
	assert.Equal(t, "what should", source.LiveTranscript())

	recognizer.send(transcript.Event{Kind: transcript.SegmentFinal, Text: "what should I wear"})
	recognizer.send(transcript.Event{Kind: transcript.SegmentInterim, Text: "tonight"})
	assert.Equal(t, "what should I wear tonight", source.LiveTranscript())
}

func TestTurnEndFiresOnceAfterPause(t *testing.T) {
	recognizer := &fakeRecognizer{}
	source := newTestSource(recognizer, nil)
	defer source.Stop()

	var mu sync.Mutex
	var turns []string
	source.Start(func(text string) {
		mu.Lock()
		turns = append(turns, text)
		mu.Unlock()
	})

	recognizer.send(transcript.Event{Kind: transcript.SegmentFinal, Text: "rate my outfit"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(turns) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"rate my outfit"}, turns)
	mu.Unlock()

	// After the display delay the live transcript clears.
	assert.Eventually(t, func() bool {
		return source.LiveTranscript() == ""
	}, time.Second, 5*time.Millisecond)

	// The pause timer does not fire a second time.
	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	assert.Len(t, turns, 1)
	mu.Unlock()
}

func TestActivityResetsPause(t *testing.T) {
	recognizer := &fakeRecognizer{}
	source := newTestSource(recognizer, nil)
	defer source.Stop()

	var mu sync.Mutex
	fired := 0
	source.Start(func(string) {
		mu.Lock()
		fired++
		mu.Unlock()
	})

	// Keep the transcript changing faster than the pause window.
	for i := 0; i < 5; i++ {
		recognizer.send(transcript.Event{Kind: transcript.SegmentInterim, Text: "still talking " + string(rune('a'+i))})
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		assert.Equal(t, 0, fired)
		mu.Unlock()
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	recognizer := &fakeRecognizer{}
	source := newTestSource(recognizer, nil)

	source.Start(func(string) {})
	require.True(t, source.Listening())

	source.Stop()
	stops := recognizer.stopCount()
	source.Stop()
	source.Stop()

	assert.False(t, source.Listening())
	assert.Equal(t, stops, recognizer.stopCount())
	assert.Equal(t, "", source.LiveTranscript())
}

func TestUnsupportedRecognizerNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	source := newTestSource(nil, notifier)

	source.Start(func(string) {})

	assert.False(t, source.Listening())
	assert.Equal(t, 1, notifier.count())
}

func TestRecognitionErrorNotifiesAndCleansUp(t *testing.T) {
	recognizer := &fakeRecognizer{}
	notifier := &fakeNotifier{}
	source := newTestSource(recognizer, notifier)

	source.Start(func(string) {})
	recognizer.send(transcript.Event{Kind: transcript.SegmentFinal, Text: "half a"})
	recognizer.send(transcript.Event{Kind: transcript.RecognitionError, Err: assert.AnError})

	assert.False(t, source.Listening())
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, "", source.LiveTranscript())
}

func TestAbortCleansUpSilently(t *testing.T) {
	recognizer := &fakeRecognizer{}
	notifier := &fakeNotifier{}
	source := newTestSource(recognizer, notifier)

	source.Start(func(string) {})
	recognizer.send(transcript.Event{Kind: transcript.RecognitionAborted})

	assert.False(t, source.Listening())
	assert.Equal(t, 0, notifier.count())
}

func TestStartWhileListeningRestarts(t *testing.T) {
	recognizer := &fakeRecognizer{}
	source := newTestSource(recognizer, nil)
	defer source.Stop()

	source.Start(func(string) {})
	recognizer.send(transcript.Event{Kind: transcript.SegmentFinal, Text: "first"})
	source.Start(func(string) {})

	// The prior run was stopped and its transcript discarded.
	assert.GreaterOrEqual(t, recognizer.stopCount(), 1)
	assert.Equal(t, "", source.LiveTranscript())
	assert.True(t, source.Listening())
}
