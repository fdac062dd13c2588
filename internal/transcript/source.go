package transcript

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPause is how long the live transcript must stay unchanged
	// before the turn is considered ended.
	DefaultPause = 2 * time.Second
	// DefaultClearDelay keeps the captured transcript visible briefly after
	// the turn ends before it is cleared.
	DefaultClearDelay = time.Second
)

type EventKind int

const (
	SegmentInterim EventKind = iota
	SegmentFinal
	RecognitionAborted
	RecognitionError
)

// Event is one notification from a speech recognizer: an interim hypothesis,
// a finalized segment, or a termination.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Recognizer abstracts a continuous speech-to-text capability. Start begins
// recognition and delivers events to emit until Stop is called or the
// recognizer fails. A nil Recognizer means the capability is unsupported.
type Recognizer interface {
	Start(emit func(Event)) error
	Stop()
}

// Notifier surfaces user-visible, non-fatal messages (the toast equivalent).
type Notifier interface {
	Notify(message string)
}

type state int

const (
	stateIdle state = iota
	stateListening
	stateDebouncing
)

// Source turns a raw recognizer event stream into a single live transcript
// plus one end-of-turn callback per pause.
type Source struct {
	recognizer Recognizer
	notifier   Notifier

	pause      time.Duration
	clearDelay time.Duration

	mu         sync.Mutex
	state      state
	finals     []string
	interim    string
	live       string
	onTurnEnd  func(string)
	pauseTimer *time.Timer
	clearTimer *time.Timer
	cleaning   bool
	generation int
}

type Option func(*Source)

// WithTimings overrides the pause and clear delays, used by tests to avoid
// real-time waits.
func WithTimings(pause, clearDelay time.Duration) Option {
	return func(s *Source) {
		s.pause = pause
		s.clearDelay = clearDelay
	}
}

func NewSource(recognizer Recognizer, notifier Notifier, opts ...Option) *Source {
	s := &Source{
		recognizer: recognizer,
		notifier:   notifier,
		pause:      DefaultPause,
		clearDelay: DefaultClearDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins continuous listening. If a prior run is still active it is
// stopped first. An unsupported or failing recognizer produces a notification
// and leaves the source idle; Start never returns an error to the caller
// because a missing transcript is a degraded feature, not a failure.
func (s *Source) Start(onTurnEnd func(string)) {
	s.Stop()

	if s.recognizer == nil {
		s.notify("Speech recognition is not supported here.")
		return
	}

	s.mu.Lock()
	s.state = stateListening
	s.finals = nil
	s.interim = ""
	s.live = ""
	s.onTurnEnd = onTurnEnd
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if err := s.recognizer.Start(func(ev Event) { s.handle(gen, ev) }); err != nil {
		slog.Error("error starting speech recognition", "error", err)
		s.notify("Could not start speech recognition.")
		s.Stop()
	}
}

// LiveTranscript returns the concatenation of all finalized segments plus the
// current interim segment.
func (s *Source) LiveTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Listening reports whether the source is currently consuming recognition
// events.
func (s *Source) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateListening
}

func (s *Source) handle(gen int, ev Event) {
	switch ev.Kind {
	case SegmentInterim, SegmentFinal:
		s.applySegment(gen, ev)
	case RecognitionAborted:
		// User-initiated abort, no notification.
		s.Stop()
	case RecognitionError:
		slog.Error("speech recognition error", "error", ev.Err)
		s.notify("Speech recognition stopped unexpectedly.")
		s.Stop()
	}
}

func (s *Source) applySegment(gen int, ev Event) {
	s.mu.Lock()
	if s.state != stateListening || gen != s.generation {
		s.mu.Unlock()
		return
	}

	if ev.Kind == SegmentFinal {
		s.finals = append(s.finals, ev.Text)
		s.interim = ""
	} else {
		s.interim = ev.Text
	}

	parts := append(append([]string{}, s.finals...), s.interim)
	live := strings.TrimSpace(strings.Join(parts, " "))
	changed := live != s.live && live != ""
	s.live = live

	if changed {
		if s.pauseTimer != nil {
			s.pauseTimer.Stop()
		}
		s.pauseTimer = time.AfterFunc(s.pause, func() { s.endTurn(gen) })
	}
	s.mu.Unlock()
}

// endTurn fires once per listening generation when the pause timer expires.
func (s *Source) endTurn(gen int) {
	s.mu.Lock()
	if s.state != stateListening || gen != s.generation {
		s.mu.Unlock()
		return
	}

	s.state = stateDebouncing
	transcript := s.live
	callback := s.onTurnEnd

	// Keep the captured text visible for a moment before clearing it.
	s.clearTimer = time.AfterFunc(s.clearDelay, func() {
		s.mu.Lock()
		if gen == s.generation {
			s.live = ""
			s.state = stateIdle
		}
		s.mu.Unlock()
	})
	s.mu.Unlock()

	if callback != nil && transcript != "" {
		callback(transcript)
	}

	s.recognizer.Stop()
}

// Stop cancels timers and tears down the recognizer. It is idempotent and
// safe to call from any state, including re-entrantly from recognizer
// callbacks; the cleaning flag prevents double-teardown.
func (s *Source) Stop() {
	s.mu.Lock()
	if s.cleaning {
		s.mu.Unlock()
		return
	}
	s.cleaning = true

	if s.pauseTimer != nil {
		s.pauseTimer.Stop()
		s.pauseTimer = nil
	}
	if s.clearTimer != nil {
		s.clearTimer.Stop()
		s.clearTimer = nil
	}

	wasActive := s.state != stateIdle
	s.state = stateIdle
	s.live = ""
	s.interim = ""
	s.finals = nil
	s.generation++
	s.mu.Unlock()

	if wasActive && s.recognizer != nil {
		s.recognizer.Stop()
	}

	s.mu.Lock()
	s.cleaning = false
	s.mu.Unlock()
}

func (s *Source) notify(message string) {
	if s.notifier != nil {
		s.notifier.Notify(message)
	}
}
