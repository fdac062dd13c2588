package notify

import (
	"log/slog"
	"sync"
)

// LogNotifier records user-facing notices in the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(message string) {
	slog.Info("user notice", "message", message)
}

// Buffer collects notices so a polling client (or a test) can drain them.
type Buffer struct {
	mu      sync.Mutex
	notices []string
}

func (b *Buffer) Notify(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, message)
}

// Drain returns and clears the collected notices.
func (b *Buffer) Drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	notices := b.notices
	b.notices = nil
	return notices
}
