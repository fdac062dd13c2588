package utils

import "sync"

// FlightMap tracks in-flight operations by key. Unlike a plain mutex map it
// never blocks: a second acquire for the same key fails immediately, which is
// what the chat engine wants for rejecting overlapping sends on one session.
type FlightMap struct {
	edit     sync.Mutex
	inFlight map[string]struct{}
}

func NewFlightMap() *FlightMap {
	return &FlightMap{inFlight: make(map[string]struct{})}
}

// TryAcquire reserves the key, returning false if it is already held.
func (m *FlightMap) TryAcquire(key string) bool {
	m.edit.Lock()
	defer m.edit.Unlock()

	if _, held := m.inFlight[key]; held {
		return false
	}
	m.inFlight[key] = struct{}{}
	return true
}

// Release frees the key. Releasing a key that is not held is a no-op so that
// deferred releases are safe on every exit path.
func (m *FlightMap) Release(key string) {
	m.edit.Lock()
	defer m.edit.Unlock()

	delete(m.inFlight, key)
}

// Held reports whether the key is currently reserved.
func (m *FlightMap) Held(key string) bool {
	m.edit.Lock()
	defer m.edit.Unlock()

	_, held := m.inFlight[key]
	return held
}
