package testutil

import (
	"bytes"
	"strings"
	"sync"
	"time"
)

// MockClock is a manually advanced clock. It satisfies the Clock interfaces
// used by the scheduling packages.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockClock creates a new MockClock starting at the given time.
// If zero time is provided, uses current time.
func NewMockClock(start time.Time) *MockClock {
	if start.IsZero() {
		start = time.Now()
	}
	return &MockClock{now: start}
}

// Now returns the current mock time.
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the mock clock forward by the given duration.
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set sets the mock clock to a specific time.
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// LogBuffer is a goroutine-safe io.Writer for capturing log output.
type LogBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	lines int
}

// Write implements io.Writer.
func (l *LogBuffer) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines += bytes.Count(p, []byte{'\n'})
	return l.buf.Write(p)
}

// String returns everything written so far.
func (l *LogBuffer) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.buf.String()
}

// Lines returns the number of complete lines written.
func (l *LogBuffer) Lines() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lines
}

// Contains reports whether the output contains s.
func (l *LogBuffer) Contains(s string) bool {
	return strings.Contains(l.String(), s)
}
