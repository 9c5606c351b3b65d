package web

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// LogEvent is one debug line sent to stream clients.
type LogEvent struct {
	Time string `json:"t"`
	Msg  string `json:"msg"`
}

// LogStream fans debug output out to connected SSE clients.
type LogStream struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	now     func() time.Time
}

// NewLogStream creates an empty stream.
func NewLogStream() *LogStream {
	return &LogStream{
		clients: make(map[chan string]struct{}),
		now:     time.Now,
	}
}

// Subscribe returns a channel of JSON-encoded events and its cleanup function.
func (s *LogStream) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.clients, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, unsub
}

// Clients returns the number of subscribers.
func (s *LogStream) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Publish sends msg to every subscriber. Slow clients miss lines.
func (s *LogStream) Publish(msg string) {
	data, err := json.Marshal(LogEvent{Time: s.now().Format(time.RFC3339), Msg: msg})
	if err != nil {
		return
	}
	payload := string(data)

	s.mu.RLock()
	defer s.mu.RUnlock()
	for ch := range s.clients {
		select {
		case ch <- payload:
		default:
		}
	}
}

// Write implements io.Writer so the stream can sit behind debug.SetOutput.
func (s *LogStream) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			s.Publish(line)
		}
	}
	return len(p), nil
}
