package genai

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Compile-time checks.
var (
	_ StreamSink = (*LogSink)(nil)
	_ StreamSink = (*BufferSink)(nil)
)

// LogSink forwards stream deltas to a zap logger at debug level, flushing
// on line boundaries so the log stays readable.
type LogSink struct {
	logger *zap.Logger
	role   Role

	mu  sync.Mutex
	buf strings.Builder
}

// NewLogSink creates a LogSink tagged with the given role.
func NewLogSink(logger *zap.Logger, role Role) *LogSink {
	return &LogSink{logger: logger, role: role}
}

// Delta buffers text and logs completed lines.
func (s *LogSink) Delta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.WriteString(text)
	for {
		content := s.buf.String()
		idx := strings.IndexByte(content, '\n')
		if idx < 0 {
			return
		}
		line := content[:idx]
		s.buf.Reset()
		s.buf.WriteString(content[idx+1:])
		if strings.TrimSpace(line) != "" {
			s.logger.Debug("stream", zap.String("role", string(s.role)), zap.String("line", line))
		}
	}
}

// Flush logs any buffered partial line. Call after the generation completes.
func (s *LogSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rest := strings.TrimSpace(s.buf.String()); rest != "" {
		s.logger.Debug("stream", zap.String("role", string(s.role)), zap.String("line", rest))
	}
	s.buf.Reset()
}

// BufferSink accumulates all deltas in memory. Used by tests.
type BufferSink struct {
	mu  sync.Mutex
	buf strings.Builder
}

// Delta appends text to the buffer.
func (s *BufferSink) Delta(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.WriteString(text)
}

// String returns everything received so far.
func (s *BufferSink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}
