// Package audit persists conversion and governance events as an append-only
// JSON lines trail with size-based rotation.
package audit

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"vusd/core/events"
)

// Entry is one serialised audit record.
type Entry struct {
	Time       time.Time         `json:"time"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Sink writes emitted events to a rotating log file. It implements
// events.Emitter and is safe for concurrent use.
type Sink struct {
	mu     sync.Mutex
	writer *lumberjack.Logger
	logger *slog.Logger
	now    func() time.Time
}

// Options control rotation behaviour. Zero values fall back to lumberjack
// defaults.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewSink opens (or creates) the audit trail at the configured path.
func NewSink(opts Options, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return &Sink{logger: logger, now: time.Now}
	}
	return &Sink{
		writer: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		},
		logger: logger,
		now:    time.Now,
	}
}

// Emit implements events.Emitter. Failures are logged and swallowed: the
// audit trail must never abort the conversion that produced the event.
func (s *Sink) Emit(evt events.Event) {
	if s == nil || evt == nil {
		return
	}
	entry := Entry{
		Time:       s.now().UTC(),
		Type:       evt.EventType(),
		Attributes: evt.Attributes(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		s.logger.Warn("audit encode failed", "type", entry.Type, "error", err)
		return
	}
	if s.writer == nil {
		s.logger.Info("audit event", "type", entry.Type, "attributes", entry.Attributes)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(append(payload, '\n')); err != nil {
		s.logger.Warn("audit write failed", "type", entry.Type, "error", err)
	}
}

// Close flushes and closes the underlying file.
func (s *Sink) Close() error {
	if s == nil || s.writer == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}
