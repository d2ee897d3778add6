// Package eventlog is the operator-facing event stream: a bounded in-memory
// feed served by the dashboard and fanned out to sinks such as the Discord
// log channel and the archive.
package eventlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blikh/discord-translation-relay/internal/ring"
)

// Capacity is the number of entries kept in memory.
const Capacity = 100

// Severity of an entry.
type Severity string

const (
	SeverityDebug Severity = "debug"
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Kind classifies info entries that have their own presentation.
type Kind string

const (
	KindGeneral     Kind = ""
	KindTranslation Kind = "translation"
	KindOCR         Kind = "ocr"
	KindAudit       Kind = "audit"
)

// Entry is one event.
type Entry struct {
	Type     string    `json:"type"` // kind when set, severity otherwise
	Severity Severity  `json:"severity"`
	Kind     Kind      `json:"kind,omitempty"`
	Message  string    `json:"message"`
	Time     time.Time `json:"time"`
}

// Sink receives every entry after it is stored. Deliver must not block for long.
type Sink interface {
	Deliver(e Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Entry)

func (f SinkFunc) Deliver(e Entry) { f(e) }

// Log stores entries newest first and forwards them to slog and sinks.
type Log struct {
	buf    *ring.Buffer[Entry]
	logger *slog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	sinks []Sink
}

// New creates an empty event log.
func New(logger *slog.Logger) *Log {
	return &Log{
		buf:    ring.New[Entry](Capacity),
		logger: logger,
		now:    time.Now,
	}
}

// AddSink registers s for all subsequent entries.
func (l *Log) AddSink(s Sink) {
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Add stores e and forwards it.
func (l *Log) Add(e Entry) {
	if e.Time.IsZero() {
		e.Time = l.now()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	e.Type = string(e.Severity)
	if e.Kind != KindGeneral {
		e.Type = string(e.Kind)
	}
	l.buf.Push(e)

	level := slog.LevelInfo
	switch e.Severity {
	case SeverityDebug:
		level = slog.LevelDebug
	case SeverityError:
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "event: "+e.Message, "type", e.Type)

	l.mu.RLock()
	sinks := l.sinks
	l.mu.RUnlock()
	for _, s := range sinks {
		s.Deliver(e)
	}
}

func (l *Log) Debug(msg string) { l.Add(Entry{Severity: SeverityDebug, Message: msg}) }
func (l *Log) Info(msg string)  { l.Add(Entry{Severity: SeverityInfo, Message: msg}) }
func (l *Log) Error(msg string) { l.Add(Entry{Severity: SeverityError, Message: msg}) }

// Translation records a delivered translation.
func (l *Log) Translation(msg string) {
	l.Add(Entry{Severity: SeverityInfo, Kind: KindTranslation, Message: msg})
}

// OCR records a text extraction.
func (l *Log) OCR(msg string) {
	l.Add(Entry{Severity: SeverityInfo, Kind: KindOCR, Message: msg})
}

// Audit records an administrative change.
func (l *Log) Audit(msg string) {
	l.Add(Entry{Severity: SeverityInfo, Kind: KindAudit, Message: msg})
}

// List returns up to limit entries, newest first. Debug entries are left
// out unless includeDebug is set.
func (l *Log) List(limit int, includeDebug bool) []Entry {
	if includeDebug {
		return l.buf.Latest(limit)
	}
	return l.buf.Filter(limit, func(e Entry) bool { return e.Severity != SeverityDebug })
}
