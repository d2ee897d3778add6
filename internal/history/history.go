// Package history keeps the most recent translations in memory.
package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/blikh/discord-translation-relay/internal/ring"
)

// Capacity is the number of records kept.
const Capacity = 100

// Record is one completed translation.
type Record struct {
	ID         uuid.UUID `json:"id"`
	Original   string    `json:"original"`
	Translated string    `json:"translated"`
	Language   string    `json:"language"`
	Channel    string    `json:"channel"`
	Author     string    `json:"author"`
	OCR        bool      `json:"isOcr"`
	Time       time.Time `json:"time"`
}

// Log is a bounded, newest-first list of records.
type Log struct {
	buf *ring.Buffer[Record]
	now func() time.Time
}

// New creates an empty history log.
func New() *Log {
	return &Log{buf: ring.New[Record](Capacity), now: time.Now}
}

// Add stores r, assigning an id and timestamp when they are unset.
func (l *Log) Add(r Record) Record {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Time.IsZero() {
		r.Time = l.now()
	}
	l.buf.Push(r)
	return r
}

// List returns up to limit records, newest first. limit <= 0 returns all.
func (l *Log) List(limit int) []Record {
	return l.buf.Latest(limit)
}

// Len returns the number of stored records.
func (l *Log) Len() int {
	return l.buf.Len()
}
