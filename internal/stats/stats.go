// Package stats counts translations and serves a short-lived cached
// snapshot of the counters plus process resource usage.
package stats

import (
	"maps"
	"math"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/blikh/discord-translation-relay/internal/ttlcache"
)

// DefaultSnapshotTTL is how long a computed snapshot is reused.
const DefaultSnapshotTTL = 5 * time.Second

// Memory is process memory usage in megabytes.
type Memory struct {
	RSS       float64 `json:"rss"`
	HeapUsed  float64 `json:"heapUsed"`
	HeapTotal float64 `json:"heapTotal"`
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalTranslations int64            `json:"totalTranslations"`
	Languages         map[string]int64 `json:"languages"`
	Memory            Memory           `json:"memory"`
	Uptime            int64            `json:"uptime"` // milliseconds, recomputed on every call
	GeneratedAt       time.Time        `json:"generatedAt"`
}

type cachedSnapshot struct {
	snap    Snapshot
	version uint64
}

const snapshotKey = "snapshot"

// Aggregator holds the running totals. Totals only grow for the lifetime of
// the process.
type Aggregator struct {
	started time.Time
	now     func() time.Time
	memory  func() Memory
	cache   *ttlcache.Cache[string, cachedSnapshot]

	mu        sync.Mutex
	total     int64
	languages map[string]int64
	version   uint64
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithMemory replaces the process memory probe.
func WithMemory(fn func() Memory) Option {
	return func(a *Aggregator) { a.memory = fn }
}

// New creates an aggregator whose snapshots are cached for ttl.
func New(ttl time.Duration, opts ...Option) *Aggregator {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	a := &Aggregator{
		now:       time.Now,
		memory:    processMemory,
		languages: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.started = a.now()
	a.cache = ttlcache.New[string, cachedSnapshot](ttl, ttlcache.WithClock(a.now))
	return a
}

// Record counts one translation into language.
func (a *Aggregator) Record(language string) {
	a.mu.Lock()
	a.total++
	a.languages[language]++
	a.version++
	a.mu.Unlock()
}

// Total returns the number of recorded translations.
func (a *Aggregator) Total() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Snapshot returns the cached snapshot when it is younger than the ttl and
// no translation was recorded since, otherwise a fresh one. Uptime is always
// current.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	version := a.version
	a.mu.Unlock()

	now := a.now()
	if c, ok := a.cache.Get(snapshotKey); ok && c.version == version {
		s := c.snap
		s.Languages = maps.Clone(c.snap.Languages)
		s.Uptime = now.Sub(a.started).Milliseconds()
		return s
	}

	a.mu.Lock()
	s := Snapshot{
		TotalTranslations: a.total,
		Languages:         maps.Clone(a.languages),
		GeneratedAt:       now,
	}
	version = a.version
	a.mu.Unlock()

	s.Memory = a.memory()
	s.Uptime = now.Sub(a.started).Milliseconds()
	a.cache.Set(snapshotKey, cachedSnapshot{snap: s, version: version})

	out := s
	out.Languages = maps.Clone(s.Languages)
	return out
}

// Uptime returns the time since the aggregator was created.
func (a *Aggregator) Uptime() time.Duration {
	return a.now().Sub(a.started)
}

func processMemory() Memory {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m := Memory{
		HeapUsed:  megabytes(ms.HeapAlloc),
		HeapTotal: megabytes(ms.HeapSys),
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := p.MemoryInfo(); err == nil {
			m.RSS = megabytes(info.RSS)
		}
	}
	return m
}

func megabytes(b uint64) float64 {
	return math.Round(float64(b)/1024/1024*100) / 100
}
