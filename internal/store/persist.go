package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFlushDelay is the idle window collapsing bursts of mutations into
// one write.
const DefaultFlushDelay = 100 * time.Millisecond

// persister debounces writes. At most one timer is pending at a time; a
// schedule call while one is pending is a no-op, and the eventual write
// picks up whatever state exists when the timer fires.
type persister struct {
	delay  time.Duration
	write  func() error
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func newPersister(delay time.Duration, write func() error, logger *slog.Logger) *persister {
	if delay <= 0 {
		delay = DefaultFlushDelay
	}
	return &persister{delay: delay, write: write, logger: logger}
}

func (p *persister) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.timer != nil {
		return
	}
	p.gen++
	gen := p.gen
	p.timer = time.AfterFunc(p.delay, func() { p.fire(gen) })
}

func (p *persister) fire(gen uint64) {
	p.mu.Lock()
	if p.timer == nil || gen != p.gen {
		// Flushed or superseded after this timer started firing.
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.mu.Unlock()

	if err := p.write(); err != nil {
		p.logger.Error("store: persist failed", "err", err)
	}
}

// flush cancels a pending timer and writes synchronously. Without a
// pending write it does nothing.
func (p *persister) flush() error {
	p.mu.Lock()
	if p.timer == nil {
		p.mu.Unlock()
		return nil
	}
	p.timer.Stop()
	p.timer = nil
	p.gen++
	p.mu.Unlock()

	return p.write()
}

func (p *persister) pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
