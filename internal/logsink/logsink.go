// Package logsink fans captured compositor output out to consumers: an
// on-disk rotating file and any number of in-process subscribers.
package logsink

import (
	"io"
	"sync"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation parameters, lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// FileConfig describes the rotating log file.
type FileConfig struct {
	Path       string // destination file; empty disables the file sink
	MaxSizeMB  int    // megabytes before rotation (default 10)
	MaxBackups int    // number of backups to keep (default 3)
	MaxAgeDays int    // days to keep (default 7)
	Compress   bool   // gzip rotated files
}

// Writer returns the rotating io.WriteCloser for the config, or nil when no
// path is configured.
func (c FileConfig) Writer() io.WriteCloser {
	if c.Path == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Fanout delivers each line to every subscriber in subscription order.
type Fanout struct {
	mu   sync.Mutex
	subs []func(string)
	file io.WriteCloser
}

// NewFanout creates a fanout writing to the configured file, if any.
func NewFanout(cfg FileConfig) *Fanout {
	return &Fanout{file: cfg.Writer()}
}

// Subscribe adds a line consumer. Consumers run on the producing goroutine
// and must not block.
func (f *Fanout) Subscribe(fn func(line string)) {
	f.mu.Lock()
	f.subs = append(f.subs, fn)
	f.mu.Unlock()
}

// WriteLine delivers one line to the file and all subscribers.
func (f *Fanout) WriteLine(line string) {
	f.mu.Lock()
	subs := f.subs
	file := f.file
	f.mu.Unlock()

	if file != nil {
		_, _ = file.Write([]byte(line + "\n"))
	}
	for _, fn := range subs {
		fn(line)
	}
}

// Close closes the file sink.
func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}
