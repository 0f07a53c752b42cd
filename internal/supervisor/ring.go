package supervisor

import "sync"

// LogBufferSize is the fixed capacity of the output ring buffer.
const LogBufferSize = 1000

// ring is a fixed-capacity FIFO of output lines. Appending beyond capacity
// drops the oldest line.
type ring struct {
	mu    sync.Mutex
	lines []string
	start int
	count int
}

func newRing(capacity int) *ring {
	return &ring{lines: make([]string, capacity)}
}

func (r *ring) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count < len(r.lines) {
		r.lines[(r.start+r.count)%len(r.lines)] = line
		r.count++
		return
	}
	r.lines[r.start] = line
	r.start = (r.start + 1) % len(r.lines)
}

// Snapshot returns the buffered lines, oldest first.
func (r *ring) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.lines[(r.start+i)%len(r.lines)]
	}
	return out
}

func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
