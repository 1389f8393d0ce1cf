// Package transcript accumulates partial speech-recognition results into a
// single working transcript.
//
// Recognizers re-send the whole utterance as it is refined, so naive
// concatenation would repeat words. Merge appends only the part of a partial
// result that extends what has already been heard.
package transcript

import (
	"strings"
	"sync"
)

// Merge folds a partial recognition result into the accumulated transcript.
//
//   - An empty partial leaves accumulated unchanged.
//   - If the first word of partial does not occur in accumulated, partial is a
//     new fragment and is appended after a single space.
//   - Otherwise, with i the first index of that word in accumulated, if partial
//     starts with accumulated[i:], only the remainder of partial is appended.
//   - Any other overlap is ambiguous and accumulated is returned unchanged.
func Merge(accumulated, partial string) string {
	if partial == "" {
		return accumulated
	}

	first := strings.Split(partial, " ")[0]
	i := strings.Index(accumulated, first)
	if i < 0 {
		return accumulated + " " + partial
	}

	n := min(len(accumulated)-i, len(partial))
	if partial[:n] == accumulated[i:] {
		return accumulated + partial[n:]
	}
	return accumulated
}

// Buffer is the working transcript shared between the recognition callback
// (sole writer) and the capture poller (reader). Safe for concurrent use.
type Buffer struct {
	mu     sync.RWMutex
	merged string
	active string
}

// Apply merges a recognition result into the buffer and returns the new
// merged value.
func (b *Buffer) Apply(partial string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active = partial
	b.merged = Merge(b.merged, partial)
	return b.merged
}

// Value returns the merged transcript exactly as accumulated, including the
// leading separator Merge inserts before the first fragment.
func (b *Buffer) Value() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.merged
}

// Text returns the merged transcript trimmed for display or prompting.
func (b *Buffer) Text() string {
	return strings.TrimSpace(b.Value())
}

// Active returns the most recent raw recognition result.
func (b *Buffer) Active() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.active
}

// Empty reports whether nothing has been accumulated.
func (b *Buffer) Empty() bool {
	return b.Value() == ""
}

// Reset clears both views.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.merged = ""
	b.active = ""
	b.mu.Unlock()
}
