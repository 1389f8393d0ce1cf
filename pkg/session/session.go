// Package session derives the single operational state of the assistant from
// the signals produced by its collaborators.
package session

import (
	"strings"
	"sync"
)

// State is the aggregated operational state.
type State int

const (
	// Inactive means the phone is below the activation angle.
	Inactive State = iota
	// PreparingCamera means the camera has not reported ready yet.
	PreparingCamera
	// Recording is the idle-armed state: camera ready, nothing else happening.
	Recording
	// Listening means recognition is running but nothing has been heard.
	Listening
	// TranscriptPreview means recognition is running and a transcript exists.
	TranscriptPreview
	// Processing means a capture/describe cycle is in flight.
	Processing
	// Responding means speech output is playing.
	Responding
)

var stateNames = [...]string{
	Inactive:          "inactive",
	PreparingCamera:   "preparing_camera",
	Recording:         "recording",
	Listening:         "listening",
	TranscriptPreview: "transcript_preview",
	Processing:        "processing",
	Responding:        "responding",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Inputs are the signals the state is derived from.
type Inputs struct {
	Armed       bool
	CameraReady bool
	Recognizing bool
	Processing  bool
	Speaking    bool
	Transcript  string
}

// Status is a derived state plus the transcript it carries in TranscriptPreview.
type Status struct {
	State      State  `json:"state"`
	Transcript string `json:"transcript,omitempty"`
}

// Derive computes the status for a set of inputs. It is a pure function.
//
// Precedence: Inactive overrides everything, then PreparingCamera,
// Processing, Responding, Recording, Listening and TranscriptPreview.
func Derive(in Inputs) Status {
	switch {
	case !in.Armed:
		return Status{State: Inactive}
	case !in.CameraReady:
		return Status{State: PreparingCamera}
	case in.Processing:
		return Status{State: Processing}
	case in.Speaking:
		return Status{State: Responding}
	case !in.Recognizing:
		return Status{State: Recording}
	}

	text := strings.TrimSpace(in.Transcript)
	if text == "" {
		return Status{State: Listening}
	}
	return Status{State: TranscriptPreview, Transcript: text}
}

// ChangeFunc observes a status transition.
type ChangeFunc func(prev, next Status)

// Tracker remembers the last emitted status and notifies listeners only when
// a recomputation yields a different value.
type Tracker struct {
	mu        sync.Mutex
	current   Status
	started   bool
	listeners []ChangeFunc
}

// NewTracker creates a tracker. The first Update always emits.
func NewTracker() *Tracker {
	return &Tracker{}
}

// OnChange registers a listener. Listeners run synchronously on the updating
// goroutine, in registration order.
func (t *Tracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Update derives the status for in and notifies listeners if it changed.
func (t *Tracker) Update(in Inputs) (Status, bool) {
	next := Derive(in)

	t.mu.Lock()
	if t.started && next == t.current {
		t.mu.Unlock()
		return next, false
	}
	prev := t.current
	t.current = next
	t.started = true
	listeners := make([]ChangeFunc, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(prev, next)
	}
	return next, true
}

// Current returns the last emitted status.
func (t *Tracker) Current() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Reset forgets the last emitted status so the next Update emits again.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.current = Status{}
	t.started = false
	t.mu.Unlock()
}
