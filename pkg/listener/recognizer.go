package listener

import (
	"context"
	"errors"
)

// Options are passed to the recognizer on every start.
type Options struct {
	Language        string `json:"language"`
	InterimResults  bool   `json:"interim_results"`
	Continuous      bool   `json:"continuous"`
	MaxAlternatives int    `json:"max_alternatives"`
}

// DefaultOptions returns continuous British English recognition with
// interim results.
func DefaultOptions() Options {
	return Options{
		Language:        "en-GB",
		InterimResults:  true,
		Continuous:      true,
		MaxAlternatives: 1,
	}
}

// Error codes reported through Callbacks.OnError.
const (
	CodeNotAllowed = "not-allowed"
	CodeNoSpeech   = "no-speech"
	CodeNetwork    = "network"
	CodeAborted    = "aborted"
	CodeUnknown    = "unknown"
)

// Callbacks receive recognition session events. Any of them may be nil.
type Callbacks struct {
	OnStart  func()
	OnEnd    func()
	OnResult func(text string, final bool)
	OnError  func(code string, err error)
}

// Recognizer is a continuous speech-to-text session.
type Recognizer interface {
	// RequestPermission asks for microphone and recognition access.
	RequestPermission(ctx context.Context) (bool, error)

	// SetCallbacks installs the event handlers. Called once before Start.
	SetCallbacks(cb Callbacks)

	// Start begins a session. Events arrive asynchronously.
	Start(ctx context.Context, opts Options) error

	// Stop ends the session. OnEnd fires once it has stopped.
	Stop() error
}

// ErrPermissionDenied means the platform refused recognition access.
var ErrPermissionDenied = errors.New("listener: permission denied")
