package describe

import "log/slog"

// Alerter shows a blocking message to the user.
type Alerter interface {
	Alert(title, message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(title, message string)

// Alert calls f.
func (f AlertFunc) Alert(title, message string) { f(title, message) }

// LogAlerter writes alerts to a logger. Used when no device is attached.
type LogAlerter struct {
	Logger *slog.Logger
}

// Alert logs the message at warn level.
func (a LogAlerter) Alert(title, message string) {
	l := a.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Warn("alert", "title", title, "message", message)
}
