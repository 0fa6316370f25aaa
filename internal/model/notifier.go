package model

// Notifier defines a generic interface for delivering alert notifications.
// The body is an HTML fragment assembled by the alerter.
type Notifier interface {
	Send(subject, body string) error
}
