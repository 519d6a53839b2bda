package email

import (
	"context"
	"errors"
)

// Provider delivers reminder email. Implementations report permanent
// rejections as TerminalError so callers can close the attempt without
// scheduling a retry.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, body string) error
}

// TerminalError marks a delivery failure that retrying cannot fix, such
// as a rejected recipient address.
type TerminalError struct {
	Err error
}

func (e *TerminalError) Error() string { return e.Err.Error() }

func (e *TerminalError) Unwrap() error { return e.Err }

// IsTerminal reports whether the delivery error is permanent.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	return errors.As(err, &terminal)
}

// NoOpProvider swallows sends. Used when no SMTP host is configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, body string) error {
	return nil
}
