// Package delivery sends completed report content to its recipient. Send
// failures are reported to the caller but never affect execution status;
// the engine records them as annotations on the completed record.
package delivery

import "context"

// Message is a fully rendered report ready to send.
type Message struct {
	Recipient string
	Subject   string
	BodyText  string
	BodyHTML  string
}

// Deliverer sends a rendered message over some channel. Implementations must
// be safe for concurrent use.
type Deliverer interface {
	Deliver(ctx context.Context, message Message) error
}

// Error wraps a send failure with the recipient for logging. Delivery errors
// carry no transient/permanent taxonomy; the engine treats them all the same
// way, as non-fatal annotations.
type Error struct {
	Recipient string
	Err       error
}

func (e *Error) Error() string {
	return "delivery to " + e.Recipient + " failed: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
