package model

import "context"

// Notifier delivers a status text to a remote channel. Delivery is best
// effort: implementations log failures and never report them to the caller.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type NotifyCloser interface {
	Notifier
	Close() error
}
