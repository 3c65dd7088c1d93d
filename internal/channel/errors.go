package channel

import "errors"

// Sentinel errors for channel operations.
var (
	// ErrDuplicateChannel indicates a channel with the same name is already
	// registered in the dispatcher.
	ErrDuplicateChannel = errors.New("channel: duplicate channel name")

	// ErrNoChannel indicates a notification was sent with no channel
	// registered to carry it.
	ErrNoChannel = errors.New("channel: no channel registered")

	// ErrNotBound indicates a message arrived before Bind was called.
	ErrNotBound = errors.New("channel: relay not bound")

	// ErrDenied indicates the sender is not on the allow-list.
	ErrDenied = errors.New("channel: sender not allowed")
)
