package channel

import "errors"

// Channel-related errors
var (
	ErrChannelDisposed  = errors.New("channel disposed")
	ErrAlreadyConnected = errors.New("channel already connected")
	ErrDialFailed       = errors.New("websocket dial failed")
)
