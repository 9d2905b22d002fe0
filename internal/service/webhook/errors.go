package webhook

import "errors"

var (
	ErrFactoryNotFound = errors.New("no payload factory registered for trigger")
	ErrPayloadMismatch = errors.New("object does not match trigger payload type")
)
