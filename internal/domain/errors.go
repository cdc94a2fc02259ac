package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrBusy           = errors.New("a send is already in progress")
	ErrNothingToSend  = errors.New("no eligible recipients")
	ErrBatchNotActive = errors.New("batch is not active")
	ErrInvalidPhone   = errors.New(ReasonInvalidPhone)
	ErrUnknownJobKind = errors.New("unknown job kind")
	ErrDisabled       = errors.New("feature is disabled")
	ErrInvalidRequest = errors.New("invalid request")
)
