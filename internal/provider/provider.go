// Package provider talks to the outbound messaging API.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Message is one outbound send. A template send carries TemplateName and ordered Params;
// otherwise Body is sent as free text.
type Message struct {
	To           string
	TemplateName string
	LanguageCode string
	Params       []string
	Body         string
}

// Text renders the message for the conversation log.
func (m Message) Text() string {
	if m.TemplateName == "" {
		return m.Body
	}
	if len(m.Params) == 0 {
		return fmt.Sprintf("[template:%s]", m.TemplateName)
	}
	return fmt.Sprintf("[template:%s] %s", m.TemplateName, strings.Join(m.Params, " | "))
}

type Client interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

type ErrorKind string

const (
	KindRateLimited      ErrorKind = "rate_limited"
	KindInvalidRecipient ErrorKind = "invalid_recipient"
	KindTimeout          ErrorKind = "timeout"
	KindUnavailable      ErrorKind = "unavailable"
	KindRejected         ErrorKind = "rejected"
	KindUnknown          ErrorKind = "unknown"
)

// Error is the structured failure returned by provider clients. Retryable decides whether a
// dispatch unit may try again and whether the recipient returns in the next automatic pass.
type Error struct {
	Kind       ErrorKind
	Retryable  bool
	StatusCode int
	Code       int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d", e.StatusCode)
		if e.Code != 0 {
			fmt.Fprintf(&b, ", code %d", e.Code)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if e.Body != "" {
		fmt.Fprintf(&b, ": body=%q", e.Body)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Classify turns any send error into a *Error. Errors that already are *Error pass through.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Retryable: true, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return &Error{Kind: KindTimeout, Retryable: true, Err: err}
		}
		return &Error{Kind: KindUnavailable, Retryable: true, Err: err}
	}
	return &Error{Kind: KindUnknown, Err: err}
}

// Permanent builds a non-retryable error of the given kind.
func Permanent(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
