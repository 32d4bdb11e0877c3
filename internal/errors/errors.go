// Package errors defines the error taxonomy shared by every component of
// the event-bus runtime. Each kind wraps an optional cause and carries a
// human-readable message; callers compare kinds with errors.Is and unwrap
// causes with errors.As/errors.Unwrap in the usual way.
package errors

import (
	"errors"
	"fmt"
)

// Kind identifies which part of the contract an error came from.
type Kind string

const (
	KindConnection      Kind = "connection"
	KindPublish         Kind = "publish"
	KindSubscribe       Kind = "subscribe"
	KindConsumerGroup   Kind = "consumer_group"
	KindAcknowledge     Kind = "acknowledge"
	KindSerialization   Kind = "serialization"
	KindDeserialization Kind = "deserialization"
	KindNoHandler       Kind = "no_handler"
	KindConfig          Kind = "config"
)

// Error is the concrete error type returned across the event-bus API.
// It is never compared with ==; use Is/As or Kind().
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Connection(cause error) *Error      { return new_(KindConnection, "cannot reach broker", cause) }
func Publish(cause error) *Error         { return new_(KindPublish, "publish failed", cause) }
func Subscribe(cause error) *Error       { return new_(KindSubscribe, "subscribe setup failed", cause) }
func ConsumerGroup(cause error) *Error   { return new_(KindConsumerGroup, "consumer group operation failed", cause) }
func Acknowledge(cause error) *Error     { return new_(KindAcknowledge, "acknowledge failed", cause) }
func Serialization(cause error) *Error   { return new_(KindSerialization, "envelope serialization failed", cause) }
func Deserialization(cause error) *Error { return new_(KindDeserialization, "envelope deserialization failed", cause) }
func NoHandler(topic string) *Error {
	return new_(KindNoHandler, fmt.Sprintf("no handler registered for topic %q and no default set", topic), nil)
}
func Config(cause error) *Error { return new_(KindConfig, "configuration error", cause) }

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
