package sms

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeliveryResult is the gateway's acknowledgement of an accepted message
type DeliveryResult struct {
	MessageID  string    `json:"messageId"`
	Gateway    string    `json:"gateway"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Gateway sends a single text message to a contact
type Gateway interface {
	Send(ctx context.Context, contact, message string) (DeliveryResult, error)
	Name() string
}

// ErrorKind classifies a gateway failure for retry decisions
type ErrorKind int

const (
	Transient ErrorKind = iota // rate limited, timed out, upstream unavailable
	Permanent                  // invalid contact, rejected message, bad credentials
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// GatewayError is a classified send failure
type GatewayError struct {
	Kind       ErrorKind
	Code       string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	msg := fmt.Sprintf("sms gateway %s error", e.Kind)
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewTransientError wraps err as retryable
func NewTransientError(code string, err error) *GatewayError {
	return &GatewayError{Kind: Transient, Code: code, Err: err}
}

// NewPermanentError wraps err as non-retryable
func NewPermanentError(code string, err error) *GatewayError {
	return &GatewayError{Kind: Permanent, Code: code, Err: err}
}

// IsPermanent reports whether err must not be retried
func IsPermanent(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr) && gwErr.Kind == Permanent
}

// IsTransient reports whether err may be retried. Unclassified errors count as transient.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
