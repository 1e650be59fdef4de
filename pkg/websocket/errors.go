package websocket

import (
	"context"
	"errors"
	"strings"

	"github.com/yanun0323/eventsocket/pkg/exception"
)

// ErrorKind classifies every error surfaced by the client.
type ErrorKind uint8

const (
	// KindUnknown covers local failures: encoding, invalid state, unexpected protocol shape.
	KindUnknown ErrorKind = iota
	// KindNetwork covers socket loss, cancellation and invalid endpoints.
	KindNetwork
	// KindService covers operations the broker rejected.
	KindService
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindService:
		return "service"
	default:
		return "unknown"
	}
}

func (k ErrorKind) sentinel() error {
	switch k {
	case KindNetwork:
		return exception.ErrNetwork
	case KindService:
		return exception.ErrService
	default:
		return exception.ErrUnknown
	}
}

// serviceRecovery is attached to every broker-reported error.
const serviceRecovery = "Check the channel namespace configuration and the authorization mode, then retry the operation."

// Error is the error type returned by Client operations.
type Error struct {
	Kind ErrorKind
	// Op is the operation that failed: connect, subscribe, publish, unsubscribe, disconnect.
	Op string
	// ID is the operation id, when there is one.
	ID string
	// Type is the broker error type for KindService errors.
	Type    string
	Message string
	// Recovery is a fixed hint for KindService errors.
	Recovery string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("websocket: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Type != "" {
		b.WriteString(" (")
		b.WriteString(e.Type)
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(", err: ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels in package exception.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// KindOf returns the kind of err. Errors that did not originate from the
// client are KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ServiceErrorType returns the broker error type carried by err, if any.
func ServiceErrorType(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindService {
		return e.Type, true
	}
	return "", false
}

func newNetworkError(op, id string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, ID: id, Err: err}
}

func newUnknownError(op, id string, err error) *Error {
	return &Error{Kind: KindUnknown, Op: op, ID: id, Err: err}
}

func newServiceError(op, id string, entry ErrorEntry) *Error {
	return &Error{
		Kind:     KindService,
		Op:       op,
		ID:       id,
		Type:     entry.ErrorType,
		Message:  entry.Message,
		Recovery: serviceRecovery,
	}
}

// asOperationError classifies err and stamps op and id on client errors
// that do not carry them yet.
func asOperationError(op, id string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		if e.Op != "" && e.ID != "" {
			return e
		}
		cp := *e
		if cp.Op == "" {
			cp.Op = op
		}
		if cp.ID == "" {
			cp.ID = id
		}
		return &cp
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newNetworkError(op, id, err)
	}
	return newUnknownError(op, id, err)
}
