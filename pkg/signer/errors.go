// Package signer error types.
//
// A signing session fails in one of three ways:
//   - the host broke the streaming protocol (ProtocolViolation)
//   - the transaction is well-formed but not acceptable (PolicyRejection)
//   - the user declined a screen (ui.ErrRejected, passed through)
//
// In every case the session is over and no witness has been produced for
// the transaction being built.
package signer

import (
	"errors"
	"fmt"
)

// Error codes.
const (
	ErrUnexpectedItem = "UNEXPECTED_ITEM"
	ErrHashBuilder    = "HASH_BUILDER"
	ErrLink           = "LINK"

	ErrInvalidRequest  = "INVALID_REQUEST"
	ErrInvalidItem     = "INVALID_ITEM"
	ErrAccountMismatch = "ACCOUNT_MISMATCH"
	ErrOutOfRange      = "OUT_OF_RANGE"
	ErrUnusualPath     = "UNUSUAL_PATH"
	ErrForbidden       = "FORBIDDEN_BY_MODE"
	ErrKeychain        = "KEYCHAIN"
)

// ProtocolViolation is returned when the host does not follow the message
// sequence announced in the TxInit: wrong item kind, too many or too few
// items, or a broken hash builder invariant such as a non-canonical map key
// order.
type ProtocolViolation struct {
	Code    string // Error code (e.g., ErrUnexpectedItem)
	Message string // Human-readable error message
	Cause   error  // Underlying error (if any)
}

func (e *ProtocolViolation) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("protocol violation [%s]: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("protocol violation [%s]: %s", e.Code, e.Message)
}

func (e *ProtocolViolation) Unwrap() error { return e.Cause }

// PolicyRejection is returned when an item fails validation or is not
// allowed by the signing mode. Message is what the device would display.
type PolicyRejection struct {
	Code    string // Error code (e.g., ErrInvalidItem)
	Message string // Human-readable error message
	Cause   error  // Underlying error (if any)
}

func (e *PolicyRejection) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("policy rejection [%s]: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("policy rejection [%s]: %s", e.Code, e.Message)
}

func (e *PolicyRejection) Unwrap() error { return e.Cause }

// IsProtocolViolation reports whether err is or wraps a ProtocolViolation.
func IsProtocolViolation(err error) bool {
	var pv *ProtocolViolation
	return errors.As(err, &pv)
}

// IsPolicyRejection reports whether err is or wraps a PolicyRejection.
func IsPolicyRejection(err error) bool {
	var pr *PolicyRejection
	return errors.As(err, &pr)
}

func reject(message string) *PolicyRejection {
	return &PolicyRejection{Code: ErrInvalidItem, Message: message}
}

func rejectWith(code, message string, cause error) *PolicyRejection {
	return &PolicyRejection{Code: code, Message: message, Cause: cause}
}

func violation(code, message string, cause error) *ProtocolViolation {
	return &ProtocolViolation{Code: code, Message: message, Cause: cause}
}

// errInvalidRequest is the single message for every TxInit condition a
// signing mode does not accept.
func errInvalidRequest() *PolicyRejection {
	return &PolicyRejection{Code: ErrInvalidRequest, Message: "Invalid tx signing request"}
}
