package domain

import (
	"errors"
	"fmt"
)

// Code is a stable, client-facing error code.
type Code string

const (
	CodePostNotFound       Code = "POST_NOT_FOUND"
	CodePostDeleted        Code = "POST_DELETED"
	CodeReqPostNoOwner     Code = "REQ_POST_NO_OWNER"
	CodeSelfTradeForbidden Code = "SELF_TRADE_FORBIDDEN"
	CodeOfferedNotOwned    Code = "OFFERED_NOT_OWNED"
	CodeSamePost           Code = "SAME_POST"
	CodeOfferRequired      Code = "OFFER_REQUIRED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeForbidden          Code = "FORBIDDEN"
	CodeBadState           Code = "BAD_STATE"
	CodeBadAction          Code = "BAD_ACTION"
	CodeOnlyProposer       Code = "ONLY_PROPOSER"
	CodeOnlyReceiver       Code = "ONLY_RECEIVER"
	CodeBadRole            Code = "BAD_ROLE"
	CodeBadStatus          Code = "BAD_STATUS"
	CodeBadID              Code = "BAD_ID"
	CodeAlreadyRated       Code = "ALREADY_RATED"
	CodeBadRating          Code = "BAD_RATING"
)

// ErrUnavailable marks store or collaborator failures. It is the only
// retryable class; everything carrying a Code is a terminal user error.
var ErrUnavailable = errors.New("unavailable")

// Error is a domain rule violation.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a domain error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the domain code from err, or "" when err is not a domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Unavailable wraps a collaborator failure so callers can tell it apart
// from domain errors.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
