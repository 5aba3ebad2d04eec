package parlor

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable failure code surfaced to the boundary.
type Code string

// The closed error taxonomy. Every expected domain failure carries one of
// these codes; components never panic across module boundaries.
const (
	CodeRoomNotFound           Code = "ROOM_NOT_FOUND"
	CodeHostOnly               Code = "HOST_ONLY"
	CodeSocketAlreadyJoined    Code = "SOCKET_ALREADY_JOINED"
	CodeRoomFull               Code = "ROOM_FULL"
	CodeNotEnoughPlayers       Code = "NOT_ENOUGH_PLAYERS"
	CodeMissingPlayers         Code = "MISSING_PLAYERS"
	CodeInvalidState           Code = "INVALID_STATE"
	CodeGameNotActive          Code = "GAME_NOT_ACTIVE"
	CodeWrongPhase             Code = "WRONG_PHASE"
	CodeInvalidPhaseTransition Code = "INVALID_PHASE_TRANSITION"
	CodeInvalidTarget          Code = "INVALID_TARGET"
	CodeRoleForbidden          Code = "ROLE_FORBIDDEN"
	CodeSelfVote               Code = "SELF_VOTE"
	CodeAlreadyVoted           Code = "ALREADY_VOTED"
	CodeAlreadyResponded       Code = "ALREADY_RESPONDED"
	CodeNameInUse              Code = "NAME_IN_USE"
	CodeNameRequired           Code = "NAME_REQUIRED"
	CodeTextRejected           Code = "TEXT_REJECTED"
)

// Error is the tagged failure result for domain operations. Details carries
// structured context (e.g. fromPhase/toPhase on an invalid transition).
type Error struct {
	Code    Code
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds a tagged domain error.
func E(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetails attaches structured context and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// CodeOf extracts the domain code from an error, or "" if the error is not
// a tagged domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err is a tagged domain error with the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
