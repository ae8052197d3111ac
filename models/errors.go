package models

import "errors"

// Engine error taxonomy. Every one of these is returned before any state is
// mutated.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrRoomFull             = errors.New("room is full")
	ErrRoomNotJoinable      = errors.New("room is not joinable")
	ErrRoomNotActive        = errors.New("room is not active")
	ErrNotYourTurn          = errors.New("not your turn")
	ErrTooLate              = errors.New("turn already resolved")
	ErrMatchAlreadyResolved = errors.New("match already resolved")
	ErrTransportDisconnect  = errors.New("transport disconnected")

	ErrNotFound           = errors.New("not found")
	ErrInvalidMove        = errors.New("invalid move")
	ErrAlreadyJoined      = errors.New("already joined")
	ErrNotParticipant     = errors.New("not a participant")
	ErrTournamentFull     = errors.New("tournament is full")
	ErrRegistrationClosed = errors.New("registration is closed")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrRebuyNotAllowed    = errors.New("rebuy not allowed")
	ErrForbidden          = errors.New("forbidden")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidConfiguration, "invalid_configuration"},
	{ErrInsufficientFunds, "insufficient_funds"},
	{ErrRoomFull, "room_full"},
	{ErrRoomNotJoinable, "room_not_joinable"},
	{ErrRoomNotActive, "room_not_active"},
	{ErrNotYourTurn, "not_your_turn"},
	{ErrTooLate, "too_late"},
	{ErrMatchAlreadyResolved, "match_already_resolved"},
	{ErrTransportDisconnect, "transport_disconnect"},
	{ErrNotFound, "not_found"},
	{ErrInvalidMove, "invalid_move"},
	{ErrAlreadyJoined, "already_joined"},
	{ErrNotParticipant, "not_participant"},
	{ErrTournamentFull, "tournament_full"},
	{ErrRegistrationClosed, "registration_closed"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrRebuyNotAllowed, "rebuy_not_allowed"},
	{ErrForbidden, "forbidden"},
}

// ErrorCode maps an error to the stable code sent to clients.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal_error"
}
