package game

import "errors"

// Wire error codes.
const (
	CodeInvalidPayload      = "INVALID_PAYLOAD"
	CodeInvalidBet          = "INVALID_BET"
	CodeInvalidRisk         = "INVALID_RISK"
	CodeInvalidRows         = "INVALID_ROWS"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeRoundLocked         = "ROUND_LOCKED"
	CodeJoinFailed          = "JOIN_FAILED"
	CodeCashoutFailed       = "CASHOUT_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL_ERROR"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindBusiness
	KindNotFound
	KindInternal
)

// GameError is returned by every rejected game operation. A rejected
// operation leaves rounds and balances untouched.
type GameError struct {
	Code    string
	Message string
	Kind    ErrorKind
}

func (e *GameError) Error() string {
	return e.Message
}

var (
	ErrInvalidPayload = &GameError{Code: CodeInvalidPayload, Message: "Missing required fields", Kind: KindValidation}
	ErrInvalidBet     = &GameError{Code: CodeInvalidBet, Message: "Bet must be greater than 0 and at most the max bet", Kind: KindValidation}
	ErrInvalidRisk    = &GameError{Code: CodeInvalidRisk, Message: "Risk must be easy, medium, or hard", Kind: KindValidation}
	ErrInvalidRows    = &GameError{Code: CodeInvalidRows, Message: "Only 8 rows supported", Kind: KindValidation}

	ErrInsufficientBalance = &GameError{Code: CodeInsufficientBalance, Message: "Insufficient balance", Kind: KindBusiness}
	ErrRoundLocked         = &GameError{Code: CodeRoundLocked, Message: "Round already started", Kind: KindBusiness}
	ErrNoActiveRound       = &GameError{Code: CodeCashoutFailed, Message: "No active round or round not running", Kind: KindBusiness}
	ErrPlayerNotInRound    = &GameError{Code: CodeCashoutFailed, Message: "Player not in current round", Kind: KindBusiness}
	ErrAlreadyCashedOut    = &GameError{Code: CodeCashoutFailed, Message: "Already cashed out", Kind: KindBusiness}
	ErrRoundCrashed        = &GameError{Code: CodeCashoutFailed, Message: "Round already crashed", Kind: KindBusiness}

	ErrRoundNotFound = &GameError{Code: CodeNotFound, Message: "Round not found", Kind: KindNotFound}
	ErrBetNotFound   = &GameError{Code: CodeNotFound, Message: "Bet not found", Kind: KindNotFound}

	ErrInternal = &GameError{Code: CodeInternal, Message: "Internal server error", Kind: KindInternal}
)

// ErrorCode maps err to a wire code. Validation and not-found codes and the
// locked and balance codes are kept; any other business error reports fallback.
func ErrorCode(err error, fallback string) string {
	var gerr *GameError
	if !errors.As(err, &gerr) {
		return CodeInternal
	}
	switch {
	case gerr.Kind == KindValidation, gerr.Kind == KindNotFound:
		return gerr.Code
	case gerr.Kind == KindInternal:
		return CodeInternal
	case gerr.Code == CodeRoundLocked, gerr.Code == CodeInsufficientBalance:
		return gerr.Code
	}
	return fallback
}

// PublicMessage returns a message safe to show to clients.
func PublicMessage(err error) string {
	var gerr *GameError
	if errors.As(err, &gerr) && gerr.Kind != KindInternal {
		return gerr.Message
	}
	return ErrInternal.Message
}
