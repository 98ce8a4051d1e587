package game

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		want     string
	}{
		{"validation keeps code", ErrInvalidBet, CodeJoinFailed, CodeInvalidBet},
		{"risk keeps code", ErrInvalidRisk, CodeJoinFailed, CodeInvalidRisk},
		{"locked keeps code", ErrRoundLocked, CodeJoinFailed, CodeRoundLocked},
		{"balance keeps code", ErrInsufficientBalance, CodeJoinFailed, CodeInsufficientBalance},
		{"cashout business error", ErrAlreadyCashedOut, CodeCashoutFailed, CodeCashoutFailed},
		{"not in round", ErrPlayerNotInRound, CodeCashoutFailed, CodeCashoutFailed},
		{"wrapped", fmt.Errorf("join: %w", ErrInvalidPayload), CodeJoinFailed, CodeInvalidPayload},
		{"round not found keeps code", ErrRoundNotFound, CodeInternal, CodeNotFound},
		{"bet not found keeps code", ErrBetNotFound, CodeJoinFailed, CodeNotFound},
		{"internal", ErrInternal, CodeJoinFailed, CodeInternal},
		{"foreign error", errors.New("nil map"), CodeJoinFailed, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCode(tt.err, tt.fallback); got != tt.want {
				t.Errorf("ErrorCode() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(ErrRoundLocked); got != "Round already started" {
		t.Errorf("PublicMessage() = %q", got)
	}
	if got := PublicMessage(errors.New("pq: connection refused at 10.0.0.3")); got != ErrInternal.Message {
		t.Errorf("PublicMessage() leaked %q", got)
	}
}

func TestNewErrorEvent(t *testing.T) {
	e := NewErrorEvent(ErrInsufficientBalance, CodeJoinFailed)
	if e.Code != CodeInsufficientBalance || e.EventType() != EventError {
		t.Errorf("NewErrorEvent() = %+v", e)
	}
}
