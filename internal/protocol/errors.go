package protocol

import "fmt"

// ErrorCode classifies a rejected request in an Error packet.
type ErrorCode byte

const (
	ErrInvalidToken         ErrorCode = 1
	ErrProtocolMismatch     ErrorCode = 2
	ErrNotAuthenticated     ErrorCode = 3
	ErrWrongState           ErrorCode = 4
	ErrTowerNotFound        ErrorCode = 5
	ErrInsufficientGold     ErrorCode = 6
	ErrInvalidPlacement     ErrorCode = 7
	ErrItemNotFound         ErrorCode = 8
	ErrItemAlreadyCollected ErrorCode = 9
	ErrNotItemOwner         ErrorCode = 10
	ErrInternal             ErrorCode = 11
)

var errorNames = map[ErrorCode]string{
	ErrInvalidToken:         "invalid token",
	ErrProtocolMismatch:     "protocol version mismatch",
	ErrNotAuthenticated:     "not authenticated",
	ErrWrongState:           "wrong state",
	ErrTowerNotFound:        "tower not found",
	ErrInsufficientGold:     "insufficient gold",
	ErrInvalidPlacement:     "invalid placement",
	ErrItemNotFound:         "item not found",
	ErrItemAlreadyCollected: "item already collected",
	ErrNotItemOwner:         "not item owner",
	ErrInternal:             "internal error",
}

func (c ErrorCode) String() string {
	if name, ok := errorNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", byte(c))
}
