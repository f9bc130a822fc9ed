package game

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an action was rejected.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNotYourTurn
	KindWrongPhase
	KindNotOwned
	KindIllegalDestination
	KindIllegalTarget
	KindReserveExhausted
	KindGameNotPlaying
	KindUnknownToken
	KindTokenUnavailable
	KindInvalidTier
	KindUnknownAction
)

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrNotYourTurn        = errors.New("not your turn")
	ErrWrongPhase         = errors.New("wrong phase")
	ErrNotOwned           = errors.New("token not owned by player")
	ErrIllegalDestination = errors.New("illegal destination")
	ErrIllegalTarget      = errors.New("illegal target")
	ErrReserveExhausted   = errors.New("reserve exhausted")
	ErrGameNotPlaying     = errors.New("game not playing")
	ErrUnknownToken       = errors.New("unknown token")
	ErrTokenUnavailable   = errors.New("token unavailable")
	ErrInvalidTier        = errors.New("invalid tier")
	ErrUnknownAction      = errors.New("unknown action")
)

var kindInfo = map[ErrorKind]struct {
	name     string
	sentinel error
}{
	KindNotYourTurn:        {"NOT_YOUR_TURN", ErrNotYourTurn},
	KindWrongPhase:         {"WRONG_PHASE", ErrWrongPhase},
	KindNotOwned:           {"NOT_OWNED", ErrNotOwned},
	KindIllegalDestination: {"ILLEGAL_DESTINATION", ErrIllegalDestination},
	KindIllegalTarget:      {"ILLEGAL_TARGET", ErrIllegalTarget},
	KindReserveExhausted:   {"RESERVE_EXHAUSTED", ErrReserveExhausted},
	KindGameNotPlaying:     {"GAME_NOT_PLAYING", ErrGameNotPlaying},
	KindUnknownToken:       {"UNKNOWN_TOKEN", ErrUnknownToken},
	KindTokenUnavailable:   {"TOKEN_UNAVAILABLE", ErrTokenUnavailable},
	KindInvalidTier:        {"INVALID_TIER", ErrInvalidTier},
	KindUnknownAction:      {"UNKNOWN_ACTION", ErrUnknownAction},
}

func (k ErrorKind) String() string {
	if k == KindNone {
		return "NONE"
	}
	if info, ok := kindInfo[k]; ok {
		return info.name
	}
	return fmt.Sprintf("KIND_%d", int(k))
}

// Sentinel returns the package-level error for the kind, or nil for KindNone.
func (k ErrorKind) Sentinel() error {
	return kindInfo[k].sentinel
}

// ActionError is a rejected action. It unwraps to the sentinel of its kind.
type ActionError struct {
	Kind    ErrorKind
	Message string
}

func (e *ActionError) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap lets errors.Is match the kind's sentinel.
func (e *ActionError) Unwrap() error {
	return e.Kind.Sentinel()
}

func reject(kind ErrorKind, format string, args ...any) *ActionError {
	return &ActionError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or KindNone when err is not an action error.
func KindOf(err error) ErrorKind {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	for k, info := range kindInfo {
		if errors.Is(err, info.sentinel) {
			return k
		}
	}
	return KindNone
}

// ErrInvariant marks a broken internal invariant. The engine panics with
// an error wrapping it; it is never returned from Apply.
var ErrInvariant = errors.New("engine invariant violated")

func mustf(err error, format string, args ...any) {
	if err != nil {
		panic(fmt.Errorf("%w: %s: %w", ErrInvariant, fmt.Sprintf(format, args...), err))
	}
}
