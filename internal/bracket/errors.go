package bracket

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the engine wraps exactly one of these.
var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrForbidden      = errors.New("forbidden")
	ErrTransientStore = errors.New("transient store error")
)

var (
	ErrInvalidBracketSize   = fmt.Errorf("%w: invalid bracket size", ErrValidation)
	ErrInvalidCardColor     = fmt.Errorf("%w: invalid card color", ErrValidation)
	ErrInvalidCategory      = fmt.Errorf("%w: invalid category", ErrValidation)
	ErrTournamentFull       = fmt.Errorf("%w: tournament is full", ErrValidation)
	ErrNoTeamFound          = fmt.Errorf("%w: no team found", ErrNotFound)
	ErrAlreadyGenerated     = fmt.Errorf("%w: bracket already generated", ErrConflict)
	ErrDuplicateParticipant = fmt.Errorf("%w: duplicate participant", ErrConflict)
	ErrUnresolvedDraw       = fmt.Errorf("%w: unresolved draw", ErrConflict)
	ErrInvalidTransition    = fmt.Errorf("%w: invalid status transition", ErrConflict)
	ErrSlotTaken            = fmt.Errorf("%w: slot already holds another team", ErrConflict)
	ErrTeamInUse            = fmt.Errorf("%w: team is referenced by a match", ErrConflict)
	ErrStaleWrite           = fmt.Errorf("%w: concurrent modification", ErrConflict)
	ErrRestrictedField      = fmt.Errorf("%w: field not allowed for role", ErrForbidden)
)

type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindNotFound       Kind = "NotFound"
	KindConflict       Kind = "Conflict"
	KindForbidden      Kind = "Forbidden"
	KindTransientStore Kind = "TransientStoreError"
	KindInternal       Kind = "InternalError"
)

// KindOf reports which kind err belongs to, or KindInternal if none.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrTransientStore):
		return KindTransientStore
	default:
		return KindInternal
	}
}

// Retryable is true for failures where repeating the whole operation is safe.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientStore) || errors.Is(err, ErrStaleWrite)
}
