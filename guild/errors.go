package guild

import (
	"errors"
	"strings"
)

// Operation errors. The REST layer maps these to HTTP statuses with
// errors.Is, so wrap them (fmt.Errorf with %w) rather than replacing.
var (
	ErrAuthRequired     = errors.New("authentication required")
	ErrNotFound         = errors.New("not found")
	ErrAlreadyMember    = errors.New("already in a guild")
	ErrIneligiblePlan   = errors.New("plan rank not eligible for guilds")
	ErrForbidden        = errors.New("operation not permitted")
	ErrCapacityExceeded = errors.New("guild is full")
	ErrInvalidState     = errors.New("not in a pending state")
	ErrDuplicateName    = errors.New("guild name already taken")
	ErrDisbanded        = errors.New("guild is disbanded")
	ErrInvalidName      = errors.New("invalid guild name")
	ErrInvalidAmount    = errors.New("xp amount must be positive")
)

// isUniqueViolation detects unique-constraint failures across the
// sqlite/mysql/postgres drivers. Storage errors are translated at the
// point of insert, never surfaced to callers raw.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}
