// Package workflow holds the order-lifecycle policy: which status moves are
// legal, who may perform them, and when an order counts as overdue. It is
// pure; the persistence layer enforces the same move optimistically at
// write time (status must still match what the caller read).
package workflow

import (
	"errors"

	"github.com/polycontrol/api/internal/enum"
)

var (
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrForbidden         = errors.New("role not permitted for this transition")
	ErrNoteRequired      = errors.New("a note is required for this transition")
)

// Rule is the single forward edge out of a status: the target, the button
// label shown to staff, and the roles allowed to press it.
type Rule struct {
	To    string
	Label string
	Roles []string
}

// advance maps each non-terminal status to its one forward edge. closed,
// cancelled and defect have no entry: they are terminal.
var advance = map[string]Rule{
	enum.OrderStatusCreated:     {To: enum.OrderStatusDesign, Label: "Передать в дизайн", Roles: []string{enum.RoleManager, enum.RoleDirector}},
	enum.OrderStatusDesign:      {To: enum.OrderStatusDesignDone, Label: "Макет готов", Roles: []string{enum.RoleDesigner, enum.RoleManager, enum.RoleDirector}},
	enum.OrderStatusDesignDone:  {To: enum.OrderStatusProduction, Label: "Отправить в печать", Roles: []string{enum.RoleManager, enum.RoleDirector, enum.RoleMaster}},
	enum.OrderStatusProduction:  {To: enum.OrderStatusPrinted, Label: "Напечатано", Roles: []string{enum.RoleMaster, enum.RoleManager, enum.RoleDirector}},
	enum.OrderStatusPrinted:     {To: enum.OrderStatusPostprocess, Label: "На постобработку", Roles: []string{enum.RoleManager, enum.RoleDirector, enum.RoleMaster}},
	enum.OrderStatusPostprocess: {To: enum.OrderStatusReady, Label: "Готов к выдаче", Roles: []string{enum.RoleAssistant, enum.RoleManager, enum.RoleDirector}},
	enum.OrderStatusReady:       {To: enum.OrderStatusClosed, Label: "Выдан клиенту", Roles: []string{enum.RoleManager, enum.RoleDirector}},
}

// AdvanceRule returns the forward edge out of status, if any.
func AdvanceRule(status string) (Rule, bool) {
	r, ok := advance[status]
	return r, ok
}

// IsTerminal reports whether no transition leaves the status.
func IsTerminal(status string) bool {
	switch status {
	case enum.OrderStatusClosed, enum.OrderStatusCancelled, enum.OrderStatusDefect:
		return true
	}
	return false
}

// KnownStatus reports whether s is one of the lifecycle statuses.
func KnownStatus(s string) bool {
	if IsTerminal(s) {
		return true
	}
	_, ok := advance[s]
	return ok
}

func roleAllowed(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Validate checks a requested move from current to target by role. The edge
// must exist first (ErrInvalidTransition), then the role must be on it
// (ErrForbidden). Cancel and mark-defect are side edges available from any
// non-terminal status: cancel for manager/director, defect for any staff
// role but only with a note explaining the reason.
func Validate(current, target, role, note string) error {
	switch target {
	case enum.OrderStatusCancelled:
		if IsTerminal(current) {
			return ErrInvalidTransition
		}
		if role != enum.RoleManager && role != enum.RoleDirector {
			return ErrForbidden
		}
		return nil

	case enum.OrderStatusDefect:
		if IsTerminal(current) {
			return ErrInvalidTransition
		}
		if note == "" {
			return ErrNoteRequired
		}
		return nil
	}

	rule, ok := advance[current]
	if !ok || rule.To != target {
		return ErrInvalidTransition
	}
	if !roleAllowed(rule.Roles, role) {
		return ErrForbidden
	}
	return nil
}

// ValidateNotify gates the notify-client side action: it changes no status
// and is allowed for manager/director while the order sits in ready.
func ValidateNotify(status, role string) error {
	if status != enum.OrderStatusReady {
		return ErrInvalidTransition
	}
	if role != enum.RoleManager && role != enum.RoleDirector {
		return ErrForbidden
	}
	return nil
}

// CanCancel mirrors Validate's cancel branch for UI affordances.
func CanCancel(status, role string) bool {
	return Validate(status, enum.OrderStatusCancelled, role, "") == nil
}
