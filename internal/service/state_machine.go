package service

import (
	"github.com/orderlink/be-plan-amendments/internal/errors"
	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// The approval state machine. Every status change in the service goes through
// NextStatus; there is deliberately no other place that compares roles or
// statuses to decide a transition.

// adminActionable is the set of statuses an admin may approve, reject or
// modify from.
var adminActionable = map[repository.Status]bool{
	repository.StatusPending:             true,
	repository.StatusSubmitted:           true,
	repository.StatusAreaManagerApproved: true,
	repository.StatusRegionalDirect:      true,
	repository.StatusAreaDirect:          true,
}

// NextStatus validates an action against the transition table and returns the
// status the amendment moves to. The error is a STATE_CONFLICT for illegal
// transitions, UNAUTHORIZED for insufficient roles, and VALIDATION for a
// missing justification on submit.
func NextStatus(a *repository.Amendment, action repository.Action, actor Actor) (repository.Status, error) {
	if a.Status.Terminal() {
		return "", errors.Newf(errors.ErrCodeStateConflict,
			"amendment %s is already %s and cannot be changed", a.ID, a.Status)
	}
	if !actor.Role.Valid() {
		return "", errors.Unauthorized("unknown role " + string(actor.Role))
	}

	switch action {
	case repository.ActionSubmit:
		return submitTransition(a, actor)
	case repository.ActionEndorse:
		return endorseTransition(a, actor)
	case repository.ActionApprove, repository.ActionReject, repository.ActionModify:
		return adminTransition(a, action, actor)
	}
	return "", errors.Validation("action", "unknown action "+string(action))
}

func submitTransition(a *repository.Amendment, actor Actor) (repository.Status, error) {
	if a.Status != repository.StatusPending {
		return "", errors.Newf(errors.ErrCodeStateConflict,
			"amendment %s cannot be submitted from status %s", a.ID, a.Status)
	}
	if actor.ID != a.CreatedBy && !actor.Role.AtOrAbove(a.CreatedByRole) {
		return "", errors.Unauthorized(
			"actor " + actor.ID + " does not own amendment " + a.ID + " and is below its originating role")
	}
	if a.Justification == "" {
		return "", errors.Validation("justification", "required before an amendment leaves draft")
	}
	return repository.StatusSubmitted, nil
}

func endorseTransition(a *repository.Amendment, actor Actor) (repository.Status, error) {
	switch actor.Role {
	case repository.RoleAreaManager:
		if a.Status != repository.StatusSubmitted {
			return "", errors.Newf(errors.ErrCodeStateConflict,
				"amendment %s cannot be endorsed from status %s", a.ID, a.Status)
		}
		if a.CreatedByRole != repository.RoleStoreManager {
			return "", errors.Unauthorized(
				"area managers endorse store-manager amendments only, amendment " + a.ID + " was raised by a " + string(a.CreatedByRole))
		}
		return repository.StatusAreaManagerApproved, nil

	case repository.RoleRegionalManager:
		switch a.Status {
		case repository.StatusSubmitted:
			// Acting directly on a store-level item.
			return repository.StatusRegionalDirect, nil
		case repository.StatusAreaManagerApproved:
			// Acting on an item the area manager already endorsed.
			return repository.StatusAreaDirect, nil
		}
		return "", errors.Newf(errors.ErrCodeStateConflict,
			"amendment %s cannot be endorsed from status %s", a.ID, a.Status)

	case repository.RoleAdmin:
		return "", errors.Unauthorized("admins resolve amendments with approve, reject or modify, not endorse")
	}
	return "", errors.Unauthorized("role " + string(actor.Role) + " cannot endorse amendments")
}

func adminTransition(a *repository.Amendment, action repository.Action, actor Actor) (repository.Status, error) {
	if actor.Role != repository.RoleAdmin {
		return "", errors.Unauthorized("only admins may " + string(action) + " amendments")
	}
	if !adminActionable[a.Status] {
		return "", errors.Newf(errors.ErrCodeStateConflict,
			"amendment %s cannot be resolved from status %s", a.ID, a.Status)
	}
	switch action {
	case repository.ActionApprove:
		return repository.StatusAdminApproved, nil
	case repository.ActionReject:
		return repository.StatusAdminRejected, nil
	default:
		// modify: the original is superseded; the derivative is created
		// admin_approved by the ledger in the same transaction.
		return repository.StatusAdminModified, nil
	}
}
