package service

import (
	"context"

	"github.com/orderlink/be-plan-amendments/internal/repository"
)

// Actor is the authenticated caller, resolved by the upstream identity
// provider and passed through on every operation.
type Actor struct {
	ID   string
	Name string
	Role repository.Role
}

// AmendmentStore is the ledger persistence the services depend on. Satisfied
// by repository.AmendmentRepository and by the in-memory implementation used
// in tests.
type AmendmentStore interface {
	Create(ctx context.Context, a *repository.Amendment) error
	GetByID(ctx context.Context, id string) (*repository.Amendment, error)
	EffectiveForKey(ctx context.Context, key repository.Key) ([]*repository.Amendment, error)
	ListEffectiveByWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*repository.Amendment, error)
	ListByStatuses(ctx context.Context, weekRef string, storeIDs []string, statuses []repository.Status) ([]*repository.Amendment, error)
	CountEffectiveByRole(ctx context.Context, storeID, weekRef string, role repository.Role) (int, error)
	Transition(ctx context.Context, id string, from, to repository.Status) (bool, error)
	AdminResolve(ctx context.Context, id string, from, to repository.Status, approvedQty *int, notes *string, adminName string) (bool, error)
	Supersede(ctx context.Context, originalID string, from repository.Status, notes *string, adminName string, derivative *repository.Amendment) error
}

// PlanSource reads the externally-published baseline plan and week
// selections. Read-mostly; safe to cache with a bounded TTL.
type PlanSource interface {
	CurrentWeek(ctx context.Context) (*repository.WeekSelection, error)
	GetWeek(ctx context.Context, weekRef string) (*repository.WeekSelection, error)
	LineForKey(ctx context.Context, key repository.Key) (*repository.PlanLine, error)
	LinesForWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*repository.PlanLine, error)
}

// HierarchyDirectory resolves stores to their manager chain.
type HierarchyDirectory interface {
	GetStore(ctx context.Context, storeID string) (*repository.StoreNode, error)
	StoresForManager(ctx context.Context, userID string) ([]*repository.StoreNode, error)
	ListStores(ctx context.Context) ([]*repository.StoreNode, error)
}

// SubmissionStore persists the hierarchy gates.
type SubmissionStore interface {
	Get(ctx context.Context, storeID, weekRef string) (*repository.SubmissionState, error)
	ListByWeek(ctx context.Context, weekRef string, storeIDs []string) ([]*repository.SubmissionState, error)
	Advance(ctx context.Context, storeID, weekRef string, level repository.Level, actorID string, amendmentCount int) (*repository.SubmissionState, error)
}

// AuditLog appends immutable transition records. Append failures are logged
// and never fail the operation that triggered them.
type AuditLog interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByAmendmentID(ctx context.Context, amendmentID string) ([]*repository.AuditEntry, error)
}

// EventPublisher pushes lifecycle notifications. Implementations must be
// non-fatal: a failed publish never interrupts the ledger operation.
type EventPublisher interface {
	PublishAmendmentEvent(ctx context.Context, eventType string, a *repository.Amendment, actorID, actorRole string)
}
