package repository

import "time"

// ── Roles and hierarchy levels ────────────────────────────────────────────────

// Role is the closed set of manager roles supplied by the identity provider.
type Role string

const (
	RoleStoreManager    Role = "store_manager"
	RoleAreaManager     Role = "area_manager"
	RoleRegionalManager Role = "regional_manager"
	RoleAdmin           Role = "admin"
)

// rank orders roles for at-or-above comparisons. Unknown roles rank below
// every real role.
var roleRank = map[Role]int{
	RoleStoreManager:    1,
	RoleAreaManager:     2,
	RoleRegionalManager: 3,
	RoleAdmin:           4,
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtOrAbove reports whether r ranks at least as high as other.
func (r Role) AtOrAbove(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Level is a submission gate slot in the store/area/regional/admin hierarchy.
type Level string

const (
	LevelStore    Level = "store"
	LevelArea     Level = "area"
	LevelRegional Level = "regional"
	LevelAdmin    Level = "admin"
)

// Valid reports whether l is one of the defined levels.
func (l Level) Valid() bool {
	switch l {
	case LevelStore, LevelArea, LevelRegional, LevelAdmin:
		return true
	}
	return false
}

// RoleFor maps a gate level to the role that owns it.
func (l Level) RoleFor() Role {
	switch l {
	case LevelStore:
		return RoleStoreManager
	case LevelArea:
		return RoleAreaManager
	case LevelRegional:
		return RoleRegionalManager
	default:
		return RoleAdmin
	}
}

// Below returns the level that must be submitted before this one, or "" for
// the store level.
func (l Level) Below() Level {
	switch l {
	case LevelArea:
		return LevelStore
	case LevelRegional:
		return LevelArea
	case LevelAdmin:
		return LevelRegional
	}
	return ""
}

// ── Amendment status machine vocabulary ───────────────────────────────────────

// Status is an amendment's position in the approval state machine.
type Status string

const (
	StatusPending             Status = "pending"
	StatusSubmitted           Status = "submitted"
	StatusAreaManagerApproved Status = "area_manager_approved"
	StatusRegionalDirect      Status = "regional_direct"
	StatusAreaDirect          Status = "area_direct"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	StatusAdminApproved       Status = "admin_approved"
	StatusAdminRejected       Status = "admin_rejected"
	StatusAdminModified       Status = "admin_modified"
)

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusAreaManagerApproved,
		StatusRegionalDirect, StatusAreaDirect, StatusApproved, StatusRejected,
		StatusAdminApproved, StatusAdminRejected, StatusAdminModified:
		return true
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusAdminApproved,
		StatusAdminRejected, StatusAdminModified:
		return true
	}
	return false
}

// Effective reports whether an amendment in this status contributes its
// quantity to rollups. At most one effective amendment may exist per
// (store, stock_code, week) key.
func (s Status) Effective() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusAreaManagerApproved,
		StatusRegionalDirect, StatusAreaDirect, StatusApproved,
		StatusAdminApproved:
		return true
	}
	return false
}

// EffectiveStatuses is the effective set in a form queries can bind.
func EffectiveStatuses() []Status {
	return []Status{
		StatusPending, StatusSubmitted, StatusAreaManagerApproved,
		StatusRegionalDirect, StatusAreaDirect, StatusApproved,
		StatusAdminApproved,
	}
}

// Action is a caller-requested operation on an amendment.
type Action string

const (
	ActionPropose Action = "propose"
	ActionSubmit  Action = "submit"
	ActionEndorse Action = "endorse"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionModify  Action = "modify"
)

// AmendmentType classifies how an amendment came to exist.
type AmendmentType string

const (
	TypeQuantityChange AmendmentType = "quantity_change"
	TypeAddOn          AmendmentType = "add_on"
	TypeNewItem        AmendmentType = "new_item"
	TypeAdminEdit      AmendmentType = "admin_edit"
)

// ── Records ───────────────────────────────────────────────────────────────────

// WeekSelection is one planning week. Owned by an external scheduling process;
// read-only here. Exactly one week may be current and active at a time.
type WeekSelection struct {
	WeekReference string
	WeekStartDate time.Time
	WeekEndDate   time.Time
	IsCurrent     bool
	IsActive      bool
	WeekStatus    string // open | closed
}

// Open reports whether the week accepts new amendments.
func (w *WeekSelection) Open() bool {
	return w != nil && w.IsCurrent && w.IsActive && w.WeekStatus == "open"
}

// StoreNode is a store and its manager chain from the hierarchy directory.
// Immutable within a week's processing.
type StoreNode struct {
	StoreID             string
	StoreCode           string
	StoreName           string
	Region              string
	StoreManagerID      string
	StoreManagerName    string
	AreaManagerID       string
	AreaManagerName     string
	RegionalManagerID   string
	RegionalManagerName string
}

// ManagedBy reports whether userID appears anywhere in the store's manager
// chain.
func (n *StoreNode) ManagedBy(userID string) bool {
	return n.StoreManagerID == userID || n.AreaManagerID == userID || n.RegionalManagerID == userID
}

// PlanLine is one baseline plan row for (week, store, stock_code). Published
// once per week and never mutated; amendments override only the add-ons
// quantity at read time.
type PlanLine struct {
	ID             string
	WeekReference  string
	StoreID        string
	StockCode      string
	ProductName    string
	Category       string
	SubCategory    string
	OrderQty       int
	AddOnsQty      int
	QtyOnHand      int
	QtyInTransit   int
	QtyPendingOrds int
	ModelStockQty  int
}

// Amendment is a proposed change to one plan line's add-on quantity. Rows are
// superseded, never deleted, to preserve the audit trail.
type Amendment struct {
	ID                  string
	WeeklyPlanID        *string // nil for new_item amendments
	StoreID             string
	StockCode           string
	Category            string
	WeekReference       string
	WeekStartDate       time.Time
	AmendmentType       AmendmentType
	OriginalQty         int
	AmendedQty          int
	ApprovedQty         *int // admin override; nil until an admin acts
	Justification       string
	Status              Status
	CreatedBy           string
	CreatedByRole       Role
	OriginalAmendmentID *string // set on admin_edit derivatives
	AdminNotes          *string
	AdminApprovedAt     *time.Time
	AdminRejectedAt     *time.Time
	AdminApprovedBy     *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EffectiveQty is the quantity this amendment contributes when effective:
// the admin override when set, otherwise the amended quantity.
func (a *Amendment) EffectiveQty() int {
	if a.ApprovedQty != nil {
		return *a.ApprovedQty
	}
	return a.AmendedQty
}

// Key identifies the plan line an amendment targets.
type Key struct {
	StoreID       string
	StockCode     string
	WeekReference string
}

// Key returns the amendment's (store, stock_code, week) key.
func (a *Amendment) Key() Key {
	return Key{StoreID: a.StoreID, StockCode: a.StockCode, WeekReference: a.WeekReference}
}

// LevelState is one hierarchy slot within a SubmissionState.
type LevelState struct {
	Status         string // not_submitted | submitted
	SubmittedAt    *time.Time
	SubmittedBy    *string
	AmendmentCount int
}

// Submitted reports whether the slot has been advanced.
func (l LevelState) Submitted() bool {
	return l.Status == "submitted"
}

// SubmissionState tracks the four hierarchy gates for one (store, week).
// Created lazily on first advance; each level is monotonic within a week.
type SubmissionState struct {
	StoreID       string
	WeekReference string
	Store         LevelState
	Area          LevelState
	Regional      LevelState
	Admin         LevelState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LevelState returns the slot for a gate level.
func (s *SubmissionState) LevelState(l Level) LevelState {
	switch l {
	case LevelStore:
		return s.Store
	case LevelArea:
		return s.Area
	case LevelRegional:
		return s.Regional
	default:
		return s.Admin
	}
}

// AuditEntry is one immutable record of an amendment transition.
type AuditEntry struct {
	ID              string
	AmendmentID     string
	StoreID         string
	WeekReference   string
	Action          Action
	PerformedBy     string
	PerformedByRole Role
	PerformedAt     time.Time
	StatusBefore    *Status
	StatusAfter     *Status
	Metadata        map[string]interface{}
}
