package repository

import "time"

// ── Domain types for the unified approval workflow ───────────────────────────

// Status is the lifecycle state of an approval instance.
type Status string

const (
	StatusPending    Status = "PENDING"     // submitted, no level acted yet
	StatusInProgress Status = "IN_PROGRESS" // at least one level approved, chain not exhausted
	StatusDelegated  Status = "DELEGATED"   // current level's authority reassigned, level unchanged
	StatusApproved   Status = "APPROVED"    // terminal
	StatusRejected   Status = "REJECTED"    // terminal
	StatusWithdrawn  Status = "WITHDRAWN"   // terminal
)

var validStatuses = map[Status]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusDelegated:  true,
	StatusApproved:   true,
	StatusRejected:   true,
	StatusWithdrawn:  true,
}

// IsTerminal reports whether no further decision can mutate the instance.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusWithdrawn
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool { return validStatuses[s] }

func (s Status) String() string { return string(s) }

// Action is one audit-log event kind.
type Action string

const (
	ActionSubmitted Action = "SUBMITTED"
	ActionApproved  Action = "APPROVED"
	ActionRejected  Action = "REJECTED"
	ActionDelegated Action = "DELEGATED"
	ActionWithdrawn Action = "WITHDRAWN"
)

// Urgency orders task queues; URGENT items surface before NORMAL ones.
type Urgency string

const (
	UrgencyNormal Urgency = "NORMAL"
	UrgencyUrgent Urgency = "URGENT"
)

// IsValid reports whether u is a known urgency.
func (u Urgency) IsValid() bool {
	return u == UrgencyNormal || u == UrgencyUrgent
}

// EntityType names the kind of business record routed through approval.
// The set is open for extension; these are the types with adapters today.
type EntityType string

const (
	EntityECN      EntityType = "ECN"
	EntityQuote    EntityType = "QUOTE"
	EntityContract EntityType = "CONTRACT"
	EntityInvoice  EntityType = "INVOICE"
)

// ApprovalInstance is one request to route an entity through a sequential
// approval chain. Mutated only through version-guarded decisions.
type ApprovalInstance struct {
	ID           string
	EntityType   EntityType
	EntityID     string
	Title        string
	Summary      string
	Urgency      Urgency
	Status       Status
	CurrentLevel int // 1-based; 0 before the first approval
	TotalLevels  int // fixed at submission from the resolved chain
	SubmitterID  string
	CCUserIDs    []string
	Version      int64 // optimistic-concurrency counter
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ApprovalLevel is one ordinal position in the resolved chain, snapshotted at
// submission. Immutable afterwards except that delegation sets DelegateID on
// the current level.
type ApprovalLevel struct {
	InstanceID string
	Ordinal    int // 1-based
	ApproverID string
	DelegateID *string
}

// Eligible reports whether userID may act at this level.
func (l ApprovalLevel) Eligible(userID string) bool {
	if l.DelegateID != nil {
		return *l.DelegateID == userID
	}
	return l.ApproverID == userID
}

// AuditEntry is one immutable record in an instance's audit trail.
type AuditEntry struct {
	ID         string
	InstanceID string
	Level      int // level active when the event occurred (0 for SUBMITTED)
	Action     Action
	ActorID    string
	Comment    string
	CreatedAt  time.Time
}
