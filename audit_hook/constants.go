package audithook

// Action constants for audit events.
const (
	// Reservation actions
	ActionReservationCreated = "reservation.created"
	ActionReservationDenied  = "reservation.denied"
	ActionHandoverConfirmed  = "handover.confirmed"
	ActionItemReturned       = "item.returned"
	ActionItemReturnedLate   = "item.returned_late"
	ActionItemDamaged        = "item.damaged"
	ActionOverdueSwept       = "reservation.overdue_swept"

	// Progression actions
	ActionTrustChanged = "trust.changed"
	ActionLevelUp      = "level.up"

	// Outbox actions
	ActionEventsRelayed = "outbox.relayed"
)

// Resource constants for audit events.
const (
	ResourceReservation = "reservation"
	ResourceItem        = "item"
	ResourceProfile     = "profile"
	ResourceOutbox      = "outbox"
)

// Category constants for audit events.
const (
	CategoryLending     = "lending"
	CategoryAccess      = "access"
	CategoryProgression = "progression"
	CategoryIntegration = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
