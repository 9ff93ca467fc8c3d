package domain

// Notification event types. Notifiers may filter on them.
const (
	EventLifecycle      = "lifecycle"
	EventPositionOpened = "position_opened"
	EventPositionClosed = "position_closed"
	EventOrderFailed    = "order_failed"
	EventStopMoved      = "stop_moved"
	EventStopFailed     = "stop_failed"
	EventSummary        = "summary"
)
