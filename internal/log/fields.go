package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldError     = "error"
	FieldEvent     = "event"
	FieldMessageID = "message_id"
	FieldYear      = "year"
	FieldMonth     = "month"
)

// Components defines standard component names
const (
	ComponentCLI    = "cli"
	ComponentWorker = "worker"
)
