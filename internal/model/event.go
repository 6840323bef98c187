package model

// Event types published on the broker.
const (
	EventIntakeStarted   = "intake.started"
	EventIntakeCompleted = "intake.completed"
	EventIntakeEmergency = "intake.emergency"
	EventDoctorAssigned  = "doctor.assigned"
	EventNoteEdited      = "note.edited"
	EventNoteFinalized   = "note.finalized"
	EventNotification    = "notification.in_app"
)
