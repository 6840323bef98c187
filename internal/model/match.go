package model

import "time"

// MatchQuery describes who needs a doctor and how urgently.
type MatchQuery struct {
	Specialty          string   `json:"specialty"`
	SecondarySpecialty string   `json:"secondary_specialty,omitempty"`
	Symptoms           string   `json:"symptoms,omitempty"`
	Priority           Priority `json:"priority" validate:"omitempty,oneof=red orange yellow green"`
	PreferredLanguage  string   `json:"preferred_language,omitempty"`
	MaxResults         int      `json:"max_results,omitempty" validate:"gte=0,lte=50"`
	SessionID          string   `json:"session_id,omitempty"`
}

type MatchResult struct {
	Doctor            Doctor   `json:"doctor"`
	MatchScore        float64  `json:"match_score"`
	MatchReasons      []string `json:"match_reasons"`
	AvailableSlots    []string `json:"available_slots"`
	EstimatedWaitTime string   `json:"estimated_wait_time"`
}

// MatchOutcome is a ranked result set plus how it was obtained. An empty
// Matches with Found=false is the no-eligible-doctor result.
type MatchOutcome struct {
	Matches            []MatchResult `json:"matches"`
	Found              bool          `json:"found"`
	RequestedSpecialty string        `json:"requested_specialty"`
	MatchedSpecialty   string        `json:"matched_specialty,omitempty"`
	Substituted        bool          `json:"alternative_specialty"`
	Message            string        `json:"message,omitempty"`
}

// Recommendation is the best doctor with a few alternatives.
type Recommendation struct {
	Recommended        *MatchResult  `json:"recommended_doctor,omitempty"`
	Alternatives       []MatchResult `json:"alternatives"`
	Found              bool          `json:"found"`
	RequestedSpecialty string        `json:"requested_specialty"`
	MatchedSpecialty   string        `json:"matched_specialty,omitempty"`
	Substituted        bool          `json:"alternative_specialty"`
	Message            string        `json:"message,omitempty"`
}

// AssignRequest confirms a chosen doctor and slot for a patient.
type AssignRequest struct {
	DoctorID  string   `json:"doctor_id" validate:"required"`
	Slot      string   `json:"slot" validate:"required"`
	Symptoms  []string `json:"symptoms,omitempty"`
	Priority  Priority `json:"priority,omitempty" validate:"omitempty,oneof=red orange yellow green"`
	SessionID string   `json:"session_id,omitempty"`
}

type Assignment struct {
	DoctorID        string    `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	Specialty       string    `json:"specialty"`
	AppointmentSlot string    `json:"appointment_slot"`
	ConsultationFee float64   `json:"consultation_fee"`
	Reasoning       string    `json:"reasoning"`
	AssignedAt      time.Time `json:"assigned_at"`
	Message         string    `json:"message"`
}
