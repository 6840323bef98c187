package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Stage string

const (
	StageActive    Stage = "active"
	StageEmergency Stage = "emergency"
	StageComplete  Stage = "complete"
)

// Terminal reports whether the session accepts no further messages.
func (s Stage) Terminal() bool {
	return s == StageEmergency || s == StageComplete
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// CollectedInfo is what the intake conversation has established so far.
// Empty strings and nil slices mean "not yet known".
type CollectedInfo struct {
	ChiefComplaint       string   `json:"chief_complaint,omitempty"`
	Location             string   `json:"location,omitempty"`
	Duration             string   `json:"duration,omitempty"`
	Severity             string   `json:"severity,omitempty"`
	AssociatedSymptoms   []string `json:"associated_symptoms,omitempty"`
	MedicalHistory       string   `json:"medical_history,omitempty"`
	MedicationsAllergies string   `json:"medications_allergies,omitempty"`
}

// ExtractedFields is a partial update produced by field extraction.
// A nil pointer or empty slice leaves the collected value untouched.
type ExtractedFields struct {
	ChiefComplaint       *string                `json:"chief_complaint"`
	Location             *string                `json:"location"`
	Duration             *string                `json:"duration"`
	Severity             *string                `json:"severity"`
	AssociatedSymptoms   []string               `json:"associated_symptoms"`
	MedicalHistory       *string                `json:"medical_history"`
	MedicationsAllergies *string                `json:"medications_allergies"`
	Vitals               map[string]interface{} `json:"vitals"`
	Allergies            []string               `json:"allergies"`
	Medications          []string               `json:"medications"`
}

// UnmarshalJSON tolerates numbers where text is expected and a bare
// string where a list is expected.
func (f *ExtractedFields) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = ExtractedFields{
		ChiefComplaint:       scalar(raw["chief_complaint"]),
		Location:             scalar(raw["location"]),
		Duration:             scalar(raw["duration"]),
		Severity:             scalar(raw["severity"]),
		AssociatedSymptoms:   list(raw["associated_symptoms"]),
		MedicalHistory:       scalar(raw["medical_history"]),
		MedicationsAllergies: scalar(raw["medications_allergies"]),
		Allergies:            list(raw["allergies"]),
		Medications:          list(raw["medications"]),
	}
	if v, ok := raw["vitals"].(map[string]interface{}); ok {
		f.Vitals = v
	}
	return nil
}

func scalar(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case []interface{}:
		s = strings.Join(list(t), ", ")
	case map[string]interface{}:
		return nil
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func list(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if p := scalar(item); p != nil {
				out = append(out, *p)
			}
		}
		return out
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	default:
		return nil
	}
}

// IsEmpty reports whether applying f would change nothing.
func (f ExtractedFields) IsEmpty() bool {
	return blank(f.ChiefComplaint) && blank(f.Location) && blank(f.Duration) &&
		blank(f.Severity) && blank(f.MedicalHistory) && blank(f.MedicationsAllergies) &&
		len(f.AssociatedSymptoms) == 0 && len(f.Vitals) == 0 &&
		len(f.Allergies) == 0 && len(f.Medications) == 0
}

func blank(p *string) bool {
	return p == nil || strings.TrimSpace(*p) == ""
}

func overwrite(dst *string, src *string) {
	if !blank(src) {
		*dst = strings.TrimSpace(*src)
	}
}

type IntakeSession struct {
	ID                   string            `json:"session_id"`
	PatientID            string            `json:"patient_id,omitempty"`
	Messages             []Message         `json:"conversation_history"`
	TurnCount            int               `json:"turn_count"`
	MaxTurns             int               `json:"max_turns"`
	Collected            CollectedInfo     `json:"collected_info"`
	Vitals               map[string]string `json:"vitals"`
	Allergies            []string          `json:"allergies"`
	Medications          []string          `json:"medications"`
	Triage               *TriageResult     `json:"triage,omitempty"`
	SuggestedSpecialties []string          `json:"suggested_specialties"`
	PreliminarySOAP      *PreliminarySOAP  `json:"preliminary_soap,omitempty"`
	RedFlags             []string          `json:"red_flags,omitempty"`
	Stage                Stage             `json:"stage"`
	Timestamps
}

func NewIntakeSession(id, patientID string, maxTurns int, now time.Time) *IntakeSession {
	return &IntakeSession{
		ID:        id,
		PatientID: patientID,
		MaxTurns:  maxTurns,
		Vitals:    map[string]string{},
		Stage:     StageActive,
		Timestamps: Timestamps{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// Apply merges a partial update: scalars overwrite, lists union.
func (s *IntakeSession) Apply(f ExtractedFields) {
	c := &s.Collected
	overwrite(&c.ChiefComplaint, f.ChiefComplaint)
	overwrite(&c.Location, f.Location)
	overwrite(&c.Duration, f.Duration)
	overwrite(&c.Severity, f.Severity)
	overwrite(&c.MedicalHistory, f.MedicalHistory)
	overwrite(&c.MedicationsAllergies, f.MedicationsAllergies)
	if len(f.AssociatedSymptoms) > 0 {
		c.AssociatedSymptoms = UnionStrings(c.AssociatedSymptoms, f.AssociatedSymptoms)
	}
	if len(f.Allergies) > 0 {
		s.Allergies = UnionStrings(s.Allergies, f.Allergies)
	}
	if len(f.Medications) > 0 {
		s.Medications = UnionStrings(s.Medications, f.Medications)
	}
	for k, raw := range f.Vitals {
		if raw == nil {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(raw))
		if v == "" {
			continue
		}
		if s.Vitals == nil {
			s.Vitals = map[string]string{}
		}
		s.Vitals[k] = v
	}
}

// AddMessage appends to the conversation log.
func (s *IntakeSession) AddMessage(role Role, content string, at time.Time) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Timestamp: at})
	s.UpdatedAt = at
}

// RecentMessages returns at most n of the latest messages.
func (s *IntakeSession) RecentMessages(n int) []Message {
	if n <= 0 || len(s.Messages) <= n {
		return s.Messages
	}
	return s.Messages[len(s.Messages)-n:]
}

// UserMessages returns the patient's own messages in order.
func (s *IntakeSession) UserMessages() []Message {
	var out []Message
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// Symptoms lists the chief complaint followed by associated symptoms.
func (s *IntakeSession) Symptoms() []string {
	var out []string
	if s.Collected.ChiefComplaint != "" {
		out = append(out, s.Collected.ChiefComplaint)
	}
	return UnionStrings(out, s.Collected.AssociatedSymptoms)
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *IntakeSession) Clone() *IntakeSession {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Messages = append([]Message(nil), s.Messages...)
	cp.Collected.AssociatedSymptoms = append([]string(nil), s.Collected.AssociatedSymptoms...)
	cp.Allergies = append([]string(nil), s.Allergies...)
	cp.Medications = append([]string(nil), s.Medications...)
	cp.SuggestedSpecialties = append([]string(nil), s.SuggestedSpecialties...)
	cp.RedFlags = append([]string(nil), s.RedFlags...)
	cp.Vitals = make(map[string]string, len(s.Vitals))
	for k, v := range s.Vitals {
		cp.Vitals[k] = v
	}
	if s.Triage != nil {
		t := s.Triage.Clone()
		cp.Triage = &t
	}
	if s.PreliminarySOAP != nil {
		p := *s.PreliminarySOAP
		p.Note = s.PreliminarySOAP.Note.Clone()
		cp.PreliminarySOAP = &p
	}
	return &cp
}

// Summary is the listing view of a session.
func (s *IntakeSession) Summary() SessionSummary {
	sum := SessionSummary{
		ID:             s.ID,
		PatientID:      s.PatientID,
		Stage:          s.Stage,
		TurnCount:      s.TurnCount,
		ChiefComplaint: s.Collected.ChiefComplaint,
		UpdatedAt:      s.UpdatedAt,
	}
	if s.Triage != nil {
		sum.Priority = s.Triage.Priority
		sum.Score = s.Triage.Score
	}
	return sum
}

type SessionSummary struct {
	ID             string    `json:"session_id"`
	PatientID      string    `json:"patient_id,omitempty"`
	Stage          Stage     `json:"stage"`
	TurnCount      int       `json:"turn_count"`
	Priority       Priority  `json:"triage_priority,omitempty"`
	Score          int       `json:"triage_score,omitempty"`
	ChiefComplaint string    `json:"chief_complaint,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// IntakeResponse is returned for every start or message call.
type IntakeResponse struct {
	SessionID            string           `json:"session_id"`
	Response             string           `json:"response"`
	Stage                Stage            `json:"stage"`
	TurnCount            int              `json:"turn_count"`
	IsEmergency          bool             `json:"is_emergency"`
	ActionRequired       string           `json:"action_required,omitempty"`
	RedFlags             []string         `json:"red_flags,omitempty"`
	Triage               *TriageResult    `json:"triage,omitempty"`
	PreliminarySOAP      *PreliminarySOAP `json:"preliminary_soap,omitempty"`
	SuggestedSpecialties []string         `json:"suggested_specialties,omitempty"`
	SessionComplete      bool             `json:"session_complete"`
}

// ActionEmergencyEscalation tells the caller to hand the patient off.
const ActionEmergencyEscalation = "emergency_escalation"
