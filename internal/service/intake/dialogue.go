package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/pkg/llm"
)

const greeting = `Hello, I'm the clinic's virtual intake assistant. I'll ask a few questions about your symptoms so we can connect you with the right doctor.

This is not an emergency service. If you think you are having a medical emergency, call emergency services (108/112) now.

To begin: what brings you in today, and what is your main concern?`

const emergencyMessage = `URGENT: what you describe could be a medical emergency.

Please do this now:
1. Call emergency services on 108 or 112.
2. Do not drive yourself. Wait for the ambulance.
3. If someone is with you, tell them about your symptoms.

Your case has been flagged as high priority and a doctor will be notified immediately.`

// extract asks for structured fields from the recent conversation. Failure
// yields an empty update.
func (s *service) extract(ctx context.Context, session *model.IntakeSession) model.ExtractedFields {
	raw, err := s.gen.Generate(ctx, extractionPrompt(session, s.cfg.ContextTurns))
	if err != nil {
		s.fallback(session, "extraction", err)
		return model.ExtractedFields{}
	}
	fields, err := llm.ParseJSON[model.ExtractedFields](raw)
	if err != nil {
		s.fallback(session, "extraction", err)
		return model.ExtractedFields{}
	}
	return fields
}

func (s *service) followUp(ctx context.Context, session *model.IntakeSession) string {
	raw, err := s.gen.Generate(ctx, followUpPrompt(session, s.cfg.ContextTurns))
	if err == nil {
		if q := strings.TrimSpace(raw); q != "" {
			return q
		}
		err = fmt.Errorf("%w: empty question", llm.ErrMalformedResponse)
	}
	s.fallback(session, "follow_up", err)
	return fallbackQuestion(session.Collected)
}

// fallbackQuestion asks for the first missing piece of the history.
func fallbackQuestion(c model.CollectedInfo) string {
	switch {
	case c.ChiefComplaint == "":
		return "I'm sorry you're not feeling well. Could you tell me more about what's bothering you the most?"
	case c.Duration == "":
		return "Thank you for sharing that. When did this start, and has it been getting better or worse?"
	case c.Severity == "":
		return "I understand. On a scale of 1 to 10, how severe would you say it is right now?"
	case len(c.AssociatedSymptoms) == 0:
		return "Thanks. Have you noticed any other symptoms along with this?"
	case c.MedicalHistory == "":
		return "Do you have any ongoing medical conditions, or have you had anything like this before?"
	default:
		return "Thank you. Are you taking any medications, and do you have any allergies?"
	}
}

type soapAnswer struct {
	Subjective string `json:"Subjective"`
	Objective  string `json:"Objective"`
	Assessment string `json:"Assessment"`
	Plan       string `json:"Plan"`
}

func (s *service) preliminarySOAP(ctx context.Context, session *model.IntakeSession) model.PreliminarySOAP {
	raw, err := s.gen.Generate(ctx, soapPrompt(session))
	if err == nil {
		ans, perr := llm.ParseJSON[soapAnswer](raw)
		if perr == nil && (ans.Subjective != "" || ans.Assessment != "") {
			return model.PreliminarySOAP{
				Note: model.SOAPNote{
					model.SectionSubjective: ans.Subjective,
					model.SectionObjective:  ans.Objective,
					model.SectionAssessment: ans.Assessment,
					model.SectionPlan:       ans.Plan,
				},
				IsPreliminary: true,
				GeneratedAt:   s.now(),
			}
		}
		if perr == nil {
			perr = fmt.Errorf("%w: empty note", llm.ErrMalformedResponse)
		}
		err = perr
	}
	s.fallback(session, "preliminary_soap", err)
	return templateSOAP(session, s.now)
}

func templateSOAP(session *model.IntakeSession, now func() time.Time) model.PreliminarySOAP {
	symptoms := session.Symptoms()
	reported := "no specific symptoms recorded"
	if len(symptoms) > 0 {
		reported = strings.Join(symptoms, ", ")
	}
	return model.PreliminarySOAP{
		Note: model.SOAPNote{
			model.SectionSubjective: "Patient reports: " + reported,
			model.SectionObjective:  "Pending physician examination",
			model.SectionAssessment: "PRELIMINARY - Pending physician examination",
			model.SectionPlan:       "Complete physical examination and clinical assessment",
		},
		IsPreliminary: true,
		Fallback:      true,
		GeneratedAt:   now(),
	}
}

func completionMessage(session *model.IntakeSession) string {
	var sb strings.Builder
	sb.WriteString("Thank you, I have everything I need for now.\n\n")
	if session.Collected.ChiefComplaint != "" {
		fmt.Fprintf(&sb, "Main concern: %s\n", session.Collected.ChiefComplaint)
	}
	if t := session.Triage; t != nil {
		fmt.Fprintf(&sb, "Priority: %s (score %d/10)\n", strings.ToUpper(string(t.Priority)), t.Score)
	}
	recommended := model.GeneralMedicine
	if len(session.SuggestedSpecialties) > 0 {
		recommended = session.SuggestedSpecialties[0]
	}
	fmt.Fprintf(&sb, "Recommended specialty: %s\n\n", recommended)
	sb.WriteString("Next we will match you with a suitable doctor and show available appointment times. ")
	sb.WriteString("The doctor will review this preliminary summary before your visit.")
	return sb.String()
}

func transcript(messages []model.Message) string {
	var sb strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&sb, "%s: %s\n", strings.ToUpper(string(m.Role)), m.Content)
	}
	return sb.String()
}

func extractionPrompt(session *model.IntakeSession, turns int) string {
	known, _ := json.Marshal(session.Collected)
	return fmt.Sprintf(`Extract clinical intake information from this conversation.

ALREADY KNOWN:
%s

RECENT CONVERSATION:
%s
Return as JSON. Use null for anything not mentioned:
{"chief_complaint": null, "location": null, "duration": null, "severity": null, "associated_symptoms": [], "medical_history": null, "medications_allergies": null, "vitals": {}, "allergies": [], "medications": []}

Return ONLY valid JSON.`, known, transcript(session.RecentMessages(turns)))
}

func followUpPrompt(session *model.IntakeSession, turns int) string {
	known, _ := json.Marshal(session.Collected)
	return fmt.Sprintf(`You are a warm, professional medical intake assistant. Ask exactly ONE short follow-up question to fill the most important gap in the patient's history. Do not diagnose.

KNOWN SO FAR:
%s

RECENT CONVERSATION:
%s
Reply with the question only.`, known, transcript(session.RecentMessages(turns)))
}

func soapPrompt(session *model.IntakeSession) string {
	data, _ := json.MarshalIndent(map[string]interface{}{
		"symptoms":       session.Symptoms(),
		"collected_info": session.Collected,
		"vitals":         session.Vitals,
		"allergies":      session.Allergies,
		"medications":    session.Medications,
	}, "", "  ")
	return fmt.Sprintf(`Generate a PRELIMINARY pre-visit SOAP note from this patient intake for the doctor to review.

CONVERSATION:
%s
EXTRACTED DATA:
%s

Mark the Assessment "PRELIMINARY - Pending physician examination". The Plan is suggested workup, not treatment.

Return as JSON:
{"Subjective": "...", "Objective": "...", "Assessment": "...", "Plan": "..."}

Return ONLY valid JSON.`, transcript(session.Messages), data)
}
