// Package encounter applies clinician edits to drafted notes: every edit is
// learned from and re-validated, and a note is only finalized when valid.
package encounter

import (
	"context"
	"fmt"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/service/reflexion"
	"github.com/jwalitptl/intake-api/internal/service/validation"
	apperrors "github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/logger"
	"github.com/jwalitptl/intake-api/pkg/messaging"
	"github.com/jwalitptl/intake-api/pkg/validator"
)

type Service interface {
	Update(ctx context.Context, encounterID string, upd model.EncounterUpdate) (*model.EncounterUpdateResult, error)
	Finalize(ctx context.Context, encounterID string, req model.ValidationRequest) (*model.FinalizeResult, error)
}

type service struct {
	learner   reflexion.Service
	validator validation.Service
	input     validator.Validator
	publisher messaging.Publisher
	logger    *logger.Logger
}

func NewService(learner reflexion.Service, notes validation.Service, publisher messaging.Publisher, log *logger.Logger) Service {
	if publisher == nil {
		publisher = messaging.NopPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		learner:   learner,
		validator: notes,
		input:     validator.New(),
		publisher: publisher,
		logger:    log,
	}
}

func (s *service) Update(ctx context.Context, encounterID string, upd model.EncounterUpdate) (*model.EncounterUpdateResult, error) {
	if encounterID == "" {
		return nil, apperrors.NewBadRequest("encounter id is required", nil)
	}
	if err := s.input.Validate(upd); err != nil {
		return nil, apperrors.NewBadRequest("invalid encounter update", err)
	}

	edit, err := s.learner.LogEdit(ctx, encounterID, upd.DoctorID, upd.Specialty, upd.OriginalSOAP, upd.EditedSOAP)
	if err != nil {
		return nil, fmt.Errorf("failed to log edit: %w", err)
	}

	result := s.validator.Validate(ctx, model.ValidationRequest{
		Note:         upd.EditedSOAP,
		Symptoms:     upd.Symptoms,
		Conversation: upd.Conversation,
		Specialty:    edit.Specialty,
	})
	return &model.EncounterUpdateResult{EncounterID: encounterID, Edit: edit, Validation: result}, nil
}

func (s *service) Finalize(ctx context.Context, encounterID string, req model.ValidationRequest) (*model.FinalizeResult, error) {
	if encounterID == "" {
		return nil, apperrors.NewBadRequest("encounter id is required", nil)
	}
	if len(req.Note) == 0 {
		return nil, apperrors.NewBadRequest("soap_note is required", nil)
	}

	result := s.validator.Validate(ctx, req)
	if !result.IsValid {
		s.logger.Info("finalization refused", "encounter_id", encounterID, "overall", result.OverallScore)
		return &model.FinalizeResult{
			EncounterID: encounterID,
			Validation:  result,
			Message:     "SOAP note has validation issues",
		}, nil
	}

	if err := s.publisher.Publish(ctx, model.EventNoteFinalized, map[string]interface{}{
		"encounter_id":  encounterID,
		"specialty":     req.Specialty,
		"overall_score": result.OverallScore,
	}); err != nil {
		s.logger.Error(err, "failed to publish event", "event", model.EventNoteFinalized)
	}
	s.logger.Info("encounter finalized", "encounter_id", encounterID)
	return &model.FinalizeResult{
		EncounterID: encounterID,
		Finalized:   true,
		Validation:  result,
		Message:     "Encounter finalized",
	}, nil
}
