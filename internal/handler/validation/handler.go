package validation

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/service/encounter"
	validationService "github.com/jwalitptl/intake-api/internal/service/validation"
	"github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/httputil"
)

// Handler serves note validation and the encounter edit/finalize flow.
type Handler struct {
	notes      validationService.Service
	encounters encounter.Service
}

func NewHandler(notes validationService.Service, encounters encounter.Service) *Handler {
	return &Handler{notes: notes, encounters: encounters}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/notes/validate", h.ValidateNote)

	encounters := r.Group("/encounters")
	{
		encounters.POST("/:id/update", h.UpdateEncounter)
		encounters.POST("/:id/finalize", h.FinalizeEncounter)
	}
}

type validateResponse struct {
	Validation model.ValidationResult  `json:"validation"`
	Summary    model.ValidationSummary `json:"summary"`
}

func (h *Handler) ValidateNote(c *gin.Context) {
	var req model.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid validation request", err))
		return
	}
	if len(req.Note) == 0 {
		httputil.RespondWithError(c, errors.NewBadRequest("soap_note is required", nil))
		return
	}

	result := h.notes.Validate(c.Request.Context(), req)
	httputil.RespondWithSuccess(c, validateResponse{
		Validation: result,
		Summary:    h.notes.Summary(result),
	})
}

func (h *Handler) UpdateEncounter(c *gin.Context) {
	var req model.EncounterUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid encounter update", err))
		return
	}

	result, err := h.encounters.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}

func (h *Handler) FinalizeEncounter(c *gin.Context) {
	var req model.ValidationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid finalize request", err))
		return
	}

	result, err := h.encounters.Finalize(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, result)
}
