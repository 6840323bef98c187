package doctor

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/intake-api/internal/model"
	"github.com/jwalitptl/intake-api/internal/service/matching"
	"github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/httputil"
	"github.com/jwalitptl/intake-api/pkg/validator"
)

type Handler struct {
	service   matching.Service
	validator validator.Validator
}

func NewHandler(service matching.Service, v validator.Validator) *Handler {
	if v == nil {
		v = validator.New()
	}
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.POST("/load", h.LoadRoster)
		doctors.POST("/match", h.Match)
		doctors.POST("/recommend", h.Recommend)
		doctors.POST("/assign", h.Assign)
		doctors.GET("/specialties", h.ListSpecialties)
		doctors.POST("/specialties/resolve", h.ResolveSpecialties)
	}
}

type loadRosterRequest struct {
	Doctors []model.DoctorRecord `json:"doctors" binding:"required"`
}

type loadRosterResponse struct {
	Loaded      int      `json:"loaded"`
	Specialties []string `json:"specialties"`
}

type resolveRequest struct {
	Symptoms []string       `json:"symptoms"`
	SOAPNote model.SOAPNote `json:"soap_note"`
}

type resolveResponse struct {
	Specialties []string `json:"specialties"`
	Primary     string   `json:"primary"`
	Secondary   string   `json:"secondary,omitempty"`
	Source      string   `json:"source"`
}

func (h *Handler) LoadRoster(c *gin.Context) {
	var req loadRosterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("doctors list is required", err))
		return
	}

	n, err := h.service.Load(c.Request.Context(), req.Doctors)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, loadRosterResponse{Loaded: n, Specialties: h.service.Specialties()})
}

func (h *Handler) bindQuery(c *gin.Context) (model.MatchQuery, bool) {
	var q model.MatchQuery
	if err := c.ShouldBindJSON(&q); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid match query", err))
		return q, false
	}
	if err := h.validator.Validate(q); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid match query", err))
		return q, false
	}
	if q.Specialty == "" && q.Symptoms == "" {
		httputil.RespondWithError(c, errors.NewBadRequest("specialty or symptoms is required", nil))
		return q, false
	}
	return q, true
}

func (h *Handler) Match(c *gin.Context) {
	q, ok := h.bindQuery(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.Find(c.Request.Context(), q))
}

func (h *Handler) Recommend(c *gin.Context) {
	q, ok := h.bindQuery(c)
	if !ok {
		return
	}
	httputil.RespondWithSuccess(c, h.service.BestMatch(c.Request.Context(), q))
}

func (h *Handler) Assign(c *gin.Context) {
	var req model.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid assignment request", err))
		return
	}

	assignment, err := h.service.Assign(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, assignment)
}

func (h *Handler) ListSpecialties(c *gin.Context) {
	specialties := h.service.Specialties()
	httputil.RespondWithList(c, specialties, len(specialties))
}

func (h *Handler) ResolveSpecialties(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid request body", err))
		return
	}
	if len(req.Symptoms) == 0 && len(req.SOAPNote) == 0 {
		httputil.RespondWithError(c, errors.NewBadRequest("symptoms or soap_note is required", nil))
		return
	}

	cls := h.service.ResolveSpecialties(c.Request.Context(), req.Symptoms, req.SOAPNote)
	httputil.RespondWithSuccess(c, resolveResponse{
		Specialties: cls.Specialties,
		Primary:     cls.Primary(),
		Secondary:   cls.Secondary(),
		Source:      string(cls.Source),
	})
}
