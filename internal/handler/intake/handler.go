package intake

import (
	"strings"

	"github.com/gin-gonic/gin"

	intakeService "github.com/jwalitptl/intake-api/internal/service/intake"
	"github.com/jwalitptl/intake-api/pkg/errors"
	"github.com/jwalitptl/intake-api/pkg/httputil"
)

const maxMessageLength = 4000

type Handler struct {
	service intakeService.Service
}

func NewHandler(service intakeService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	intake := r.Group("/intake")
	{
		intake.POST("/start", h.StartSession)
		intake.POST("/message", h.ProcessMessage)
		intake.GET("/sessions", h.ListSessions)
		intake.GET("/sessions/:id", h.GetSession)
	}
}

type startSessionRequest struct {
	PatientID string `json:"patient_id" binding:"max=128"`
}

type messageRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) StartSession(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httputil.RespondWithError(c, errors.NewBadRequest("invalid request body", err))
			return
		}
	}

	resp, err := h.service.StartSession(c.Request.Context(), req.PatientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, resp)
}

func (h *Handler) ProcessMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("session_id and message are required", err))
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		httputil.RespondWithError(c, errors.NewBadRequest("message must not be blank", nil))
		return
	}
	if len([]rune(text)) > maxMessageLength {
		httputil.RespondWithError(c, errors.NewBadRequest("message is too long", nil))
		return
	}

	resp, err := h.service.ProcessMessage(c.Request.Context(), req.SessionID, text)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, resp)
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.service.ListSessions(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithList(c, sessions, len(sessions))
}

func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, session)
}
