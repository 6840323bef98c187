package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jwalitptl/intake-api/pkg/errors"
)

// requestIDKey is where the request id middleware stores the id.
const requestIDKey = "request_id"

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents API error
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// ListResponse wraps list data with its size
type ListResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithCreated sends a 201 response
func RespondWithCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, err error) {
	statusCode := http.StatusInternalServerError
	message := "Internal server error"
	code := statusCode

	if appErr, ok := errors.As(err); ok {
		statusCode = appErr.Code.HTTPStatus()
		code = int(appErr.Code)
		if statusCode != http.StatusInternalServerError {
			message = appErr.Message
		}
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(statusCode, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
			TraceID: c.GetString(requestIDKey),
		},
	})
}

// RespondWithList sends a list response
func RespondWithList(c *gin.Context, items interface{}, total int) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: ListResponse{
			Items: items,
			Total: total,
		},
	})
}
