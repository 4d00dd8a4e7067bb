package utils

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope every admin endpoint writes.
type APIResponse struct {
	Status     string          `json:"status"`
	Message    string          `json:"message,omitempty"`
	Data       interface{}     `json:"data,omitempty"`
	Error      *APIError       `json:"error,omitempty"`
	Pagination *PaginationMeta `json:"pagination,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

type APIError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func respond(c *gin.Context, statusCode int, resp APIResponse) {
	resp.Timestamp = time.Now()
	c.JSON(statusCode, resp)
}

func SuccessResponse(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusOK, APIResponse{Status: StatusSuccess, Message: message, Data: data})
}

func CreatedResponse(c *gin.Context, message string, data interface{}) {
	respond(c, http.StatusCreated, APIResponse{Status: StatusSuccess, Message: message, Data: data})
}

// PagedResponse writes one page of a listing alongside its pagination state.
func PagedResponse(c *gin.Context, message string, page interface{}, pagination *PaginationMeta) {
	respond(c, http.StatusOK, APIResponse{Status: StatusSuccess, Message: message, Data: page, Pagination: pagination})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string) {
	respond(c, statusCode, APIResponse{Status: StatusError, Error: &APIError{Code: code, Message: message}})
}

// ValidationErrorResponse reports field errors keyed by JSON field name.
func ValidationErrorResponse(c *gin.Context, fields map[string]string) {
	respond(c, http.StatusBadRequest, APIResponse{
		Status: StatusError,
		Error:  &APIError{Code: CodeValidation, Message: ErrValidationFailed, Details: fields},
	})
}

func BadRequestResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusBadRequest, CodeBadRequest, message)
}

func NotFoundResponse(c *gin.Context, resource string) {
	ErrorResponse(c, http.StatusNotFound, CodeNotFound, resource+" not found")
}

func UnauthorizedResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusUnauthorized, CodeUnauthorized, ErrUnauthorized)
}

func ForbiddenResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusForbidden, CodeForbidden, ErrForbidden)
}

func InternalServerErrorResponse(c *gin.Context) {
	ErrorResponse(c, http.StatusInternalServerError, CodeInternal, ErrInternalServer)
}
