package utils

// Application Constants
const (
	AppName = "compengine"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1
)

// Response status
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidAmount      = "INVALID_AMOUNT"
	CodeBadRequest         = "BAD_REQUEST"
	CodeTransactionAborted = "TRANSACTION_ABORTED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error messages
const (
	ErrInternalServer   = "Internal server error"
	ErrUnauthorized     = "Unauthorized access"
	ErrForbidden        = "Access forbidden"
	ErrValidationFailed = "Validation failed"
	ErrInvalidID        = "Invalid identifier"
)
