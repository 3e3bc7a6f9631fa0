package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeForbidden          ErrorCode = "COMMON_004"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessageQueue       ErrorCode = "COMMON_014"
	ErrCodeCanceled           ErrorCode = "COMMON_017"
)

// Short aliases used at call sites.
const (
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeCacheError   = ErrCodeCacheError
)

// Shape Module Error Codes
const (
	ErrCodeInvalidShapeElement ErrorCode = "SHP_001"
	ErrCodeShapeNotBound       ErrorCode = "SHP_002"
	ErrCodeEmptyShape          ErrorCode = "SHP_003"
	ErrCodeAlignmentFailed     ErrorCode = "SHP_004"
	ErrCodeInvalidTransform    ErrorCode = "SHP_005"
	ErrCodeInvalidShapeOptions ErrorCode = "SHP_006"
	ErrCodeScreeningFailed     ErrorCode = "SHP_007"
)

// Shape Library Error Codes
const (
	ErrCodeLibraryNotFound      ErrorCode = "LIB_001"
	ErrCodeLibraryAlreadyExists ErrorCode = "LIB_002"
	ErrCodeInvalidLibraryName   ErrorCode = "LIB_003"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeForbidden:          http.StatusForbidden,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeMessageQueue:       http.StatusInternalServerError,
	ErrCodeCanceled:           499,

	ErrCodeInvalidShapeElement: http.StatusBadRequest,
	ErrCodeShapeNotBound:       http.StatusConflict,
	ErrCodeEmptyShape:          http.StatusBadRequest,
	ErrCodeAlignmentFailed:     http.StatusUnprocessableEntity,
	ErrCodeInvalidTransform:    http.StatusBadRequest,
	ErrCodeInvalidShapeOptions: http.StatusBadRequest,
	ErrCodeScreeningFailed:     http.StatusInternalServerError,

	ErrCodeLibraryNotFound:      http.StatusNotFound,
	ErrCodeLibraryAlreadyExists: http.StatusConflict,
	ErrCodeInvalidLibraryName:   http.StatusBadRequest,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "authentication required",
	ErrCodeForbidden:          "permission denied",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeMessageQueue:       "message queue error",
	ErrCodeCanceled:           "request canceled",

	ErrCodeInvalidShapeElement: "invalid shape element",
	ErrCodeShapeNotBound:       "shape function not bound",
	ErrCodeEmptyShape:          "shape has no elements",
	ErrCodeAlignmentFailed:     "shape alignment failed",
	ErrCodeInvalidTransform:    "invalid transform",
	ErrCodeInvalidShapeOptions: "invalid shape options",
	ErrCodeScreeningFailed:     "shape screening failed",

	ErrCodeLibraryNotFound:      "shape library not found",
	ErrCodeLibraryAlreadyExists: "shape library already exists",
	ErrCodeInvalidLibraryName:   "invalid shape library name",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
