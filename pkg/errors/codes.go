package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are "<MODULE>_<NNN>"; ModuleForCode recovers the prefix.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel codes that never appear in the HTTP tables.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

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
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeMessagingError     ErrorCode = "COMMON_016"
)

// Map layer Error Codes
const (
	ErrCodeSessionNotFound     ErrorCode = "GEO_001"
	ErrCodeInvalidBounds       ErrorCode = "GEO_002"
	ErrCodeInvalidZoom         ErrorCode = "GEO_003"
	ErrCodeInvalidExpression   ErrorCode = "GEO_004"
	ErrCodeClusterNotFound     ErrorCode = "GEO_005"
	ErrCodeIndexNotReady       ErrorCode = "GEO_006"
	ErrCodeEntityNotFound      ErrorCode = "GEO_007"
	ErrCodeSessionLimitReached ErrorCode = "GEO_008"
	ErrCodeInvalidRange        ErrorCode = "GEO_009"
)

// Agent Error Codes
const (
	ErrCodeAgentNotFound          ErrorCode = "AGT_001"
	ErrCodeAgentActionUnsupported ErrorCode = "AGT_002"
	ErrCodeAgentOutputInvalid     ErrorCode = "AGT_003"
	ErrCodeAgentParamsInvalid     ErrorCode = "AGT_004"
	ErrCodeAgentPromptFailed      ErrorCode = "AGT_005"
)

// Data Source / upstream Error Codes
const (
	ErrCodeDataSourceUnavailable    ErrorCode = "SRC_001"
	ErrCodeDataSourceRateLimited    ErrorCode = "SRC_002"
	ErrCodeDataSourceAuthFailed     ErrorCode = "SRC_003"
	ErrCodeDataSourceParseError     ErrorCode = "SRC_004"
	ErrCodeUpstreamCreditsExhausted ErrorCode = "SRC_005"
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
	ErrCodeExternalService:    http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeMessagingError:     http.StatusInternalServerError,

	ErrCodeSessionNotFound:     http.StatusNotFound,
	ErrCodeInvalidBounds:       http.StatusBadRequest,
	ErrCodeInvalidZoom:         http.StatusBadRequest,
	ErrCodeInvalidExpression:   http.StatusBadRequest,
	ErrCodeClusterNotFound:     http.StatusNotFound,
	ErrCodeIndexNotReady:       http.StatusConflict,
	ErrCodeEntityNotFound:      http.StatusNotFound,
	ErrCodeSessionLimitReached: http.StatusTooManyRequests,
	ErrCodeInvalidRange:        http.StatusBadRequest,

	ErrCodeAgentNotFound:          http.StatusNotFound,
	ErrCodeAgentActionUnsupported: http.StatusBadRequest,
	ErrCodeAgentOutputInvalid:     http.StatusBadGateway,
	ErrCodeAgentParamsInvalid:     http.StatusBadRequest,
	ErrCodeAgentPromptFailed:      http.StatusInternalServerError,

	ErrCodeDataSourceUnavailable:    http.StatusServiceUnavailable,
	ErrCodeDataSourceRateLimited:    http.StatusTooManyRequests,
	ErrCodeDataSourceAuthFailed:     http.StatusBadGateway,
	ErrCodeDataSourceParseError:     http.StatusBadGateway,
	ErrCodeUpstreamCreditsExhausted: http.StatusPaymentRequired,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeForbidden:          "forbidden",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeMessagingError:     "messaging error",

	ErrCodeSessionNotFound:     "map session not found",
	ErrCodeInvalidBounds:       "invalid viewport bounds",
	ErrCodeInvalidZoom:         "invalid zoom level",
	ErrCodeInvalidExpression:   "invalid filter expression",
	ErrCodeClusterNotFound:     "cluster not found",
	ErrCodeIndexNotReady:       "spatial index not built yet",
	ErrCodeEntityNotFound:      "company not found",
	ErrCodeSessionLimitReached: "too many open map sessions",
	ErrCodeInvalidRange:        "invalid numeric range",

	ErrCodeAgentNotFound:          "agent not found",
	ErrCodeAgentActionUnsupported: "unsupported agent action",
	ErrCodeAgentOutputInvalid:     "AI response did not match the expected schema",
	ErrCodeAgentParamsInvalid:     "invalid agent parameters",
	ErrCodeAgentPromptFailed:      "failed to render agent prompt",

	ErrCodeDataSourceUnavailable:    "data source unavailable",
	ErrCodeDataSourceRateLimited:    "rate limit exceeded, try again later",
	ErrCodeDataSourceAuthFailed:     "data source authentication failed",
	ErrCodeDataSourceParseError:     "failed to parse data source response",
	ErrCodeUpstreamCreditsExhausted: "AI credits exhausted",
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
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
