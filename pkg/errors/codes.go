package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are namespaced as <MODULE>_<NNN>.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeStorageError       ErrorCode = "COMMON_014"
)

// Aliases kept short for call sites.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Matrix Module Error Codes
const (
	ErrCodeLabelNotFound    ErrorCode = "MTX_001"
	ErrCodeCodeOutOfRange   ErrorCode = "MTX_002"
	ErrCodeDataIntegrity    ErrorCode = "MTX_003"
	ErrCodeInvalidSortField ErrorCode = "MTX_004"
	ErrCodeInvalidSortOrder ErrorCode = "MTX_005"
	ErrCodeInvalidAxis      ErrorCode = "MTX_006"
)

// Archive Module Error Codes
const (
	ErrCodeArchiveSerialization    ErrorCode = "ARC_001"
	ErrCodeCorruptMetadata         ErrorCode = "ARC_002"
	ErrCodeMissingArchiveFile      ErrorCode = "ARC_003"
	ErrCodeMissingExpectedArtifact ErrorCode = "ARC_004"
	ErrCodeInvalidArchiveName      ErrorCode = "ARC_005"
	ErrCodeUnknownTableType        ErrorCode = "ARC_006"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusBadGateway,

	ErrCodeLabelNotFound:    http.StatusNotFound,
	ErrCodeCodeOutOfRange:   http.StatusInternalServerError,
	ErrCodeDataIntegrity:    http.StatusInternalServerError,
	ErrCodeInvalidSortField: http.StatusBadRequest,
	ErrCodeInvalidSortOrder: http.StatusBadRequest,
	ErrCodeInvalidAxis:      http.StatusBadRequest,

	ErrCodeArchiveSerialization:    http.StatusInternalServerError,
	ErrCodeCorruptMetadata:         http.StatusInternalServerError,
	ErrCodeMissingArchiveFile:      http.StatusNotFound,
	ErrCodeMissingExpectedArtifact: http.StatusInternalServerError,
	ErrCodeInvalidArchiveName:      http.StatusBadRequest,
	ErrCodeUnknownTableType:        http.StatusBadRequest,
}

// ErrorCodeMessage maps error codes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization error",
	ErrCodeCacheError:         "cache error",
	ErrCodeStorageError:       "object storage error",

	ErrCodeLabelNotFound:    "label not found on axis",
	ErrCodeCodeOutOfRange:   "category code out of range",
	ErrCodeDataIntegrity:    "matrix data integrity violation",
	ErrCodeInvalidSortField: "invalid sort field",
	ErrCodeInvalidSortOrder: "invalid sort order",
	ErrCodeInvalidAxis:      "invalid axis",

	ErrCodeArchiveSerialization:    "failed to serialize archive",
	ErrCodeCorruptMetadata:         "corrupt archive metadata",
	ErrCodeMissingArchiveFile:      "archive file not found",
	ErrCodeMissingExpectedArtifact: "archive is missing an expected artifact",
	ErrCodeInvalidArchiveName:      "invalid archive filename",
	ErrCodeUnknownTableType:        "unknown table type",
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
