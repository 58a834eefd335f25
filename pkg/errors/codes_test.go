package errors

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var allCodes = []ErrorCode{
	ErrCodeInternal, ErrCodeBadRequest, ErrCodeNotFound, ErrCodeConflict,
	ErrCodeServiceUnavailable, ErrCodeTimeout, ErrCodeValidation, ErrCodeSerialization,
	ErrCodeCacheError, ErrCodeStorageError,
	ErrCodeLabelNotFound, ErrCodeCodeOutOfRange, ErrCodeDataIntegrity,
	ErrCodeInvalidSortField, ErrCodeInvalidSortOrder, ErrCodeInvalidAxis,
	ErrCodeArchiveSerialization, ErrCodeCorruptMetadata, ErrCodeMissingArchiveFile,
	ErrCodeMissingExpectedArtifact, ErrCodeInvalidArchiveName, ErrCodeUnknownTableType,
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "MTX_001", ErrCodeLabelNotFound.String())
}

func TestHTTPStatusForCode(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInternal, 500},
		{ErrCodeBadRequest, 400},
		{ErrCodeLabelNotFound, 404},
		{ErrCodeCodeOutOfRange, 500},
		{ErrCodeDataIntegrity, 500},
		{ErrCodeInvalidSortField, 400},
		{ErrCodeMissingArchiveFile, 404},
		{ErrCodeCorruptMetadata, 500},
		{ErrorCode("UNKNOWN"), 500},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, HTTPStatusForCode(tt.code), tt.code)
	}
}

func TestDefaultMessageForCode(t *testing.T) {
	assert.Equal(t, "label not found on axis", DefaultMessageForCode(ErrCodeLabelNotFound))
	assert.Equal(t, "unknown error", DefaultMessageForCode(ErrorCode("UNKNOWN")))
}

func TestIsClientServerError(t *testing.T) {
	assert.True(t, IsClientError(ErrCodeLabelNotFound))
	assert.False(t, IsClientError(ErrCodeDataIntegrity))
	assert.True(t, IsServerError(ErrCodeDataIntegrity))
	assert.False(t, IsServerError(ErrCodeInvalidSortOrder))
}

func TestModuleForCode(t *testing.T) {
	assert.Equal(t, "COMMON", ModuleForCode(ErrCodeInternal))
	assert.Equal(t, "MTX", ModuleForCode(ErrCodeLabelNotFound))
	assert.Equal(t, "ARC", ModuleForCode(ErrCodeCorruptMetadata))
	assert.Equal(t, "UNKNOWN", ModuleForCode(ErrorCode("")))
}

func TestErrorCodeFormat_Convention(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z]+_\d{3}$`)
	for _, code := range allCodes {
		assert.Regexp(t, re, string(code))
	}
}

func TestErrorCodeMappings_Completeness(t *testing.T) {
	for _, code := range allCodes {
		_, hasStatus := ErrorCodeHTTPStatus[code]
		_, hasMessage := ErrorCodeMessage[code]
		assert.True(t, hasStatus, "missing status for %s", code)
		assert.True(t, hasMessage, "missing message for %s", code)
	}
}
