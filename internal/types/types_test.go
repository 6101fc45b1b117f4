package types

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidKind, http.StatusBadRequest},
		{ErrCodeValidationUnmappedField, http.StatusBadRequest},
		{ErrCodeNotFoundResource, http.StatusNotFound},
		{ErrCodeNotFoundJob, http.StatusNotFound},
		{ErrCodeConflictJobState, http.StatusConflict},
		{ErrCodeConflictStaleResource, http.StatusConflict},
		{ErrCodeRemoteUnavailable, http.StatusBadGateway},
		{ErrCodeRemoteRejected, http.StatusBadGateway},
		{ErrCodePipelineApplyFailed, http.StatusInternalServerError},
		{ErrCodeBatchEnumerationFailed, http.StatusInternalServerError},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestErrorCode_Retryable(t *testing.T) {
	assert.True(t, ErrCodeRemoteUnavailable.Retryable())

	for _, code := range []ErrorCode{
		ErrCodeRemoteRejected,
		ErrCodeRemoteAuth,
		ErrCodeConflictStaleResource,
		ErrCodeInternalDB,
		ErrCodeValidationInvalidKind,
	} {
		assert.False(t, code.Retryable(), "%s must be terminal", code)
	}
}

func TestAppError_WithDetails(t *testing.T) {
	base := NewAppErrorWithDetails(ErrCodeValidationUnmappedField, "bad field", nil,
		map[string]any{"field": "x"})

	enriched := base.WithDetails(map[string]any{"kind": "service"})

	assert.Equal(t, map[string]any{"field": "x"}, base.Details, "original is not mutated")
	assert.Equal(t, "x", enriched.Details["field"])
	assert.Equal(t, "service", enriched.Details["kind"])
	assert.Equal(t, "validation_unmapped_field: bad field", enriched.Error())
}

func TestResource_Empty(t *testing.T) {
	r := &Resource{Fields: map[string]any{
		"present": "value",
		"blank":   "",
		"nilval":  nil,
		"number":  0,
	}}

	assert.False(t, r.Empty("present"))
	assert.True(t, r.Empty("blank"))
	assert.True(t, r.Empty("nilval"))
	assert.True(t, r.Empty("absent"))
	assert.False(t, r.Empty("number"), "only strings have an empty form")

	var nilRes *Resource
	assert.True(t, nilRes.Empty("anything"))
}

func TestResource_Ref(t *testing.T) {
	name := "Acme"
	r := &Resource{Fields: map[string]any{
		"typed":   ResourceRef{ID: "a-1", Name: &name},
		"decoded": map[string]any{"id": "a-2", "href": "/v1/resource/account/a-2"},
		"empty":   map[string]any{"href": "nope"},
		"str":     "not-a-ref",
	}}

	ref, ok := r.Ref("typed")
	require.True(t, ok)
	assert.Equal(t, "a-1", ref.ID)

	ref, ok = r.Ref("decoded")
	require.True(t, ok)
	assert.Equal(t, "a-2", ref.ID)
	assert.Equal(t, "/v1/resource/account/a-2", ref.Href)

	_, ok = r.Ref("empty")
	assert.False(t, ok, "a ref without an id is no ref")
	_, ok = r.Ref("str")
	assert.False(t, ok)
}

func TestListParams_Normalized(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ListParams{}.Normalized().Limit)
	assert.Equal(t, DefaultListLimit, ListParams{Limit: -5}.Normalized().Limit)
	assert.Equal(t, 25, ListParams{Limit: 25}.Normalized().Limit)
	assert.Equal(t, MaxListLimit, ListParams{Limit: 10_000}.Normalized().Limit)
}

func TestSelectionCriteria_MarshalJSONB(t *testing.T) {
	var nilCriteria SelectionCriteria
	data, err := nilCriteria.MarshalJSONB()
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))

	data, err = SelectionCriteria{"status": "active"}.MarshalJSONB()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"active"}`, string(data))
}

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString("hunter2")

	assert.Equal(t, "***REDACTED***", s.String())
	assert.NotContains(t, s.String(), "hunter2")
	assert.Equal(t, "hunter2", s.Unmask())

	data, err := s.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"***REDACTED***"`, string(data))
}
