package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedian/internal/types"
)

func serviceMapping(t *testing.T) *ResourceMapping {
	t.Helper()
	table, err := Load("")
	require.NoError(t, err)
	m, ok := table.Get(types.KindService)
	require.True(t, ok)
	return m
}

func TestToCanonical_RemoteRecord(t *testing.T) {
	m := serviceMapping(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	raw := map[string]any{
		"serviceName":         "Fiber 100",
		"statusCode":          "ACT",
		"serviceType":         "connectivity",
		"customerAccountId":   "acct-1",
		"customerAccountName": "Acme Corp",
		"unmappedCrmField":    "dropped",
	}

	res := m.ToCanonical(types.BackendRemote, "svc-1", raw, now)

	assert.Equal(t, types.KindService, res.Kind)
	assert.Equal(t, "svc-1", res.ID)
	assert.Equal(t, now, res.UpdatedAt)
	assert.Equal(t, "Fiber 100", res.Fields["name"])
	assert.Equal(t, "active", res.Fields["status"], "enum translated backend->canonical")
	assert.NotContains(t, res.Fields, "unmappedCrmField", "unmapped backend fields are dropped")

	ref, ok := res.Ref("account")
	require.True(t, ok)
	assert.Equal(t, "acct-1", ref.ID)
	assert.Equal(t, "/v1/resource/account/acct-1", ref.Href)
	require.NotNil(t, ref.Name)
	assert.Equal(t, "Acme Corp", *ref.Name)
}

func TestToCanonical_RefWithoutNameStaysNull(t *testing.T) {
	m := serviceMapping(t)

	raw := map[string]any{"customerAccountId": "acct-2"}
	res := m.ToCanonical(types.BackendRemote, "svc-2", raw, time.Now())

	ref, ok := res.Ref("account")
	require.True(t, ok)
	assert.Equal(t, "acct-2", ref.ID)
	assert.Nil(t, ref.Name, "names come from denormalized data only, never extra lookups")
}

func TestToCanonical_UnknownEnumValuePassesThrough(t *testing.T) {
	m := serviceMapping(t)

	raw := map[string]any{"statusCode": "NEWCODE"}
	res := m.ToCanonical(types.BackendRemote, "svc-3", raw, time.Now())

	assert.Equal(t, "NEWCODE", res.Fields["status"])
}

func TestToBackend_RoundTrip(t *testing.T) {
	m := serviceMapping(t)
	now := time.Now().UTC()

	raw := map[string]any{
		"serviceName":       "Fiber 100",
		"statusCode":        "SUS",
		"customerAccountId": "acct-1",
	}
	res := m.ToCanonical(types.BackendRemote, "svc-1", raw, now)

	back, err := m.ToBackend(types.BackendRemote, res.Fields)
	require.NoError(t, err)
	assert.Equal(t, "Fiber 100", back["serviceName"])
	assert.Equal(t, "SUS", back["statusCode"], "enum translated canonical->backend")
	assert.Equal(t, "acct-1", back["customerAccountId"], "refs collapse to the foreign id")
}

func TestToBackend_LocalColumnNames(t *testing.T) {
	m := serviceMapping(t)

	back, err := m.ToBackend(types.BackendLocal, map[string]any{
		"solution": "doc body",
		"status":   "active",
	})
	require.NoError(t, err)
	assert.Equal(t, "doc body", back["solution_doc"])
	assert.Equal(t, "active", back["status"], "local store keeps canonical enum values")
}

func TestToBackend_RejectsUnmappedField(t *testing.T) {
	m := serviceMapping(t)

	_, err := m.ToBackend(types.BackendLocal, map[string]any{"bogus": 1})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationUnmappedField, appErr.Code)
}

func TestToBackend_RejectsReadOnlyField(t *testing.T) {
	m := serviceMapping(t)

	_, err := m.ToBackend(types.BackendLocal, map[string]any{"migrated_by": "mig-bot"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationUnmappedField, appErr.Code)
}

func TestToBackend_RejectsUnknownEnumValue(t *testing.T) {
	m := serviceMapping(t)

	_, err := m.ToBackend(types.BackendRemote, map[string]any{"status": "frobnicated"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestFilterToBackend_AllowsReadOnly(t *testing.T) {
	m := serviceMapping(t)

	out, err := m.FilterToBackend(types.BackendLocal, map[string]string{
		"migrated_by": "mig-bot",
		"status":      "active",
	})
	require.NoError(t, err)
	assert.Equal(t, "mig-bot", out["migrated_by"])
	assert.Equal(t, "active", out["status"])
}

func TestFilterToBackend_TranslatesEnumOnRemote(t *testing.T) {
	m := serviceMapping(t)

	out, err := m.FilterToBackend(types.BackendRemote, map[string]string{"status": "active"})
	require.NoError(t, err)
	assert.Equal(t, "ACT", out["statusCode"])
}

func TestFilterToBackend_RejectsUnmapped(t *testing.T) {
	m := serviceMapping(t)

	_, err := m.FilterToBackend(types.BackendLocal, map[string]string{"nope": "x"})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationUnmappedField, appErr.Code)
}

func TestNewTable_RejectsNonBijectiveEnum(t *testing.T) {
	_, err := NewTable([]ResourceMapping{{
		Kind: types.KindAccount,
		Fields: []FieldMapping{{
			Canonical: "status",
			Column:    "status",
			Enum:      map[string]string{"a": "X", "b": "X"},
		}},
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not bijective")
}

func TestNewTable_RejectsDuplicateKind(t *testing.T) {
	_, err := NewTable([]ResourceMapping{
		{Kind: types.KindAccount, Fields: []FieldMapping{{Canonical: "name", Column: "name"}}},
		{Kind: types.KindAccount, Fields: []FieldMapping{{Canonical: "name", Column: "name"}}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate mapping")
}

func TestLoad_FileReplacesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	content := `[{"kind":"account","table":"accounts","fields":[{"canonical":"name","column":"name"}]}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	table, err := Load(path)
	require.NoError(t, err)

	_, ok := table.Get(types.KindAccount)
	assert.True(t, ok)
	_, ok = table.Get(types.KindService)
	assert.False(t, ok, "file replaces the defaults wholesale")
}

func TestLoad_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
