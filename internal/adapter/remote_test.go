package adapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remedian/internal/mapping"
	"remedian/internal/remote"
	"remedian/internal/types"
)

// newRemoteBackend spins up an httptest CRM and a remote service backend
// against it.
func newRemoteServiceBackend(t *testing.T, handler http.HandlerFunc) Backend {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/", handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := remote.NewClient(server.Client(), "crm-test", remote.DefaultRetryPolicy(), "Remedian-test/1.0",
		remote.WithSleepFunc(func(time.Duration) {}))
	session := remote.NewSession(client, remote.SessionConfig{
		TokenURL:     server.URL + "/oauth/token",
		ClientID:     "engine",
		ClientSecret: types.SecretString("s3cret"),
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	conn := remote.NewConnector(client, session, server.URL, slog.New(slog.NewTextHandler(io.Discard, nil)))

	table, err := mapping.Load("")
	require.NoError(t, err)
	m, ok := table.Get(types.KindService)
	require.True(t, ok)
	return NewRemoteBackend(conn, m)
}

func TestRemoteBackend_GetTranslatesToCanonical(t *testing.T) {
	b := newRemoteServiceBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v2/subscription/svc-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"serviceName":         "Fiber 100",
			"statusCode":          "ACT",
			"customerAccountId":   "acct-1",
			"customerAccountName": "Acme",
			"updatedAt":           "2026-03-01T12:00:00Z",
		})
	})

	res, err := b.Get(context.Background(), "svc-1")
	require.NoError(t, err)
	assert.Equal(t, types.KindService, res.Kind)
	assert.Equal(t, "svc-1", res.ID)
	assert.Equal(t, "Fiber 100", res.String("name"))
	assert.Equal(t, "active", res.String("status"))
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), res.UpdatedAt)

	ref, ok := res.Ref("account")
	require.True(t, ok)
	assert.Equal(t, "acct-1", ref.ID)
}

func TestRemoteBackend_ListTranslatesFilterAndCursor(t *testing.T) {
	b := newRemoteServiceBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v2/subscription", r.URL.Path)
		assert.Equal(t, "ACT", r.URL.Query().Get("statusCode"), "canonical filter value is translated")
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "page-1", r.URL.Query().Get("cursor"))
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"id": "svc-1", "serviceName": "Fiber 100"},
				{"id": "svc-2", "serviceName": "Fiber 200"},
			},
			"next": "page-2",
		})
	})

	out, info, err := b.List(context.Background(), types.ListParams{
		Filter: map[string]string{"status": "active"},
		Limit:  25,
		Cursor: "page-1",
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "svc-1", out[0].ID)
	assert.True(t, info.HasMore)
	assert.Equal(t, "page-2", info.NextCursor)
}

func TestRemoteBackend_ListRejectsUnmappedFilter(t *testing.T) {
	b := newRemoteServiceBackend(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request should reach the CRM")
	})

	_, _, err := b.List(context.Background(), types.ListParams{
		Filter: map[string]string{"bogus": "x"},
		Limit:  10,
	})
	require.Error(t, err)
}

func TestRemoteBackend_UpdateEmptyBodyReReads(t *testing.T) {
	var patched bool
	b := newRemoteServiceBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "Dian", payload["picName"], "payload carries backend field names")
			patched = true
			w.WriteHeader(http.StatusOK) // ack without a body
		case http.MethodGet:
			json.NewEncoder(w).Encode(map[string]any{"picName": "Dian", "serviceName": "Fiber 100"})
		}
	})

	res, err := b.Update(context.Background(), "svc-1", map[string]any{"pic_name": "Dian"})
	require.NoError(t, err)
	assert.True(t, patched)
	assert.Equal(t, "Dian", res.String("pic_name"), "the bare ack is resolved by a fresh read")
}

func TestRemoteBackend_DeleteAck(t *testing.T) {
	b := newRemoteServiceBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, b.Delete(context.Background(), "svc-1"))
}

func TestRemoteBackend_CreateEchoesOnBareAck(t *testing.T) {
	b := newRemoteServiceBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated) // some endpoints acknowledge without a body
	})

	res, err := b.Create(context.Background(), map[string]any{"name": "Fiber 300"})
	require.NoError(t, err)
	assert.Equal(t, "Fiber 300", res.String("name"), "accepted representation is echoed back")
}
