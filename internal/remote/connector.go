package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"remedian/internal/types"
)

// Connector issues verbed requests against the CRM's narrow, purpose-built
// endpoints. It operates purely on backend-representation maps; canonical
// translation is the mapping layer's job. All calls ride the shared OAuth
// Session and the resilient Client.
type Connector struct {
	client  *Client
	session *Session
	baseURL string
	logger  *slog.Logger
}

// NewConnector creates a Connector for the CRM at baseURL.
func NewConnector(client *Client, session *Session, baseURL string, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Connector{
		client:  client,
		session: session,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// ExpandPath substitutes the {id} placeholder in a templated item path.
func ExpandPath(template, id string) string {
	return strings.ReplaceAll(template, "{id}", url.PathEscape(id))
}

// GetItem fetches one record. A 404 maps to not_found_resource.
func (c *Connector) GetItem(ctx context.Context, path string) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// listEnvelope is the CRM's paginated collection shape. Some endpoints
// return a bare JSON array instead; ListCollection tolerates both.
type listEnvelope struct {
	Items []map[string]any `json:"items"`
	Next  string           `json:"next"`
}

// ListCollection fetches a page of records. The returned cursor is the
// CRM's own paging token, passed through opaque and unmodified.
func (c *Connector) ListCollection(ctx context.Context, path string, query url.Values) ([]map[string]any, string, error) {
	resp, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return nil, "", err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeRemoteRejected, "failed to read CRM list response", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, "", nil
	}

	// Envelope form first, bare array as fallback.
	var envelope listEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Items != nil {
		return envelope.Items, envelope.Next, nil
	}
	var items []map[string]any
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, "", types.NewAppError(
			types.ErrCodeRemoteRejected,
			"CRM list response is neither an envelope nor an array",
			err,
		)
	}
	return items, "", nil
}

// CreateItem POSTs a new record and returns the CRM's representation of it.
func (c *Connector) CreateItem(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// UpdateItem PATCHes a record. Several CRM endpoints acknowledge updates
// with an empty body; that is a success, and the caller re-reads if it
// needs the updated representation.
func (c *Connector) UpdateItem(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	resp, err := c.do(ctx, http.MethodPatch, path, nil, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return nil, err
	}
	return decodeObject(resp)
}

// DeleteItem issues an HTTP DELETE. A success status with no parseable
// payload — 204, or 200 with an empty body — is a successful Ack, never an
// error.
func (c *Connector) DeleteItem(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return c.checkStatus(resp, path)
}

// do builds and sends one authenticated request. On a 401 it invalidates
// the session, renews, and replays the request exactly once — the renewal
// never surfaces to the caller.
func (c *Connector) do(ctx context.Context, method, path string, query url.Values, payload map[string]any) (*http.Response, error) {
	resp, err := c.send(ctx, method, path, query, payload)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// Token expired server-side before the local skew fired. Renew and
	// replay once; a second 401 is a credentials problem, not an expiry.
	resp.Body.Close()
	c.session.Invalidate()
	c.logger.DebugContext(ctx, "CRM rejected token, renewing session",
		"method", method,
		"path", path,
	)

	resp, err = c.send(ctx, method, path, query, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, types.NewAppError(
			types.ErrCodeRemoteAuth,
			"CRM rejected a freshly renewed token: "+truncateBody(body),
			nil,
		)
	}
	return resp, nil
}

// send performs a single authenticated request attempt.
func (c *Connector) send(ctx context.Context, method, path string, query url.Values, payload map[string]any) (*http.Response, error) {
	token, err := c.session.Token(ctx)
	if err != nil {
		return nil, err
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, types.NewAppError(
				types.ErrCodeInternalUnexpected,
				"failed to encode CRM request payload",
				err,
			)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create CRM request",
			err,
		)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.client.Do(req)
}

// checkStatus maps non-2xx responses onto the error taxonomy. 429 and 5xx
// never reach here; the Client converts them to remote_unavailable after
// exhausting retries.
func (c *Connector) checkStatus(resp *http.Response, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	switch resp.StatusCode {
	case http.StatusNotFound:
		return types.NewAppError(
			types.ErrCodeNotFoundResource,
			fmt.Sprintf("CRM has no record at %s", path),
			nil,
		)
	case http.StatusConflict, http.StatusPreconditionFailed:
		return types.NewAppError(
			types.ErrCodeConflictStaleResource,
			"CRM rejected a concurrent modification; re-read and retry",
			nil,
		)
	default:
		return types.NewAppErrorWithDetails(
			types.ErrCodeRemoteRejected,
			fmt.Sprintf("CRM rejected request (%d): %s", resp.StatusCode, truncateBody(body)),
			nil,
			map[string]any{"status": resp.StatusCode},
		)
	}
}

// decodeObject reads a single-object response body. A 2xx with no parseable
// payload is treated as a successful Ack and yields a nil map, not an error.
func decodeObject(resp *http.Response) (map[string]any, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeRemoteRejected, "failed to read CRM response", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		// Some endpoints answer mutations with free-text acknowledgements.
		return nil, nil
	}
	return obj, nil
}
