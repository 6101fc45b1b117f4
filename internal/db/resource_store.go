package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"remedian/internal/mapping"
	"remedian/internal/types"
)

// ResourceStore is the local relational connector: a generic mapped-table
// repository whose SQL is driven entirely by the resource mapping table.
// Adding a locally-stored kind requires a mapping entry and a table, never
// new repository code.
//
// Tables are expected to carry an `id` text primary key and an `updated_at`
// timestamptz alongside the mapped columns. Updates are guarded by
// updated_at for optimistic concurrency.
type ResourceStore struct {
	db DBTX
}

// NewResourceStore creates a ResourceStore backed by the given database
// connection (pool or transaction).
func NewResourceStore(db DBTX) *ResourceStore {
	return &ResourceStore{db: db}
}

// columns returns the stable, sorted list of mapped columns for a kind,
// including denormalized reference-name columns.
func columns(m *mapping.ResourceMapping) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, f := range m.Fields {
		for _, c := range []string{f.Column, f.RefNameColumn} {
			if c != "" && !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

// Get fetches one record by id.
func (s *ResourceStore) Get(ctx context.Context, m *mapping.ResourceMapping, id string) (*types.Resource, error) {
	cols := columns(m)
	query := fmt.Sprintf(
		`SELECT id, updated_at, %s FROM %s WHERE id = $1`,
		strings.Join(cols, ", "), m.Table,
	)

	raw, updatedAt, rowID, err := s.scanOne(ctx, query, cols, id)
	if err != nil {
		return nil, err
	}
	return m.ToCanonical(types.BackendLocal, rowID, raw, updatedAt), nil
}

// scanOne runs a single-row query and returns the raw column map.
func (s *ResourceStore) scanOne(ctx context.Context, query string, cols []string, args ...any) (map[string]any, time.Time, string, error) {
	var id string
	var updatedAt time.Time
	dests := make([]any, 0, len(cols)+2)
	dests = append(dests, &id, &updatedAt)
	values := make([]any, len(cols))
	for i := range values {
		dests = append(dests, &values[i])
	}

	if err := s.db.QueryRow(ctx, query, args...).Scan(dests...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, "", types.NewAppError(
				types.ErrCodeNotFoundResource,
				"resource does not exist",
				nil,
			)
		}
		return nil, time.Time{}, "", types.NewAppError(types.ErrCodeInternalDB, "failed to read resource", err)
	}

	raw := make(map[string]any, len(cols))
	for i, c := range cols {
		raw[c] = normalizeValue(values[i])
	}
	return raw, updatedAt, id, nil
}

// List returns one page of records matching the filter (column equality on
// backend representation), using keyset pagination on id.
func (s *ResourceStore) List(ctx context.Context, m *mapping.ResourceMapping, filter map[string]any, limit int, cursor string) ([]*types.Resource, string, error) {
	afterID, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	cols := columns(m)
	var (
		where []string
		args  []any
	)
	// Deterministic clause order keeps queries stable for logs and tests.
	filterCols := make([]string, 0, len(filter))
	for c := range filter {
		filterCols = append(filterCols, c)
	}
	sort.Strings(filterCols)
	for _, c := range filterCols {
		args = append(args, filter[c])
		where = append(where, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	if afterID != "" {
		args = append(args, afterID)
		where = append(where, fmt.Sprintf("id > $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT id, updated_at, %s FROM %s`, strings.Join(cols, ", "), m.Table)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1) // one extra row to detect has_more
	query += fmt.Sprintf(" ORDER BY id LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to list resources", err)
	}
	defer rows.Close()

	var out []*types.Resource
	for rows.Next() {
		var id string
		var updatedAt time.Time
		dests := make([]any, 0, len(cols)+2)
		dests = append(dests, &id, &updatedAt)
		values := make([]any, len(cols))
		for i := range values {
			dests = append(dests, &values[i])
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, "", types.NewAppError(types.ErrCodeInternalDB, "failed to scan resource row", err)
		}
		raw := make(map[string]any, len(cols))
		for i, c := range cols {
			raw[c] = normalizeValue(values[i])
		}
		out = append(out, m.ToCanonical(types.BackendLocal, id, raw, updatedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalDB, "error iterating resource rows", err)
	}

	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = EncodeCursor(out[len(out)-1].ID)
	}
	return out, next, nil
}

// Create inserts a new record from a backend-representation column map and
// returns the stored canonical resource. The id may be supplied by the
// caller; otherwise one is generated.
func (s *ResourceStore) Create(ctx context.Context, m *mapping.ResourceMapping, id string, backendFields map[string]any) (*types.Resource, error) {
	if id == "" {
		id = uuid.NewString()
	}

	cols := []string{"id", "updated_at"}
	args := []any{id, time.Now().UTC()}
	fieldCols := make([]string, 0, len(backendFields))
	for c := range backendFields {
		fieldCols = append(fieldCols, c)
	}
	sort.Strings(fieldCols)
	for _, c := range fieldCols {
		cols = append(cols, c)
		args = append(args, backendFields[c])
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s)`,
		m.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to insert resource", err)
	}

	return s.Get(ctx, m, id)
}

// Update applies a partial backend-representation update, guarded against
// concurrent modification: the row's updated_at is read first and the
// UPDATE only lands if it has not moved. Zero affected rows with the record
// still present means someone else won the race.
func (s *ResourceStore) Update(ctx context.Context, m *mapping.ResourceMapping, id string, backendFields map[string]any) (*types.Resource, error) {
	current, err := s.Get(ctx, m, id)
	if err != nil {
		return nil, err
	}
	if len(backendFields) == 0 {
		return current, nil
	}

	var (
		sets []string
		args []any
	)
	fieldCols := make([]string, 0, len(backendFields))
	for c := range backendFields {
		fieldCols = append(fieldCols, c)
	}
	sort.Strings(fieldCols)
	for _, c := range fieldCols {
		args = append(args, backendFields[c])
		sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
	}
	args = append(args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

	args = append(args, id)
	idPos := len(args)
	args = append(args, current.UpdatedAt)
	guardPos := len(args)

	query := fmt.Sprintf(
		`UPDATE %s SET %s WHERE id = $%d AND updated_at = $%d`,
		m.Table, strings.Join(sets, ", "), idPos, guardPos,
	)
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to update resource", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, types.NewAppError(
			types.ErrCodeConflictStaleResource,
			"resource was modified concurrently; re-read and retry",
			nil,
		)
	}

	return s.Get(ctx, m, id)
}

// Delete removes a record. Deleting a missing record is not_found_resource.
func (s *ResourceStore) Delete(ctx context.Context, m *mapping.ResourceMapping, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, m.Table)
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete resource", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundResource, "resource does not exist", nil)
	}
	return nil
}

// normalizeValue coerces driver-specific scan results into the small value
// vocabulary the mapping layer understands (strings, numbers, nil).
func normalizeValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}
