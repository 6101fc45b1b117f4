package db

import (
	"encoding/base64"

	"remedian/internal/types"
)

// Cursors for locally-stored kinds are the base64-encoded id of the last row
// on the previous page, driving keyset pagination on the primary key. They
// are opaque to callers; remote kinds pass the CRM's own paging token
// through unchanged and never reach these helpers.

// EncodeCursor produces an opaque cursor from the last-seen row id.
func EncodeCursor(lastID string) string {
	if lastID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(lastID))
}

// DecodeCursor recovers the last-seen row id from an opaque cursor.
// An empty cursor means "first page".
func DecodeCursor(cursor string) (string, error) {
	if cursor == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeValidationInvalidCursor,
			"cursor is not valid",
			err,
		)
	}
	return string(raw), nil
}
