// Package cursor implements the opaque page cursor used by message listings.
//
// A cursor is a value, not an offset: it encodes the composite ordering key
// (createdAt, id) of the last row the caller has seen, so concurrent inserts
// and deletes never shift pages that were already handed out.
package cursor

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const version = "m1"

// InvalidCursorError indicates a cursor string that could not be decoded.
// It maps to a 400 response rather than silently truncating results.
type InvalidCursorError struct {
	Cursor string
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("invalid cursor: %q", e.Cursor)
}

// Cursor is the decoded composite ordering key of the last-seen message.
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// Encode returns the opaque string form of the cursor.
// CreatedAt is truncated to microseconds to match Postgres timestamp precision.
func Encode(c Cursor) string {
	raw := fmt.Sprintf("%s:%d:%d", version, c.CreatedAt.UnixMicro(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode parses an opaque cursor string. A nil return with nil error is not
// possible; callers should treat the absence of a cursor before calling.
func Decode(s string) (*Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, &InvalidCursorError{Cursor: s}
	}
	parts := strings.Split(string(raw), ":")
	if len(parts) != 3 || parts[0] != version {
		return nil, &InvalidCursorError{Cursor: s}
	}
	micros, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, &InvalidCursorError{Cursor: s}
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id < 0 {
		return nil, &InvalidCursorError{Cursor: s}
	}
	return &Cursor{CreatedAt: time.UnixMicro(micros).UTC(), ID: id}, nil
}
