package core

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeCursor builds the opaque cursor of a document positioned at (ts, id).
func EncodeCursor(ts time.Time, id string) Cursor {
	raw := strconv.FormatInt(ts.UTC().UnixNano(), 10) + ":" + id
	return Cursor(base64.RawURLEncoding.EncodeToString([]byte(raw)))
}

// DecodeCursor is the inverse of EncodeCursor.
func DecodeCursor(c Cursor) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(c))
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", ErrInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", ErrInvalidCursor
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}
