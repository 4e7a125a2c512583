// Package storage keeps uploaded images. Submission images live only until
// they are scored; ticket evidence is kept for good.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
)

// Key prefixes.
const (
	PrefixSubmissions = "submissions"
	PrefixTickets     = "tickets"
)

// ErrNotFound is returned by Open for a missing key.
var ErrNotFound = errors.New("object not found")

// Store saves and retrieves opaque image blobs by key.
type Store interface {
	Save(ctx context.Context, prefix, name string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

var seq atomic.Uint64

// objectKey builds "<prefix>/<unix-nanos>-<name>" with name reduced to a
// safe base name. A sequence suffix keeps keys unique within one nanosecond.
func objectKey(prefix, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	if len(base) > 64 {
		base = base[len(base)-64:]
	}
	return fmt.Sprintf("%s/%d%02d-%s", prefix, time.Now().UnixNano(), seq.Add(1)%100, base)
}

// validKey rejects keys that could escape the store root.
func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return false
		}
	}
	return true
}
