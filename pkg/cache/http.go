package cache

import (
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"
)

// ETag derives a strong validator for the entry stored under key at fetchedAt.
// A refetch always produces a new tag, even when the events are unchanged.
func ETag(key string, fetchedAt time.Time) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", key, fetchedAt.UnixNano())
	return fmt.Sprintf(`"%016x"`, h.Sum64())
}

// SetResponseHeaders writes validators and freshness headers for a cached
// response. Expired entries (stale fallbacks) are marked no-cache.
func SetResponseHeaders(h http.Header, key string, fetchedAt, expiresAt, now time.Time) {
	if key == "" || fetchedAt.IsZero() {
		h.Set("Cache-Control", "no-store")
		return
	}

	h.Set("ETag", ETag(key, fetchedAt))
	h.Set("Last-Modified", fetchedAt.UTC().Format(http.TimeFormat))

	maxAge := int(expiresAt.Sub(now) / time.Second)
	if maxAge <= 0 {
		h.Set("Cache-Control", "no-cache")
		return
	}
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
	h.Set("Expires", expiresAt.UTC().Format(http.TimeFormat))
}

// NotModified reports whether the request's conditional headers match.
// If-None-Match takes precedence over If-Modified-Since.
func NotModified(r *http.Request, etag string, lastModified time.Time) bool {
	if r == nil {
		return false
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if etag == "" {
			return false
		}
		for _, candidate := range strings.Split(inm, ",") {
			candidate = strings.TrimSpace(candidate)
			if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
				return true
			}
		}
		return false
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" && !lastModified.IsZero() {
		since, err := http.ParseTime(ims)
		if err != nil {
			return false
		}
		// HTTP dates have second precision.
		return !lastModified.Truncate(time.Second).After(since)
	}
	return false
}
