// Package httpx holds the hand-managed HTTP header plumbing for the relay's
// downstream side.
package httpx

import "net/http"

// expiresPast is a date far enough in the past that every cache treats the
// response as stale; several MJPEG viewers key off Expires rather than
// Cache-Control.
const expiresPast = "Mon, 01 Jul 1980 00:00:00 GMT"

// NoCache stamps the full set of cache-disabling headers onto h. Live streams
// must never be served from any intermediary cache.
func NoCache(h http.Header) {
	h.Set("Expires", expiresPast)
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
}

// PrimeStream writes the response head a viewer needs before any body bytes:
// 200, cache disabled, and the multipart content type carrying the boundary
// learned from upstream. The head is flushed immediately so viewers start
// rendering without waiting for the first frame to fill a buffer.
func PrimeStream(w http.ResponseWriter, boundary string) {
	h := w.Header()
	NoCache(h)
	h.Set("Content-Type", "multipart/x-mixed-replace;boundary="+boundary)
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
